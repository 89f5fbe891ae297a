package rules

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// MockLedgerReader is a mock implementation of LedgerReader.
type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) SumByRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, prefix, since)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerReader) FindReversibleByEntity(ctx context.Context, entityID string) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerReader) ExistsByRuleAndEntitySince(ctx context.Context, ruleKey, entityID string, since time.Time) (bool, error) {
	args := m.Called(ctx, ruleKey, entityID, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerReader) ExistsByUserRulePrefixAndEntity(ctx context.Context, userID uuid.UUID, prefix, entityID string) (bool, error) {
	args := m.Called(ctx, userID, prefix, entityID)
	return args.Bool(0), args.Error(1)
}

func newEvent(t *testing.T, eventType string, payload map[string]any) *domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Event{
		DeliveryID: "delivery-1",
		EventType:  eventType,
		Payload:    datatypes.JSON(raw),
		Status:     domain.StatusStored,
		ReceivedAt: time.Now(),
	}
}

func testUser(role domain.Role) *domain.User {
	return &domain.User{ID: uuid.New(), Username: "octocat", Role: role}
}

func commitMap(id, message string, distinct bool, added, modified int) map[string]any {
	addedFiles := make([]string, added)
	for i := range addedFiles {
		addedFiles[i] = "a.go"
	}
	modifiedFiles := make([]string, modified)
	for i := range modifiedFiles {
		modifiedFiles[i] = "m.go"
	}
	return map[string]any{
		"id":       id,
		"message":  message,
		"distinct": distinct,
		"added":    addedFiles,
		"modified": modifiedFiles,
	}
}

func TestCommitEvaluator_SkipsMergeAndNonDistinctCommits(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())

	merge := commitMap("c1", "Merge branch 'develop'", true, 0, 0)
	merge["parents"] = []map[string]any{{"sha": "p1"}, {"sha": "p2"}}
	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			merge,
			commitMap("c2", "feat: already seen elsewhere", false, 1, 0),
		},
	})

	intents, err := evaluator.Evaluate(context.Background(), event, testUser(domain.RoleDeveloper))

	assert.NoError(t, err)
	assert.Empty(t, intents)
	mockLedger.AssertNotCalled(t, "SumByRulePrefixSince")
}

func TestCommitEvaluator_AccumulatesBonuses(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c1", "feat(api): add webhook intake #time", true, 1, 1),
		},
	})

	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(0, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	// Base 5 + conventional 8 + atomicity 5 (2 files) + time tag 5.
	require.Len(t, intents, 4)
	assert.Equal(t, RuleCommitCreation, intents[0].RuleKey)
	assert.Equal(t, 5, intents[0].Points)
	assert.Equal(t, RuleCommitConventional, intents[1].RuleKey)
	assert.Equal(t, 8, intents[1].Points)
	assert.Equal(t, RuleCommitAtomicity, intents[2].RuleKey)
	assert.Equal(t, 5, intents[2].Points)
	assert.Equal(t, RuleCommitIncludesTime, intents[3].RuleKey)
	assert.Equal(t, 5, intents[3].Points)
	for _, intent := range intents {
		assert.Equal(t, "c1", intent.EntityID)
		assert.True(t, intent.Reversible)
	}
}

func TestCommitEvaluator_ClipsAtDailyCap(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c1", "feat: first of the day, conventional", true, 20, 0),
			commitMap("c2", "feat: past the cap, earns nothing", true, 0, 0),
		},
	})

	// 52 points already earned today: 8 points of headroom left.
	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(52, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, RuleCommitCreation, intents[0].RuleKey)
	assert.Equal(t, 5, intents[0].Points)
	assert.Equal(t, RuleCommitConventional, intents[1].RuleKey)
	assert.Equal(t, 3, intents[1].Points, "bonus must be clipped to the remaining headroom")

	total := 0
	for _, intent := range intents {
		total += intent.Points
	}
	assert.Equal(t, DailyCommitCap-52, total)
}

func TestCommitEvaluator_CapAlreadyReached(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c1", "feat: valid but capped out", true, 0, 0),
		},
	})

	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(DailyCommitCap, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	assert.Empty(t, intents)
}

func TestCommitEvaluator_SkipsCherryPicks(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c1", "fix: hotfix\n(cherry picked from commit abc123)", true, 1, 0),
		},
	})

	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(0, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	assert.Empty(t, intents)
}

func TestCommitEvaluator_RevertNegatesReversibleEntries(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	originalSHA := strings.Repeat("a", 40)
	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c9", "Revert \"feat: add thing\"\n\nThis reverts commit "+originalSHA+".", true, 1, 0),
		},
	})

	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(0, nil)
	mockLedger.On("FindReversibleByEntity", mock.Anything, originalSHA).
		Return([]*domain.LedgerEntry{
			{UserID: user.ID, Points: 15, RuleKey: RuleCommitCreation, EntityID: originalSHA, IsReversible: true},
		}, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, -15, intents[0].Points)
	assert.Equal(t, RuleCommitRevert, intents[0].RuleKey)
	assert.Equal(t, "c9", intents[0].EntityID)
	assert.False(t, intents[0].Reversible, "a reversal must itself be non-reversible")
	mockLedger.AssertExpectations(t)
}

func TestCommitEvaluator_RevertWithoutSHAReference(t *testing.T) {
	mockLedger := new(MockLedgerReader)
	evaluator := NewCommitEvaluator(mockLedger, time.UTC, zap.NewNop())
	user := testUser(domain.RoleDeveloper)

	event := newEvent(t, "push", map[string]any{
		"ref": "refs/heads/feature",
		"commits": []map[string]any{
			commitMap("c9", "Revert the revert of the revert", true, 0, 0),
		},
	})

	mockLedger.On("SumByRulePrefixSince", mock.Anything, user.ID, CommitRulePrefix, mock.Anything).
		Return(0, nil)

	intents, err := evaluator.Evaluate(context.Background(), event, user)

	assert.NoError(t, err)
	assert.Empty(t, intents)
	mockLedger.AssertNotCalled(t, "FindReversibleByEntity")
}

func TestAtomicityBonus(t *testing.T) {
	assert.Equal(t, 5, atomicityBonus(0))
	assert.Equal(t, 5, atomicityBonus(2))
	assert.Equal(t, 4, atomicityBonus(3))
	assert.Equal(t, 3, atomicityBonus(7))
	assert.Equal(t, 0, atomicityBonus(15))
	assert.Equal(t, 0, atomicityBonus(100))
}
