package badges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/rules"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

// MockEventRepository is a mock implementation of repository.EventRepository.
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.Event, error) {
	args := m.Called(ctx, deliveryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) MarkProcessing(ctx context.Context, deliveryID string) (bool, error) {
	args := m.Called(ctx, deliveryID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepository) SetStatus(ctx context.Context, deliveryID string, status domain.EventStatus) error {
	args := m.Called(ctx, deliveryID, status)
	return args.Error(0)
}

func (m *MockEventRepository) CountBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) (int64, error) {
	args := m.Called(ctx, sender, eventType, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepository) FindBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) ([]*domain.Event, error) {
	args := m.Called(ctx, sender, eventType, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *MockEventRepository) FindByTypeBetween(ctx context.Context, eventType string, from, to time.Time) ([]*domain.Event, error) {
	args := m.Called(ctx, eventType, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *MockEventRepository) FindPushesBySenders(ctx context.Context, senders []string, since time.Time) ([]*domain.Event, error) {
	args := m.Called(ctx, senders, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of repository.LedgerRepository.
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Apply(ctx context.Context, entry *domain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) SumByRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, prefix, since)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerRepository) FindReversibleByEntity(ctx context.Context, entityID string) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ExistsByRuleAndEntitySince(ctx context.Context, ruleKey, entityID string, since time.Time) (bool, error) {
	args := m.Called(ctx, ruleKey, entityID, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) ExistsByUserRulePrefixAndEntity(ctx context.Context, userID uuid.UUID, prefix, entityID string) (bool, error) {
	args := m.Called(ctx, userID, prefix, entityID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) FindByUserRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, userID, prefix, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

// MockBadgeRepository is a mock implementation of repository.BadgeRepository.
type MockBadgeRepository struct {
	mock.Mock
}

func (m *MockBadgeRepository) GetByKey(ctx context.Context, key string) (*domain.Badge, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Badge), args.Error(1)
}

func (m *MockBadgeRepository) ListByKeys(ctx context.Context, keys []string) ([]*domain.Badge, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Badge), args.Error(1)
}

func (m *MockBadgeRepository) UpsertUserBadge(ctx context.Context, userID uuid.UUID, badgeID uint, earnedAt time.Time) (bool, error) {
	args := m.Called(ctx, userID, badgeID, earnedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBadgeRepository) EnsureBadges(ctx context.Context, badges []domain.Badge) error {
	args := m.Called(ctx, badges)
	return args.Error(0)
}

// MockApplier is a mock implementation of ledger.Applier.
type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, intent domain.LedgerIntent) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

type fixture struct {
	users   *MockUserRepository
	events  *MockEventRepository
	ledgers *MockLedgerRepository
	badges  *MockBadgeRepository
	points  *MockApplier
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		users:   new(MockUserRepository),
		events:  new(MockEventRepository),
		ledgers: new(MockLedgerRepository),
		badges:  new(MockBadgeRepository),
		points:  new(MockApplier),
	}
	f.svc = NewService(f.users, f.events, f.ledgers, f.badges, f.points, time.UTC, nil, zap.NewNop())
	return f
}

func mustCriteria(t *testing.T, v any) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(raw)
}

func commentEvent(t *testing.T, reviewer, prURL, author, headRef string, receivedAt time.Time) *domain.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"pull_request": map[string]any{
			"html_url": prURL,
			"user":     map[string]any{"login": author},
			"head":     map[string]any{"ref": headRef},
		},
	})
	require.NoError(t, err)
	return &domain.Event{
		DeliveryID:  uuid.NewString(),
		EventType:   "pull_request_review_comment",
		SenderLogin: reviewer,
		Payload:     datatypes.JSON(payload),
		ReceivedAt:  receivedAt,
	}
}

func pushEvent(t *testing.T, sender, ref string, receivedAt time.Time) *domain.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"ref": ref})
	require.NoError(t, err)
	return &domain.Event{
		DeliveryID:  uuid.NewString(),
		EventType:   "push",
		SenderLogin: sender,
		Payload:     datatypes.JSON(payload),
		ReceivedAt:  receivedAt,
	}
}

func TestTopScorer(t *testing.T) {
	winner, score := topScorer(map[string]int{"bob": 5, "carol": 9, "alice": 9})
	assert.Equal(t, "alice", winner, "ties must break by ascending username")
	assert.Equal(t, 9, score)

	winner, score = topScorer(map[string]int{})
	assert.Equal(t, "", winner)
	assert.Equal(t, 0, score)
}

func TestCountCorrections_DeduplicatesPerReviewerAndPR(t *testing.T) {
	f := newFixture()
	base := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)

	comments := []*domain.Event{
		commentEvent(t, "alice", "https://pr/1", "dev", "fix-a", base),
		commentEvent(t, "alice", "https://pr/1", "dev", "fix-a", base.Add(time.Minute)),
		commentEvent(t, "alice", "https://pr/2", "dev", "fix-b", base),
		commentEvent(t, "bob", "https://pr/1", "dev", "fix-a", base),
	}
	pushes := []*domain.Event{
		pushEvent(t, "dev", "refs/heads/fix-a", base.Add(time.Hour)),
		pushEvent(t, "dev", "refs/heads/fix-b", base.Add(time.Hour)),
	}
	f.events.On("FindPushesBySenders", mock.Anything, mock.Anything, mock.Anything).Return(pushes, nil)

	corrections, err := f.svc.countCorrections(context.Background(), comments)

	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, corrections)
}

func TestCountCorrections_RequiresSubsequentPushOnHeadBranch(t *testing.T) {
	f := newFixture()
	base := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)

	comments := []*domain.Event{
		commentEvent(t, "alice", "https://pr/1", "dev", "fix-a", base),
		commentEvent(t, "bob", "https://pr/2", "dev", "fix-b", base),
		commentEvent(t, "carol", "https://pr/3", "dev", "fix-c", base),
	}
	pushes := []*domain.Event{
		// Answers alice's comment.
		pushEvent(t, "dev", "refs/heads/fix-a", base.Add(time.Hour)),
		// Wrong branch for bob's PR.
		pushEvent(t, "dev", "refs/heads/other", base.Add(time.Hour)),
		// Push before carol's comment does not count.
		pushEvent(t, "dev", "refs/heads/fix-c", base.Add(-time.Hour)),
	}
	f.events.On("FindPushesBySenders", mock.Anything, mock.Anything, mock.Anything).Return(pushes, nil)

	corrections, err := f.svc.countCorrections(context.Background(), comments)

	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1}, corrections)
}

func monthlyBadge(t *testing.T) *domain.Badge {
	t.Helper()
	return &domain.Badge{
		ID:   3,
		Key:  BadgeQualityGuardian,
		Name: "Quality Guardian",
		Criteria: mustCriteria(t, domain.CompetitionCriteria{
			MinTarget:    8,
			PointsReward: 150,
		}),
	}
}

// monthlyScenario wires comments and answering pushes so that each reviewer in
// counts ends up with exactly that many valid corrections.
func monthlyScenario(t *testing.T, f *fixture, counts map[string]int) {
	t.Helper()
	base := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)

	var comments, pushes []*domain.Event
	for reviewer, count := range counts {
		for i := 0; i < count; i++ {
			branch := fmt.Sprintf("%s-fix-%d", reviewer, i)
			prURL := fmt.Sprintf("https://pr/%s/%d", reviewer, i)
			comments = append(comments, commentEvent(t, reviewer, prURL, "dev", branch, base))
			pushes = append(pushes, pushEvent(t, "dev", "refs/heads/"+branch, base.Add(time.Hour)))
		}
	}

	f.events.On("FindByTypeBetween", mock.Anything, "pull_request_review_comment", mock.Anything, mock.Anything).
		Return(comments, nil)
	f.events.On("FindPushesBySenders", mock.Anything, mock.Anything, mock.Anything).
		Return(pushes, nil)
}

func TestRunMonthlyEvaluation_AwardsSingleWinner(t *testing.T) {
	f := newFixture()
	badge := monthlyBadge(t)
	winner := &domain.User{ID: uuid.New(), Username: "alice"}

	f.badges.On("GetByKey", mock.Anything, BadgeQualityGuardian).Return(badge, nil)
	monthlyScenario(t, f, map[string]int{"bob": 5, "alice": 9, "carol": 9})
	f.users.On("GetByUsername", mock.Anything, "alice").Return(winner, nil)
	f.badges.On("UpsertUserBadge", mock.Anything, winner.ID, badge.ID, mock.Anything).
		Return(true, nil).Once()
	f.points.On("Apply", mock.Anything, mock.MatchedBy(func(intent domain.LedgerIntent) bool {
		return intent.UserID == winner.ID &&
			intent.Points == 150 &&
			intent.RuleKey == RuleBadgeReward
	})).Return(&domain.LedgerEntry{}, nil).Once()

	err := f.svc.RunMonthlyEvaluation(context.Background())

	assert.NoError(t, err)
	f.badges.AssertExpectations(t)
	f.points.AssertExpectations(t)
}

func TestRunMonthlyEvaluation_NoWinnerBelowTarget(t *testing.T) {
	f := newFixture()

	f.badges.On("GetByKey", mock.Anything, BadgeQualityGuardian).Return(monthlyBadge(t), nil)
	monthlyScenario(t, f, map[string]int{"bob": 5})

	err := f.svc.RunMonthlyEvaluation(context.Background())

	assert.NoError(t, err)
	f.badges.AssertNotCalled(t, "UpsertUserBadge")
	f.points.AssertNotCalled(t, "Apply")
}

func TestRunMonthlyEvaluation_RerunNeverPaysTwice(t *testing.T) {
	f := newFixture()
	badge := monthlyBadge(t)
	winner := &domain.User{ID: uuid.New(), Username: "alice"}

	f.badges.On("GetByKey", mock.Anything, BadgeQualityGuardian).Return(badge, nil)
	monthlyScenario(t, f, map[string]int{"alice": 9})
	f.users.On("GetByUsername", mock.Anything, "alice").Return(winner, nil)
	f.badges.On("UpsertUserBadge", mock.Anything, winner.ID, badge.ID, mock.Anything).
		Return(false, nil)

	err := f.svc.RunMonthlyEvaluation(context.Background())

	assert.NoError(t, err)
	f.points.AssertNotCalled(t, "Apply")
}

func TestRunMonthlyEvaluation_BadgeNotRegistered(t *testing.T) {
	f := newFixture()

	f.badges.On("GetByKey", mock.Anything, BadgeQualityGuardian).Return(nil, repository.ErrNotFound)

	err := f.svc.RunMonthlyEvaluation(context.Background())

	assert.NoError(t, err)
	f.events.AssertNotCalled(t, "FindByTypeBetween")
}

func cleanCommitterBadge(t *testing.T) *domain.Badge {
	t.Helper()
	return &domain.Badge{
		ID:   1,
		Key:  BadgeCleanCommitter,
		Name: "Clean Committer",
		Criteria: mustCriteria(t, domain.WindowCriteria{
			DurationDays: 7,
			Rules: []domain.ThresholdRule{
				{Metric: "valid_commits", RuleKey: rules.RuleCommitConventional, Target: 10},
				{Metric: "atomicity_rate", RuleKey: rules.RuleCommitAtomicity, Target: 0.8},
			},
		}),
	}
}

func conventionalEntries(n int) []*domain.LedgerEntry {
	entries := make([]*domain.LedgerEntry, 0, 2*n)
	for i := 0; i < n; i++ {
		entries = append(entries,
			&domain.LedgerEntry{RuleKey: rules.RuleCommitConventional, Points: 8},
			&domain.LedgerEntry{RuleKey: rules.RuleCommitAtomicity, Points: 5})
	}
	return entries
}

func TestCheckCleanCommitter(t *testing.T) {
	f := newFixture()
	user := &domain.User{ID: uuid.New(), Username: "alice"}

	// 12 conventional commits, each with an atomicity bonus: rate 0.5 of all
	// commit entries, below the 0.8 threshold.
	entries := conventionalEntries(12)
	f.ledgers.On("FindByUserRulePrefixSince", mock.Anything, user.ID, rules.CommitRulePrefix, mock.Anything).
		Return(entries, nil).Once()

	earned, err := f.svc.checkCleanCommitter(context.Background(), user, cleanCommitterBadge(t))
	assert.NoError(t, err)
	assert.False(t, earned)
}

func TestCheckCleanCommitter_Earned(t *testing.T) {
	f := newFixture()
	user := &domain.User{ID: uuid.New(), Username: "alice"}

	// All entries split evenly between conventional and atomicity keys would
	// cap the rate at 0.5, so hand-build a set where nearly every entry is an
	// atomicity bonus.
	entries := []*domain.LedgerEntry{}
	for i := 0; i < 10; i++ {
		entries = append(entries, &domain.LedgerEntry{RuleKey: rules.RuleCommitConventional, Points: 8})
	}
	for i := 0; i < 45; i++ {
		entries = append(entries, &domain.LedgerEntry{RuleKey: rules.RuleCommitAtomicity, Points: 5})
	}
	f.ledgers.On("FindByUserRulePrefixSince", mock.Anything, user.ID, rules.CommitRulePrefix, mock.Anything).
		Return(entries, nil)

	earned, err := f.svc.checkCleanCommitter(context.Background(), user, cleanCommitterBadge(t))
	assert.NoError(t, err)
	assert.True(t, earned)
}

func expertReviewerBadge(t *testing.T) *domain.Badge {
	t.Helper()
	return &domain.Badge{
		ID:   2,
		Key:  BadgeExpertReviewer,
		Name: "Expert Reviewer",
		Criteria: mustCriteria(t, domain.WindowCriteria{
			DurationDays: 30,
			Rules: []domain.ThresholdRule{
				{Metric: "total_reviews", EventType: "pull_request_review", Target: 10},
				{Metric: "valid_corrections", Target: 5},
			},
		}),
	}
}

func TestCheckExpertReviewer_TooFewReviews(t *testing.T) {
	f := newFixture()
	user := &domain.User{ID: uuid.New(), Username: "alice"}

	f.events.On("CountBySenderAndType", mock.Anything, "alice", "pull_request_review", mock.Anything).
		Return(int64(3), nil)

	earned, err := f.svc.checkExpertReviewer(context.Background(), user, expertReviewerBadge(t))

	assert.NoError(t, err)
	assert.False(t, earned)
	f.events.AssertNotCalled(t, "FindBySenderAndType")
}

func TestCheckExpertReviewer_Earned(t *testing.T) {
	f := newFixture()
	user := &domain.User{ID: uuid.New(), Username: "alice"}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var comments, pushes []*domain.Event
	for i := 0; i < 5; i++ {
		branch := fmt.Sprintf("fix-%d", i)
		comments = append(comments, commentEvent(t, "alice", fmt.Sprintf("https://pr/%d", i), "dev", branch, base))
		pushes = append(pushes, pushEvent(t, "dev", "refs/heads/"+branch, base.Add(time.Hour)))
	}

	f.events.On("CountBySenderAndType", mock.Anything, "alice", "pull_request_review", mock.Anything).
		Return(int64(12), nil)
	f.events.On("FindBySenderAndType", mock.Anything, "alice", "pull_request_review_comment", mock.Anything).
		Return(comments, nil)
	f.events.On("FindPushesBySenders", mock.Anything, mock.Anything, mock.Anything).
		Return(pushes, nil)

	earned, err := f.svc.checkExpertReviewer(context.Background(), user, expertReviewerBadge(t))

	assert.NoError(t, err)
	assert.True(t, earned)
}

func TestRunDailyEvaluation_AwardsAndIsolatesFailures(t *testing.T) {
	f := newFixture()
	alice := &domain.User{ID: uuid.New(), Username: "alice"}
	bob := &domain.User{ID: uuid.New(), Username: "bob"}
	badge := cleanCommitterBadge(t)

	f.badges.On("ListByKeys", mock.Anything, mock.Anything).Return([]*domain.Badge{badge}, nil)
	f.users.On("List", mock.Anything).Return([]*domain.User{alice, bob}, nil)

	// Alice's ledger lookup fails; bob still gets evaluated and awarded.
	f.ledgers.On("FindByUserRulePrefixSince", mock.Anything, alice.ID, rules.CommitRulePrefix, mock.Anything).
		Return(nil, errors.New("timeout"))

	bobEntries := []*domain.LedgerEntry{}
	for i := 0; i < 10; i++ {
		bobEntries = append(bobEntries, &domain.LedgerEntry{RuleKey: rules.RuleCommitConventional, Points: 8})
	}
	for i := 0; i < 45; i++ {
		bobEntries = append(bobEntries, &domain.LedgerEntry{RuleKey: rules.RuleCommitAtomicity, Points: 5})
	}
	f.ledgers.On("FindByUserRulePrefixSince", mock.Anything, bob.ID, rules.CommitRulePrefix, mock.Anything).
		Return(bobEntries, nil)
	f.badges.On("UpsertUserBadge", mock.Anything, bob.ID, badge.ID, mock.Anything).
		Return(true, nil).Once()

	err := f.svc.RunDailyEvaluation(context.Background())

	assert.NoError(t, err)
	f.badges.AssertExpectations(t)
}
