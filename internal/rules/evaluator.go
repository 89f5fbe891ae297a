package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// Evaluator computes the ledger intents an event earns for a user. Evaluators
// never write ledger rows; the engine applies intents in evaluation order.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error)
}

// LedgerReader is the read surface the evaluators need for caps, reversal
// matching, and per-rule idempotency lookups.
type LedgerReader interface {
	SumByRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) (int, error)
	FindReversibleByEntity(ctx context.Context, entityID string) ([]*domain.LedgerEntry, error)
	ExistsByRuleAndEntitySince(ctx context.Context, ruleKey, entityID string, since time.Time) (bool, error)
	ExistsByUserRulePrefixAndEntity(ctx context.Context, userID uuid.UUID, prefix, entityID string) (bool, error)
}

// UserLookup resolves users referenced inside payloads, such as the person
// who merged someone else's pull request.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Registry maps each event kind to the evaluators that run for it, in order.
type Registry map[domain.EventKind][]Evaluator

// NewRegistry wires the default rule set: pushes run the commit rule then the
// branch rule, branch lifecycle events run the branch rule, and the remaining
// kinds map one-to-one.
func NewRegistry(ledger LedgerReader, users UserLookup, dayLoc *time.Location, log *zap.Logger) Registry {
	commit := NewCommitEvaluator(ledger, dayLoc, log)
	branch := NewBranchEvaluator(log)
	pr := NewPullRequestEvaluator(ledger, users, log)
	review := NewReviewEvaluator(ledger, log)
	release := NewReleaseEvaluator(log)

	return Registry{
		domain.KindPush:              {commit, branch},
		domain.KindCreate:            {branch},
		domain.KindDelete:            {branch},
		domain.KindPullRequest:       {pr},
		domain.KindPullRequestReview: {review},
		domain.KindRelease:           {release},
	}
}
