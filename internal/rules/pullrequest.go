package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
)

const (
	RulePRCreation         = "pr.creation"
	RulePRMerge            = "pr.merge"
	RulePRResolveConflicts = "pr.resolve_conflicts"

	pointsPRCreated        = 30
	pointsPRMerged         = 80
	pointsConflictResolved = 25

	// abuseWindowDays bounds repeat awards on the same head branch.
	abuseWindowDays = 30
)

var checklistRe = regexp.MustCompile(`-\s\[[\sx]\]`)

// PullRequestEvaluator awards creation points for checklisted PRs and merge
// points on close, each at most once per head branch inside the abuse window.
// A merger who is not the author earns separate conflict-resolution points.
type PullRequestEvaluator struct {
	ledger LedgerReader
	users  UserLookup
	log    *zap.Logger
	now    func() time.Time
}

// NewPullRequestEvaluator creates the pull-request evaluator.
func NewPullRequestEvaluator(ledger LedgerReader, users UserLookup, log *zap.Logger) *PullRequestEvaluator {
	return &PullRequestEvaluator{ledger: ledger, users: users, log: log, now: time.Now}
}

func (e *PullRequestEvaluator) Name() string { return "pull_request" }

// Evaluate handles opened and merged pull requests.
func (e *PullRequestEvaluator) Evaluate(ctx context.Context, event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.PullRequestPayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}

	switch payload.Action {
	case "opened":
		return e.opened(ctx, &payload.PullRequest, user)
	case "closed":
		if payload.PullRequest.Merged {
			return e.merged(ctx, &payload.PullRequest, user)
		}
	}
	return nil, nil
}

func (e *PullRequestEvaluator) opened(ctx context.Context, pr *domain.PullRequest, author *domain.User) ([]domain.LedgerIntent, error) {
	awarded, err := e.ledger.ExistsByRuleAndEntitySince(ctx, RulePRCreation, pr.Head.Ref, e.windowStart())
	if err != nil {
		return nil, err
	}
	if awarded {
		return nil, nil
	}
	if !checklistRe.MatchString(pr.Body) {
		return nil, nil
	}

	intent := domain.NewIntent(author.ID, pointsPRCreated, RulePRCreation, pr.Head.Ref,
		fmt.Sprintf("+%d pts for opening PR #%d with a checklist", pointsPRCreated, pr.Number))
	return []domain.LedgerIntent{intent}, nil
}

func (e *PullRequestEvaluator) merged(ctx context.Context, pr *domain.PullRequest, author *domain.User) ([]domain.LedgerIntent, error) {
	var intents []domain.LedgerIntent

	awarded, err := e.ledger.ExistsByRuleAndEntitySince(ctx, RulePRMerge, pr.Head.Ref, e.windowStart())
	if err != nil {
		return nil, err
	}
	if !awarded {
		intents = append(intents, domain.NewIntent(author.ID, pointsPRMerged, RulePRMerge, pr.Head.Ref,
			fmt.Sprintf("+%d pts for the merge of PR #%d", pointsPRMerged, pr.Number)))
	}

	if pr.MergedBy != nil && pr.MergedBy.Login != "" && pr.MergedBy.Login != author.Username {
		merger, err := e.users.GetByUsername(ctx, pr.MergedBy.Login)
		if errors.Is(err, repository.ErrNotFound) {
			e.log.Warn("Merger is not a registered user, skipping conflict-resolution points",
				zap.String("merger", pr.MergedBy.Login))
			return intents, nil
		}
		if err != nil {
			return nil, err
		}
		intents = append(intents, domain.NewIntent(merger.ID, pointsConflictResolved, RulePRResolveConflicts, pr.MergeCommitSHA,
			fmt.Sprintf("+%d pts for resolving conflicts and merging PR #%d", pointsConflictResolved, pr.Number)))
	}

	return intents, nil
}

func (e *PullRequestEvaluator) windowStart() time.Time {
	return e.now().AddDate(0, 0, -abuseWindowDays)
}
