package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

const (
	RuleCommitCreation     = "commit.creation"
	RuleCommitConventional = "commit.conventional"
	RuleCommitAtomicity    = "commit.atomicity_bonus"
	RuleCommitIncludesTime = "commit.includes_time"
	RuleCommitRevert       = "commit.revert"

	// CommitRulePrefix groups every commit rule key for cap and badge queries.
	CommitRulePrefix = "commit."

	pointsAnyCommit         = 5
	pointsConventionalBonus = 8
	pointsTimeTagBonus      = 5
	atomicityBasePoints     = 5

	// DailyCommitCap bounds the points a user can earn from commit rules in
	// one day.
	DailyCommitCap = 60
)

var (
	conventionalMessageRe = regexp.MustCompile(`^(feat|fix|docs|style|refactor|test|chore|improvement)(\(.+\))?: .{5,}`)
	revertedSHARe         = regexp.MustCompile(`This reverts commit ([a-f0-9]{40})\.`)
)

// CommitEvaluator scores the commits of a push event: base creation points,
// conventional-message bonus, atomicity bonus, and time-tag bonus, all
// clipped to the daily cap. Revert commits negate the reversible entries of
// the commit they reference instead of earning points.
type CommitEvaluator struct {
	ledger LedgerReader
	dayLoc *time.Location
	log    *zap.Logger
	now    func() time.Time
}

// NewCommitEvaluator creates the commit evaluator. dayLoc anchors the
// midnight boundary of the daily cap window.
func NewCommitEvaluator(ledger LedgerReader, dayLoc *time.Location, log *zap.Logger) *CommitEvaluator {
	if dayLoc == nil {
		dayLoc = time.UTC
	}
	return &CommitEvaluator{ledger: ledger, dayLoc: dayLoc, log: log, now: time.Now}
}

func (e *CommitEvaluator) Name() string { return "commit" }

// Evaluate processes the commits of a push event.
func (e *CommitEvaluator) Evaluate(ctx context.Context, event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.PushPayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}

	commits := eligibleCommits(payload.Commits)
	if len(commits) == 0 {
		return nil, nil
	}

	dailyPoints, err := e.ledger.SumByRulePrefixSince(ctx, user.ID, CommitRulePrefix, e.startOfToday())
	if err != nil {
		return nil, err
	}

	var intents []domain.LedgerIntent
	for _, commit := range commits {
		if strings.Contains(commit.Message, "(cherry picked from commit") {
			continue
		}
		if strings.HasPrefix(commit.Message, "Revert") {
			reversals, err := e.revertIntents(ctx, commit, user)
			if err != nil {
				return nil, err
			}
			intents = append(intents, reversals...)
			continue
		}

		// Base creation points, then the bonuses, each clipped to the
		// remaining headroom under the daily cap.
		if grant := clip(pointsAnyCommit, dailyPoints); grant > 0 {
			intents = append(intents, domain.NewIntent(user.ID, grant, RuleCommitCreation, commit.ID,
				fmt.Sprintf("+%d pts for creating a commit", grant)))
			dailyPoints += grant
		}

		if conventionalMessageRe.MatchString(commit.Message) {
			if grant := clip(pointsConventionalBonus, dailyPoints); grant > 0 {
				intents = append(intents, domain.NewIntent(user.ID, grant, RuleCommitConventional, commit.ID,
					fmt.Sprintf("+%d pts bonus for a conventional message", grant)))
				dailyPoints += grant
			}
		}

		filesChanged := len(commit.Added) + len(commit.Modified)
		if bonus := atomicityBonus(filesChanged); bonus > 0 {
			if grant := clip(bonus, dailyPoints); grant > 0 {
				intents = append(intents, domain.NewIntent(user.ID, grant, RuleCommitAtomicity, commit.ID,
					fmt.Sprintf("+%d pts bonus for atomicity (%d files)", grant, filesChanged)))
				dailyPoints += grant
			}
		}

		if strings.Contains(commit.Message, "#time") {
			if grant := clip(pointsTimeTagBonus, dailyPoints); grant > 0 {
				intents = append(intents, domain.NewIntent(user.ID, grant, RuleCommitIncludesTime, commit.ID,
					fmt.Sprintf("+%d pts bonus for the #time tag", grant)))
				dailyPoints += grant
			}
		}

		if dailyPoints >= DailyCommitCap {
			e.log.Info("Daily commit cap reached, skipping remaining commits",
				zap.String("user", user.Username),
				zap.String("delivery_id", event.DeliveryID))
			break
		}
	}

	return intents, nil
}

// revertIntents looks up the reversible entries of the referenced commit and
// emits exact negations, each non-reversible. The original entries are left
// untouched.
func (e *CommitEvaluator) revertIntents(ctx context.Context, commit domain.Commit, user *domain.User) ([]domain.LedgerIntent, error) {
	match := revertedSHARe.FindStringSubmatch(commit.Message)
	if match == nil {
		return nil, nil
	}
	originalSHA := match[1]

	entries, err := e.ledger.FindReversibleByEntity(ctx, originalSHA)
	if err != nil {
		return nil, err
	}

	intents := make([]domain.LedgerIntent, 0, len(entries))
	for _, entry := range entries {
		intent := domain.NewIntent(user.ID, -entry.Points, RuleCommitRevert, commit.ID,
			fmt.Sprintf("-%d pts for reverting commit %.7s, voids rule '%s'", entry.Points, originalSHA, entry.RuleKey))
		intent.Reversible = false
		intents = append(intents, intent)
	}
	return intents, nil
}

func (e *CommitEvaluator) startOfToday() time.Time {
	now := e.now().In(e.dayLoc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.dayLoc)
}

// eligibleCommits keeps distinct, non-merge commits. A missing parents list
// counts as zero parents.
func eligibleCommits(commits []domain.Commit) []domain.Commit {
	kept := make([]domain.Commit, 0, len(commits))
	for _, c := range commits {
		if c.Distinct && len(c.Parents) < 2 {
			kept = append(kept, c)
		}
	}
	return kept
}

// atomicityBonus rewards small commits: the base shrinks by one for every
// three files touched, floored at zero.
func atomicityBonus(filesChanged int) int {
	bonus := atomicityBasePoints - filesChanged/3
	if bonus < 0 {
		return 0
	}
	return bonus
}

// clip bounds a grant to the remaining headroom under the daily cap.
func clip(points, dailyPoints int) int {
	if dailyPoints >= DailyCommitCap {
		return 0
	}
	if remaining := DailyCommitCap - dailyPoints; points > remaining {
		return remaining
	}
	return points
}
