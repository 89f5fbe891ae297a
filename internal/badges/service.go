package badges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/ledger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/metrics"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/rules"
)

// Badge keys with registered evaluators.
const (
	BadgeCleanCommitter  = "clean_committer"
	BadgeExpertReviewer  = "expert_reviewer"
	BadgeQualityGuardian = "quality_guardian"

	// RuleBadgeReward stamps the monthly competition point reward.
	RuleBadgeReward = "badge.reward.quality_guardian"
)

// Service runs the scheduled badge evaluations. Both entry points are
// parameterless beyond the context and are invoked by an external,
// timezone-fixed scheduler; overlapping runs are the scheduler's problem.
type Service struct {
	users   repository.UserRepository
	events  repository.EventRepository
	ledgers repository.LedgerRepository
	badges  repository.BadgeRepository
	points  ledger.Applier
	loc     *time.Location
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewService creates the badge service. loc anchors day and month boundaries;
// metrics may be nil in tests.
func NewService(
	users repository.UserRepository,
	events repository.EventRepository,
	ledgers repository.LedgerRepository,
	badges repository.BadgeRepository,
	points ledger.Applier,
	loc *time.Location,
	m *metrics.Metrics,
	log *zap.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		users:   users,
		events:  events,
		ledgers: ledgers,
		badges:  badges,
		points:  points,
		loc:     loc,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

type dailyEvaluator func(ctx context.Context, user *domain.User, badge *domain.Badge) (bool, error)

func (s *Service) dailyEvaluators() map[string]dailyEvaluator {
	return map[string]dailyEvaluator{
		BadgeCleanCommitter: s.checkCleanCommitter,
		BadgeExpertReviewer: s.checkExpertReviewer,
	}
}

// RunDailyEvaluation evaluates every daily badge for every user. A failure
// for one user is logged and never aborts the others.
func (s *Service) RunDailyEvaluation(ctx context.Context) error {
	s.log.Info("Starting daily badge evaluation")

	evaluators := s.dailyEvaluators()
	keys := make([]string, 0, len(evaluators))
	for key := range evaluators {
		keys = append(keys, key)
	}

	badges, err := s.badges.ListByKeys(ctx, keys)
	if err != nil {
		return err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return err
	}

	for _, user := range users {
		if err := s.evaluateUserBadges(ctx, user, badges, evaluators); err != nil {
			s.log.Error("Badge evaluation failed for user",
				zap.String("user", user.Username), zap.Error(err))
		}
	}

	s.log.Info("Daily badge evaluation completed", zap.Int("users", len(users)))
	return nil
}

func (s *Service) evaluateUserBadges(ctx context.Context, user *domain.User, badges []*domain.Badge, evaluators map[string]dailyEvaluator) error {
	for _, badge := range badges {
		evaluate, ok := evaluators[badge.Key]
		if !ok {
			continue
		}
		earned, err := evaluate(ctx, user, badge)
		if err != nil {
			return err
		}
		if !earned {
			continue
		}
		created, err := s.badges.UpsertUserBadge(ctx, user.ID, badge.ID, s.now())
		if err != nil {
			return err
		}
		if created {
			s.log.Info("Badge awarded",
				zap.String("badge", badge.Key),
				zap.String("user", user.Username))
			s.award(badge.Key)
		}
	}
	return nil
}

// checkCleanCommitter requires a minimum count of conventional commits and a
// minimum atomicity ratio over the badge's trailing window.
func (s *Service) checkCleanCommitter(ctx context.Context, user *domain.User, badge *domain.Badge) (bool, error) {
	var criteria domain.WindowCriteria
	if err := json.Unmarshal(badge.Criteria, &criteria); err != nil {
		return false, fmt.Errorf("bad criteria for badge %s: %w", badge.Key, err)
	}
	validRule := findRule(criteria.Rules, "valid_commits")
	atomicityRule := findRule(criteria.Rules, "atomicity_rate")
	if validRule == nil || atomicityRule == nil {
		return false, fmt.Errorf("badge %s criteria missing required rules", badge.Key)
	}

	since := s.now().AddDate(0, 0, -criteria.DurationDays)
	entries, err := s.ledgers.FindByUserRulePrefixSince(ctx, user.ID, rules.CommitRulePrefix, since)
	if err != nil {
		return false, err
	}

	total := len(entries)
	var valid, atomic int
	for _, entry := range entries {
		switch entry.RuleKey {
		case validRule.RuleKey:
			valid++
		case atomicityRule.RuleKey:
			atomic++
		}
	}

	var atomicityRate float64
	if total > 0 {
		atomicityRate = float64(atomic) / float64(total)
	}
	return valid >= int(validRule.Target) && atomicityRate >= atomicityRule.Target, nil
}

// checkExpertReviewer requires a minimum number of review events plus a
// minimum number of valid corrections over the badge's trailing window.
func (s *Service) checkExpertReviewer(ctx context.Context, user *domain.User, badge *domain.Badge) (bool, error) {
	var criteria domain.WindowCriteria
	if err := json.Unmarshal(badge.Criteria, &criteria); err != nil {
		return false, fmt.Errorf("bad criteria for badge %s: %w", badge.Key, err)
	}
	reviewsRule := findRule(criteria.Rules, "total_reviews")
	correctionsRule := findRule(criteria.Rules, "valid_corrections")
	if reviewsRule == nil || correctionsRule == nil {
		return false, fmt.Errorf("badge %s criteria missing required rules", badge.Key)
	}

	since := s.now().AddDate(0, 0, -criteria.DurationDays)

	totalReviews, err := s.events.CountBySenderAndType(ctx, user.Username, reviewsRule.EventType, since)
	if err != nil {
		return false, err
	}
	if totalReviews < int64(reviewsRule.Target) {
		return false, nil
	}

	comments, err := s.events.FindBySenderAndType(ctx, user.Username,
		domain.KindPullRequestReviewComment.String(), since)
	if err != nil {
		return false, err
	}

	corrections, err := s.countCorrections(ctx, comments)
	if err != nil {
		return false, err
	}
	return corrections[user.Username] >= int(correctionsRule.Target), nil
}

// RunMonthlyEvaluation recomputes valid corrections for all users over the
// previous calendar month and awards the competition badge plus its point
// reward to the top scorer at or above the minimum target. The reward is
// granted only when the award row is new, so a re-run cannot double-pay.
func (s *Service) RunMonthlyEvaluation(ctx context.Context) error {
	badge, err := s.badges.GetByKey(ctx, BadgeQualityGuardian)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("Monthly competition badge not registered, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	var criteria domain.CompetitionCriteria
	if err := json.Unmarshal(badge.Criteria, &criteria); err != nil {
		return fmt.Errorf("bad criteria for badge %s: %w", badge.Key, err)
	}

	from, to := s.previousMonth()
	s.log.Info("Starting monthly competition evaluation",
		zap.Time("from", from), zap.Time("to", to))

	comments, err := s.events.FindByTypeBetween(ctx,
		domain.KindPullRequestReviewComment.String(), from, to)
	if err != nil {
		return err
	}

	corrections, err := s.countCorrections(ctx, comments)
	if err != nil {
		return err
	}

	winner, score := topScorer(corrections)
	if winner == "" || score < criteria.MinTarget {
		s.log.Info("No monthly competition winner above the minimum target",
			zap.Int("best_score", score),
			zap.Int("min_target", criteria.MinTarget))
		return nil
	}

	user, err := s.users.GetByUsername(ctx, winner)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("Monthly winner is not a registered user",
			zap.String("winner", winner))
		return nil
	}
	if err != nil {
		return err
	}

	created, err := s.badges.UpsertUserBadge(ctx, user.ID, badge.ID, s.now())
	if err != nil {
		return err
	}
	if !created {
		s.log.Info("Monthly winner already holds the badge",
			zap.String("winner", winner))
		return nil
	}

	intent := domain.NewIntent(user.ID, criteria.PointsReward, RuleBadgeReward, badge.Key,
		fmt.Sprintf("+%d pts for the %s badge", criteria.PointsReward, badge.Name))
	if _, err := s.points.Apply(ctx, intent); err != nil {
		return err
	}

	s.award(badge.Key)
	s.log.Info("Monthly competition badge awarded",
		zap.String("winner", winner),
		zap.Int("corrections", score))
	return nil
}

// previousMonth returns [first day of last month, first day of this month).
func (s *Service) previousMonth() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	return thisMonth.AddDate(0, -1, 0), thisMonth
}

// topScorer picks the highest correction count; ties break by ascending
// username so repeated runs agree on the winner.
func topScorer(corrections map[string]int) (string, int) {
	var winner string
	var best int
	for username, count := range corrections {
		if count > best || (count == best && count > 0 && (winner == "" || username < winner)) {
			winner = username
			best = count
		}
	}
	return winner, best
}

func findRule(ruleSet []domain.ThresholdRule, metric string) *domain.ThresholdRule {
	for i := range ruleSet {
		if ruleSet[i].Metric == metric {
			return &ruleSet[i]
		}
	}
	return nil
}

func (s *Service) award(badgeKey string) {
	if s.metrics != nil {
		s.metrics.BadgesAwarded.WithLabelValues(badgeKey).Inc()
	}
}
