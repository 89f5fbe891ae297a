package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

const (
	RuleReviewSubmission = "review.submission"

	// ReviewRulePrefix groups review rule keys for the per-PR idempotency
	// lookup.
	ReviewRulePrefix = "review."

	pointsConstructiveReview = 10
	pointsCategoryTagBonus   = 20
)

// categoryTags are the recognized review categories; a changes-requested body
// naming one earns the bonus.
var categoryTags = []string{"#Design", "#Style", "#Testing", "#Security", "#Performance"}

// ReviewEvaluator awards one constructive-review entry per (reviewer, PR),
// with a bonus for categorized change requests.
type ReviewEvaluator struct {
	ledger LedgerReader
	log    *zap.Logger
}

// NewReviewEvaluator creates the review evaluator.
func NewReviewEvaluator(ledger LedgerReader, log *zap.Logger) *ReviewEvaluator {
	return &ReviewEvaluator{ledger: ledger, log: log}
}

func (e *ReviewEvaluator) Name() string { return "review" }

// Evaluate handles submitted reviews.
func (e *ReviewEvaluator) Evaluate(ctx context.Context, event *domain.Event, reviewer *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.ReviewPayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}
	if payload.Action != "submitted" {
		return nil, nil
	}

	state := payload.Review.State
	if state != "approved" && state != "changes_requested" {
		return nil, nil
	}

	prID := strconv.FormatInt(payload.PullRequest.ID, 10)
	exists, err := e.ledger.ExistsByUserRulePrefixAndEntity(ctx, reviewer.ID, ReviewRulePrefix, prID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	points := pointsConstructiveReview
	notes := []string{fmt.Sprintf("+%d pts for a review on PR #%d", pointsConstructiveReview, payload.PullRequest.Number)}

	if state == "changes_requested" && payload.Review.Body != "" {
		if tag := firstCategoryTag(payload.Review.Body); tag != "" {
			points += pointsCategoryTagBonus
			notes = append(notes, fmt.Sprintf("+%d pts for using the '%s' tag", pointsCategoryTagBonus, tag))
		}
	}

	intent := domain.NewIntent(reviewer.ID, points, RuleReviewSubmission, prID, strings.Join(notes, ", "))
	return []domain.LedgerIntent{intent}, nil
}

func firstCategoryTag(body string) string {
	for _, tag := range categoryTags {
		if strings.Contains(body, tag) {
			return tag
		}
	}
	return ""
}
