package rules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

const (
	RuleSemanticRelease = "release.semantic.creation"

	pointsSemanticRelease = 50
)

var semanticVersionRe = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)

// ReleaseEvaluator awards a bonus for publishing a release with a semantic
// version tag and non-empty notes.
type ReleaseEvaluator struct {
	log *zap.Logger
}

// NewReleaseEvaluator creates the release evaluator.
func NewReleaseEvaluator(log *zap.Logger) *ReleaseEvaluator {
	return &ReleaseEvaluator{log: log}
}

func (e *ReleaseEvaluator) Name() string { return "release" }

// Evaluate handles published releases.
func (e *ReleaseEvaluator) Evaluate(ctx context.Context, event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.ReleasePayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}
	if payload.Action != "published" {
		return nil, nil
	}

	release := payload.Release
	if !semanticVersionRe.MatchString(release.TagName) || release.Body == "" {
		return nil, nil
	}

	intent := domain.NewIntent(user.ID, pointsSemanticRelease, RuleSemanticRelease,
		strconv.FormatInt(release.ID, 10),
		fmt.Sprintf("+%d pts for publishing semantic release %s with a changelog", pointsSemanticRelease, release.TagName))
	return []domain.LedgerIntent{intent}, nil
}
