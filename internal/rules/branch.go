package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

const (
	RuleBranchValidName        = "branch.creation.valid_name"
	RuleBranchDirectPush       = "branch.push.direct_push_penalty"
	RuleBranchForcePushPenalty = "branch.push.force_push_penalty"

	pointsValidBranchName  = 20
	pointsDirectPushFine   = -50
	pointsForcePushPenalty = -100
)

var validBranchNameRe = regexp.MustCompile(`^[A-Z]+-\d+_[a-z0-9]+_[a-z0-9-_]+$`)

var protectedRefs = map[string]bool{
	"refs/heads/main":    true,
	"refs/heads/develop": true,
}

// BranchEvaluator awards naming-convention points on branch creation and
// penalizes pushes to protected branches. Force pushes are penalized harder,
// non-reversibly and regardless of role.
type BranchEvaluator struct {
	log *zap.Logger
}

// NewBranchEvaluator creates the branch evaluator.
func NewBranchEvaluator(log *zap.Logger) *BranchEvaluator {
	return &BranchEvaluator{log: log}
}

func (e *BranchEvaluator) Name() string { return "branch" }

// Evaluate handles create, push, and delete events.
func (e *BranchEvaluator) Evaluate(ctx context.Context, event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	switch event.Kind() {
	case domain.KindCreate:
		return e.branchCreation(event, user)
	case domain.KindPush:
		return e.protectedBranchPush(event, user)
	case domain.KindDelete:
		// Post-merge cleanup scoring needs branch-lifecycle state this
		// system does not track.
		return nil, nil
	default:
		return nil, nil
	}
}

func (e *BranchEvaluator) branchCreation(event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.RefPayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}
	if payload.RefType != "branch" || !validBranchNameRe.MatchString(payload.Ref) {
		return nil, nil
	}

	intent := domain.NewIntent(user.ID, pointsValidBranchName, RuleBranchValidName, payload.Ref,
		fmt.Sprintf("+%d pts for creating branch with a valid name: %s", pointsValidBranchName, payload.Ref))
	return []domain.LedgerIntent{intent}, nil
}

func (e *BranchEvaluator) protectedBranchPush(event *domain.Event, user *domain.User) ([]domain.LedgerIntent, error) {
	var payload domain.PushPayload
	if err := domain.DecodePayload(event, &payload); err != nil {
		return nil, err
	}
	if !protectedRefs[payload.Ref] {
		return nil, nil
	}
	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")

	if payload.Forced {
		intent := domain.NewIntent(user.ID, pointsForcePushPenalty, RuleBranchForcePushPenalty, payload.After,
			fmt.Sprintf("%d pts for force-pushing to protected branch '%s'", pointsForcePushPenalty, branch))
		intent.Reversible = false
		return []domain.LedgerIntent{intent}, nil
	}

	if user.Role.Privileged() {
		return nil, nil
	}

	intent := domain.NewIntent(user.ID, pointsDirectPushFine, RuleBranchDirectPush, payload.After,
		fmt.Sprintf("%d pts for pushing directly to protected branch '%s'", pointsDirectPushFine, branch))
	return []domain.LedgerIntent{intent}, nil
}
