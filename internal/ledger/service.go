package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/metrics"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
)

// Applier is the write surface the engine and badge jobs depend on.
type Applier interface {
	Apply(ctx context.Context, intent domain.LedgerIntent) (*domain.LedgerEntry, error)
}

// Service turns ledger intents into committed entries. It is the only
// component that writes point mutations; every evaluator delegates here.
type Service struct {
	repo    repository.LedgerRepository
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewService creates a new ledger service. metrics may be nil in tests.
func NewService(repo repository.LedgerRepository, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{repo: repo, metrics: m, log: log}
}

// Apply persists one intent: insert the immutable entry and increment the
// user's balance atomically. Zero-point intents are no-ops. Failures
// propagate; callers must treat them as fatal for the owning event.
func (s *Service) Apply(ctx context.Context, intent domain.LedgerIntent) (*domain.LedgerEntry, error) {
	if intent.Points == 0 {
		return nil, nil
	}

	entry := &domain.LedgerEntry{
		UserID:       intent.UserID,
		Points:       intent.Points,
		RuleKey:      intent.RuleKey,
		EntityID:     intent.EntityID,
		RuleVersion:  intent.RuleVersion,
		Notes:        intent.Notes,
		IsReversible: intent.Reversible,
	}
	if entry.RuleVersion == "" {
		entry.RuleVersion = domain.DefaultRuleVersion
	}

	if err := s.repo.Apply(ctx, entry); err != nil {
		s.log.Error("Point transaction failed",
			zap.String("user_id", intent.UserID.String()),
			zap.String("rule_key", intent.RuleKey),
			zap.Int("points", intent.Points),
			zap.Error(err))
		return nil, fmt.Errorf("failed to apply %d points for rule %s: %w", intent.Points, intent.RuleKey, err)
	}

	if s.metrics != nil {
		s.metrics.PointsApplied.WithLabelValues(intent.RuleKey).Inc()
	}
	s.log.Info("Points applied",
		zap.String("user_id", intent.UserID.String()),
		zap.String("rule_key", intent.RuleKey),
		zap.Int("points", intent.Points))

	return entry, nil
}
