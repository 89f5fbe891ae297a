package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/cache"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/metrics"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/queue"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
)

// ErrMalformedDelivery rejects deliveries missing the id or event type;
// nothing is persisted for them.
var ErrMalformedDelivery = errors.New("delivery id and event type are required")

// Service persists inbound events idempotently and hands accepted deliveries
// to the evaluation queue. The caller only ever sees the fast acknowledgment;
// evaluation outcomes are never surfaced synchronously.
type Service struct {
	events    repository.EventRepository
	users     repository.UserRepository
	dedup     cache.DeliveryCache
	publisher queue.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates the intake service. metrics may be nil in tests.
func NewService(
	events repository.EventRepository,
	users repository.UserRepository,
	dedup cache.DeliveryCache,
	publisher queue.Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *Service {
	if dedup == nil {
		dedup = cache.Noop{}
	}
	return &Service{
		events:    events,
		users:     users,
		dedup:     dedup,
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Ingest stores one delivery and enqueues it for evaluation. Duplicate
// delivery ids return the existing row unchanged and enqueue nothing, which
// guarantees at-most-once ledger effect per delivery. Ping events are
// acknowledged without persistence. The returned event is nil for pings.
func (s *Service) Ingest(ctx context.Context, payload []byte, deliveryID, eventType string) (*domain.Event, error) {
	if deliveryID == "" || eventType == "" {
		return nil, ErrMalformedDelivery
	}

	if domain.ParseEventKind(eventType) == domain.KindPing {
		s.log.Info("Ping received", zap.String("delivery_id", deliveryID))
		s.count(eventType, "ping")
		return nil, nil
	}

	// Fast path: a recently seen delivery id skips the insert entirely. Cache
	// errors fall through to the database constraint (fail open).
	seen, err := s.dedup.Seen(ctx, deliveryID)
	if err != nil {
		s.log.Warn("Dedup cache lookup failed, falling back to the database",
			zap.String("delivery_id", deliveryID), zap.Error(err))
	} else if seen {
		existing, err := s.events.GetByDeliveryID(ctx, deliveryID)
		if err == nil {
			s.log.Info("Duplicate delivery short-circuited by cache",
				zap.String("delivery_id", deliveryID))
			s.count(eventType, "duplicate")
			return existing, nil
		}
		// Cache claims seen but the row is missing; trust the database.
	}

	sender := domain.ExtractSender(payload)
	event := &domain.Event{
		DeliveryID:   deliveryID,
		EventType:    eventType,
		Action:       domain.ExtractAction(payload),
		RepoFullName: domain.ExtractRepo(payload),
		SenderLogin:  sender,
		Payload:      payload,
		Status:       domain.StatusStored,
		ReceivedAt:   s.now(),
	}

	if err := s.events.Insert(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateDelivery) {
			existing, getErr := s.events.GetByDeliveryID(ctx, deliveryID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load duplicate delivery %s: %w", deliveryID, getErr)
			}
			s.log.Info("Duplicate delivery ignored",
				zap.String("delivery_id", deliveryID))
			s.count(eventType, "duplicate")
			return existing, nil
		}
		return nil, fmt.Errorf("failed to store delivery %s: %w", deliveryID, err)
	}

	if err := s.dedup.Mark(ctx, deliveryID); err != nil {
		s.log.Warn("Dedup cache mark failed",
			zap.String("delivery_id", deliveryID), zap.Error(err))
	}

	if _, err := s.resolveSender(ctx, sender); err != nil {
		s.log.Warn("Sender not registered, event stored but not queued",
			zap.String("delivery_id", deliveryID),
			zap.String("sender", sender))
		if err := s.events.SetStatus(ctx, deliveryID, domain.StatusFailedUserNotFound); err != nil {
			return nil, err
		}
		event.Status = domain.StatusFailedUserNotFound
		s.count(eventType, "unknown_sender")
		return event, nil
	}

	// Blocking enqueue is the back-pressure point; the id is handed to the
	// worker pool and this call returns without waiting for evaluation.
	if err := s.publisher.Publish(ctx, deliveryID); err != nil {
		return nil, fmt.Errorf("failed to queue delivery %s for evaluation: %w", deliveryID, err)
	}

	s.log.Info("Delivery accepted",
		zap.String("delivery_id", deliveryID),
		zap.String("event_type", eventType),
		zap.String("sender", sender))
	s.count(eventType, "accepted")
	return event, nil
}

func (s *Service) resolveSender(ctx context.Context, sender string) (*domain.User, error) {
	if sender == "" {
		return nil, repository.ErrNotFound
	}
	return s.users.GetByUsername(ctx, sender)
}

func (s *Service) count(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(eventType, outcome).Inc()
	}
}
