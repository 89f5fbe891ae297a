package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/ledger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/metrics"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/queue"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/rules"
)

// Engine consumes delivery ids and drives each event through the processing
// state machine: stored -> processing -> terminal. Separate events may
// evaluate concurrently; the evaluators of one event run sequentially so its
// ledger writes stay ordered.
type Engine struct {
	events   repository.EventRepository
	users    repository.UserRepository
	ledger   ledger.Applier
	registry rules.Registry
	consumer queue.Consumer
	workers  int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New creates the evaluation engine. metrics may be nil in tests.
func New(
	events repository.EventRepository,
	users repository.UserRepository,
	applier ledger.Applier,
	registry rules.Registry,
	consumer queue.Consumer,
	workers int,
	m *metrics.Metrics,
	log *zap.Logger,
) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		events:   events,
		users:    users,
		ledger:   applier,
		registry: registry,
		consumer: consumer,
		workers:  workers,
		metrics:  m,
		log:      log,
	}
}

// Start runs the worker pool until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(e.workers)

	for i := 0; i < e.workers; i++ {
		go func(worker int) {
			defer wg.Done()
			for {
				deliveryID, err := e.consumer.Receive(ctx)
				if err != nil {
					e.log.Info("Worker shutting down",
						zap.Int("worker", worker))
					return
				}
				e.Process(ctx, deliveryID)
			}
		}(i)
	}

	wg.Wait()
}

// Process evaluates one delivery. Failures terminate only this event; the
// error return exists for tests and operational tooling, callers in the
// worker loop ignore it.
func (e *Engine) Process(ctx context.Context, deliveryID string) error {
	event, err := e.events.GetByDeliveryID(ctx, deliveryID)
	if err != nil {
		e.log.Error("Failed to load event for evaluation",
			zap.String("delivery_id", deliveryID), zap.Error(err))
		return err
	}
	if event.Status != domain.StatusStored {
		return nil
	}

	// Conditional update: only one worker wins the stored -> processing
	// transition under concurrent duplicate triggers.
	claimed, err := e.events.MarkProcessing(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	user, err := e.users.GetByUsername(ctx, event.SenderLogin)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("Sender not registered, marking event terminal",
			zap.String("delivery_id", deliveryID),
			zap.String("sender", event.SenderLogin))
		return e.finish(ctx, deliveryID, domain.StatusFailedUserNotFound)
	}
	if err != nil {
		return e.fail(ctx, deliveryID, err)
	}

	for _, evaluator := range e.registry[event.Kind()] {
		intents, err := evaluator.Evaluate(ctx, event, user)
		if err != nil {
			e.log.Error("Rule evaluation failed",
				zap.String("delivery_id", deliveryID),
				zap.String("rule", evaluator.Name()),
				zap.Error(err))
			return e.fail(ctx, deliveryID, err)
		}
		for _, intent := range intents {
			if _, err := e.ledger.Apply(ctx, intent); err != nil {
				// Ledger failures are fatal for the owning event, never
				// swallowed.
				return e.fail(ctx, deliveryID, err)
			}
		}
	}

	e.log.Info("Event evaluated",
		zap.String("delivery_id", deliveryID),
		zap.String("event_type", event.EventType),
		zap.String("sender", event.SenderLogin))
	return e.finish(ctx, deliveryID, domain.StatusProcessedOK)
}

func (e *Engine) fail(ctx context.Context, deliveryID string, cause error) error {
	if err := e.finish(ctx, deliveryID, domain.StatusFailedRuleError); err != nil {
		return err
	}
	return fmt.Errorf("evaluation of delivery %s failed: %w", deliveryID, cause)
}

func (e *Engine) finish(ctx context.Context, deliveryID string, status domain.EventStatus) error {
	if err := e.events.SetStatus(ctx, deliveryID, status); err != nil {
		e.log.Error("Failed to record terminal status",
			zap.String("delivery_id", deliveryID),
			zap.String("status", string(status)),
			zap.Error(err))
		return err
	}
	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(string(status)).Inc()
	}
	return nil
}
