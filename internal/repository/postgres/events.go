package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
)

// EventRepo implements repository.EventRepository on GORM.
type EventRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewEventRepo creates a new event repository.
func NewEventRepo(db *gorm.DB, log *zap.Logger) *EventRepo {
	return &EventRepo{db: db, log: log}
}

// Insert persists a new event, mapping the delivery-id unique violation to
// repository.ErrDuplicateDelivery.
func (r *EventRepo) Insert(ctx context.Context, event *domain.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateDelivery
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetByDeliveryID fetches an event by delivery id.
func (r *EventRepo) GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).Where("delivery_id = ?", deliveryID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", deliveryID, err)
	}
	return &event, nil
}

// MarkProcessing transitions stored -> processing with a conditional update
// so only one worker wins under concurrent duplicate triggers.
func (r *EventRepo) MarkProcessing(ctx context.Context, deliveryID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("delivery_id = ? AND status = ?", deliveryID, domain.StatusStored).
		Update("status", domain.StatusProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark event %s processing: %w", deliveryID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetStatus moves an event to the given status.
func (r *EventRepo) SetStatus(ctx context.Context, deliveryID string, status domain.EventStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("delivery_id = ?", deliveryID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set status %s on event %s: %w", status, deliveryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountBySenderAndType counts events by sender and type since a point in time.
func (r *EventRepo) CountBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("sender_login = ? AND event_type = ? AND received_at >= ?", sender, eventType, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count %s events for %s: %w", eventType, sender, err)
	}
	return count, nil
}

// FindBySenderAndType lists events by sender and type since a point in time.
func (r *EventRepo) FindBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("sender_login = ? AND event_type = ? AND received_at >= ?", sender, eventType, since).
		Order("received_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s events for %s: %w", eventType, sender, err)
	}
	return events, nil
}

// FindByTypeBetween lists events of a type received in [from, to).
func (r *EventRepo) FindByTypeBetween(ctx context.Context, eventType string, from, to time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND received_at >= ? AND received_at < ?", eventType, from, to).
		Order("received_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s events: %w", eventType, err)
	}
	return events, nil
}

// FindPushesBySenders lists push events from the given senders after since.
func (r *EventRepo) FindPushesBySenders(ctx context.Context, senders []string, since time.Time) ([]*domain.Event, error) {
	if len(senders) == 0 {
		return nil, nil
	}
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND sender_login IN ? AND received_at > ?", "push", senders, since).
		Order("received_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pushes: %w", err)
	}
	return events, nil
}

// Ping checks if the database connection is alive.
func (r *EventRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
