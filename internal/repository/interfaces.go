package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateDelivery is returned when an event insert hits the delivery-id
// unique constraint. It is not a failure: the caller fetches the existing row.
var ErrDuplicateDelivery = errors.New("duplicate delivery id")

// EventRepository defines storage operations for inbound events.
type EventRepository interface {
	// Insert persists a new event. Returns ErrDuplicateDelivery when the
	// delivery id is already stored.
	Insert(ctx context.Context, event *domain.Event) error

	// GetByDeliveryID fetches an event by its delivery id.
	GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.Event, error)

	// MarkProcessing performs the conditional stored -> processing transition.
	// It reports false when the event was not in stored, which means another
	// worker owns it or it already reached a terminal state.
	MarkProcessing(ctx context.Context, deliveryID string) (bool, error)

	// SetStatus moves an event to the given status.
	SetStatus(ctx context.Context, deliveryID string, status domain.EventStatus) error

	// CountBySenderAndType counts events by sender and type received at or
	// after since.
	CountBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) (int64, error)

	// FindBySenderAndType lists events by sender and type received at or
	// after since, oldest first.
	FindBySenderAndType(ctx context.Context, sender, eventType string, since time.Time) ([]*domain.Event, error)

	// FindByTypeBetween lists events of a type received in [from, to),
	// oldest first.
	FindByTypeBetween(ctx context.Context, eventType string, from, to time.Time) ([]*domain.Event, error)

	// FindPushesBySenders lists push events from any of the given senders
	// received after since. One batched lookup backs the corrections
	// aggregation; matching happens in memory.
	FindPushesBySenders(ctx context.Context, senders []string, since time.Time) ([]*domain.Event, error)

	// Ping checks the storage connection.
	Ping(ctx context.Context) error
}

// UserRepository defines read access to the user identity store.
type UserRepository interface {
	// GetByUsername fetches a user by login. Returns ErrNotFound when the
	// sender is unknown.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// List returns all users.
	List(ctx context.Context) ([]*domain.User, error)
}

// LedgerRepository is the sole writer of point mutations plus the read
// operations the rule evaluators and badge jobs need.
type LedgerRepository interface {
	// Apply inserts the entry and increments the user's balance by the same
	// amount inside one transaction; both succeed or both roll back.
	Apply(ctx context.Context, entry *domain.LedgerEntry) error

	// SumByRulePrefixSince sums a user's points for rule keys with the given
	// prefix created at or after since.
	SumByRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) (int, error)

	// FindReversibleByEntity lists reversible entries tied to an entity id.
	FindReversibleByEntity(ctx context.Context, entityID string) ([]*domain.LedgerEntry, error)

	// ExistsByRuleAndEntitySince reports whether any entry with the exact
	// rule key and entity id exists at or after since, for any user.
	ExistsByRuleAndEntitySince(ctx context.Context, ruleKey, entityID string, since time.Time) (bool, error)

	// ExistsByUserRulePrefixAndEntity reports whether the user already has an
	// entry with the rule-key prefix for the entity id.
	ExistsByUserRulePrefixAndEntity(ctx context.Context, userID uuid.UUID, prefix, entityID string) (bool, error)

	// FindByUserRulePrefixSince lists a user's entries for rule keys with the
	// given prefix created at or after since.
	FindByUserRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) ([]*domain.LedgerEntry, error)
}

// BadgeRepository defines storage operations for badges and awards.
type BadgeRepository interface {
	// GetByKey fetches a badge definition by key.
	GetByKey(ctx context.Context, key string) (*domain.Badge, error)

	// ListByKeys fetches badge definitions for the given keys.
	ListByKeys(ctx context.Context, keys []string) ([]*domain.Badge, error)

	// UpsertUserBadge awards a badge idempotently. It reports true when a new
	// award row was created.
	UpsertUserBadge(ctx context.Context, userID uuid.UUID, badgeID uint, earnedAt time.Time) (bool, error)

	// EnsureBadges inserts any missing badge definitions by key.
	EnsureBadges(ctx context.Context, badges []domain.Badge) error
}
