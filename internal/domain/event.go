package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EventStatus tracks an event through the processing state machine.
// Transitions only move forward; there is no automatic re-entry.
type EventStatus string

const (
	StatusStored             EventStatus = "stored"
	StatusProcessing         EventStatus = "processing"
	StatusProcessedOK        EventStatus = "processed_ok"
	StatusFailedUserNotFound EventStatus = "failed_user_not_found"
	StatusFailedRuleError    EventStatus = "failed_rule_error"
)

// EventKind is the dispatch key for rule evaluation, parsed once from the
// wire event type instead of string-matched throughout the engine.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindPing
	KindPush
	KindCreate
	KindDelete
	KindPullRequest
	KindPullRequestReview
	KindPullRequestReviewComment
	KindRelease
)

// ParseEventKind maps a wire event type to its EventKind.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case "ping":
		return KindPing
	case "push":
		return KindPush
	case "create":
		return KindCreate
	case "delete":
		return KindDelete
	case "pull_request":
		return KindPullRequest
	case "pull_request_review":
		return KindPullRequestReview
	case "pull_request_review_comment":
		return KindPullRequestReviewComment
	case "release":
		return KindRelease
	default:
		return KindUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPush:
		return "push"
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	case KindPullRequest:
		return "pull_request"
	case KindPullRequestReview:
		return "pull_request_review"
	case KindPullRequestReviewComment:
		return "pull_request_review_comment"
	case KindRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Event is an inbound activity event, stored verbatim for replay and audit.
// Rows are created once on receipt and mutated only through the status field.
type Event struct {
	ID           uint           `gorm:"primaryKey"`
	DeliveryID   string         `gorm:"uniqueIndex;size:64;not null"`
	EventType    string         `gorm:"size:64;not null;index"`
	Action       string         `gorm:"size:64"`
	RepoFullName string         `gorm:"size:255"`
	SenderLogin  string         `gorm:"size:255;index"`
	Payload      datatypes.JSON `gorm:"not null"`
	Status       EventStatus    `gorm:"size:32;not null;default:stored;index"`
	ReceivedAt   time.Time      `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Event) TableName() string { return "events" }

// Kind returns the parsed dispatch kind for the stored event type.
func (e *Event) Kind() EventKind { return ParseEventKind(e.EventType) }
