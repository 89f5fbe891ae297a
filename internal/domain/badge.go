package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Badge is an achievement definition. Criteria is a JSON document interpreted
// by the badge evaluator registered for the badge key.
type Badge struct {
	ID          uint           `gorm:"primaryKey"`
	Key         string         `gorm:"uniqueIndex;size:64;not null"`
	Name        string         `gorm:"size:255;not null"`
	Description string         `gorm:"type:text"`
	Criteria    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}

// TableName implements the GORM tabler interface.
func (Badge) TableName() string { return "badges" }

// UserBadge is an award record, unique per (user, badge).
type UserBadge struct {
	ID       uint      `gorm:"primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_user_badge,priority:1"`
	BadgeID  uint      `gorm:"not null;uniqueIndex:ux_user_badge,priority:2"`
	EarnedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (UserBadge) TableName() string { return "user_badges" }

// ThresholdRule is one metric requirement inside badge criteria.
type ThresholdRule struct {
	Metric    string  `json:"metric"`
	RuleKey   string  `json:"ruleKey,omitempty"`
	EventType string  `json:"eventType,omitempty"`
	Target    float64 `json:"target"`
}

// WindowCriteria describes daily badges evaluated over a trailing window.
type WindowCriteria struct {
	DurationDays int             `json:"durationDays"`
	Rules        []ThresholdRule `json:"rules"`
}

// CompetitionCriteria describes the monthly competition badge.
type CompetitionCriteria struct {
	MinTarget    int `json:"min_target"`
	PointsReward int `json:"points_reward"`
}
