package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRuleVersion stamps ledger entries whose intent did not pin one.
const DefaultRuleVersion = "v1.0"

// LedgerEntry is an immutable record of one point grant or penalty tied to a
// rule and a causal entity. The ledger is append-only and is the sole audit
// trail for balances.
type LedgerEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_ledger_user_rule,priority:1"`
	Points       int       `gorm:"not null"`
	RuleKey      string    `gorm:"size:64;not null;index:idx_ledger_user_rule,priority:2"`
	EntityID     string    `gorm:"size:255;index"`
	RuleVersion  string    `gorm:"size:16;not null"`
	Notes        string    `gorm:"type:text"`
	IsReversible bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (LedgerEntry) TableName() string { return "point_ledger" }

// BeforeCreate assigns an id when the caller did not.
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// LedgerIntent is a point mutation computed by a rule evaluator. Evaluators
// never write ledger rows themselves; the engine hands intents to the ledger
// service in evaluation order.
type LedgerIntent struct {
	UserID      uuid.UUID
	Points      int
	RuleKey     string
	EntityID    string
	RuleVersion string
	Notes       string
	Reversible  bool
}

// NewIntent builds a reversible intent with the default rule version.
func NewIntent(userID uuid.UUID, points int, ruleKey, entityID, notes string) LedgerIntent {
	return LedgerIntent{
		UserID:      userID,
		Points:      points,
		RuleKey:     ruleKey,
		EntityID:    entityID,
		RuleVersion: DefaultRuleVersion,
		Notes:       notes,
		Reversible:  true,
	}
}
