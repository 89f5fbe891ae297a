package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role controls protected-branch exemptions.
type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleIntegrator Role = "integrator"
	RoleAdmin      Role = "admin"
)

// Privileged reports whether the role may push directly to protected branches.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleIntegrator
}

// User is a scored participant. PointsBalance is derived state mutated only
// by ledger writes; it must equal the sum of the user's ledger entries.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username      string    `gorm:"uniqueIndex;size:255;not null"`
	Role          Role      `gorm:"size:32;not null;default:developer"`
	PointsBalance int       `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName implements the GORM tabler interface.
func (User) TableName() string { return "users" }

// BeforeCreate assigns an id when the caller did not.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
