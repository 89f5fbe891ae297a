package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// LedgerRepo implements repository.LedgerRepository on GORM.
type LedgerRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(db *gorm.DB, log *zap.Logger) *LedgerRepo {
	return &LedgerRepo{db: db, log: log}
}

// Apply appends the ledger entry and increments the user's balance in one
// transaction. The transaction is the only synchronization point for
// balances: concurrent writers for the same user serialize here, not on an
// in-process lock.
func (r *LedgerRepo) Apply(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		res := tx.Model(&domain.User{}).
			Where("id = ?", entry.UserID).
			Update("points_balance", gorm.Expr("points_balance + ?", entry.Points))
		if res.Error != nil {
			return fmt.Errorf("failed to update balance for user %s: %w", entry.UserID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("balance update matched no user %s", entry.UserID)
		}
		return nil
	})
}

// SumByRulePrefixSince sums a user's points for rule keys with the prefix.
func (r *LedgerRepo) SumByRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) (int, error) {
	var sum *int
	err := r.db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Select("SUM(points)").
		Where("user_id = ? AND rule_key LIKE ? AND created_at >= ?", userID, prefix+"%", since).
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s points for user %s: %w", prefix, userID, err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// FindReversibleByEntity lists reversible entries tied to an entity id.
func (r *LedgerRepo) FindReversibleByEntity(ctx context.Context, entityID string) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND is_reversible = ?", entityID, true).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reversible entries for %s: %w", entityID, err)
	}
	return entries, nil
}

// ExistsByRuleAndEntitySince reports whether any entry matches the exact rule
// key and entity id at or after since.
func (r *LedgerRepo) ExistsByRuleAndEntitySince(ctx context.Context, ruleKey, entityID string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("rule_key = ? AND entity_id = ? AND created_at >= ?", ruleKey, entityID, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s entry for %s: %w", ruleKey, entityID, err)
	}
	return count > 0, nil
}

// ExistsByUserRulePrefixAndEntity reports whether the user already has an
// entry with the rule-key prefix for the entity.
func (r *LedgerRepo) ExistsByUserRulePrefixAndEntity(ctx context.Context, userID uuid.UUID, prefix, entityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("user_id = ? AND rule_key LIKE ? AND entity_id = ?", userID, prefix+"%", entityID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s entry for user %s: %w", prefix, userID, err)
	}
	return count > 0, nil
}

// FindByUserRulePrefixSince lists a user's entries for rule keys with the
// prefix created at or after since.
func (r *LedgerRepo) FindByUserRulePrefixSince(ctx context.Context, userID uuid.UUID, prefix string, since time.Time) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND rule_key LIKE ? AND created_at >= ?", userID, prefix+"%", since).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries for user %s: %w", prefix, userID, err)
	}
	return entries, nil
}
