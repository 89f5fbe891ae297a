package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository"
)

// BadgeRepo implements repository.BadgeRepository on GORM.
type BadgeRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewBadgeRepo creates a new badge repository.
func NewBadgeRepo(db *gorm.DB, log *zap.Logger) *BadgeRepo {
	return &BadgeRepo{db: db, log: log}
}

// GetByKey fetches a badge definition by key.
func (r *BadgeRepo) GetByKey(ctx context.Context, key string) (*domain.Badge, error) {
	var badge domain.Badge
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch badge %s: %w", key, err)
	}
	return &badge, nil
}

// ListByKeys fetches badge definitions for the given keys.
func (r *BadgeRepo) ListByKeys(ctx context.Context, keys []string) ([]*domain.Badge, error) {
	var badges []*domain.Badge
	if err := r.db.WithContext(ctx).Where("key IN ?", keys).Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return badges, nil
}

// UpsertUserBadge awards a badge idempotently; the (user, badge) unique index
// makes repeat awards no-ops. Reports true when a new row was created.
func (r *BadgeRepo) UpsertUserBadge(ctx context.Context, userID uuid.UUID, badgeID uint, earnedAt time.Time) (bool, error) {
	award := domain.UserBadge{UserID: userID, BadgeID: badgeID, EarnedAt: earnedAt}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).
		Create(&award)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upsert badge %d for user %s: %w", badgeID, userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// EnsureBadges inserts any missing badge definitions by key.
func (r *BadgeRepo) EnsureBadges(ctx context.Context, badges []domain.Badge) error {
	for i := range badges {
		badge := badges[i]
		err := r.db.WithContext(ctx).
			Where(domain.Badge{Key: badge.Key}).
			Attrs(badge).
			FirstOrCreate(&badge).Error
		if err != nil {
			return fmt.Errorf("failed to ensure badge %s: %w", badge.Key, err)
		}
	}
	return nil
}
