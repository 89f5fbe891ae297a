package postgres

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/config"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// Open connects to Postgres and configures the pool. TranslateError is on so
// unique-constraint violations surface as gorm.ErrDuplicatedKey regardless of
// driver.
func Open(cfg *config.Database, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Postgres connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return db, nil
}

// InitSchema migrates all tables (creates them if they don't exist).
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Event{},
		&domain.User{},
		&domain.LedgerEntry{},
		&domain.Badge{},
		&domain.UserBadge{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
