// The scheduler binary exposes the two parameterless badge-evaluation entry
// points to an external cron. It runs one job per invocation and exits, so
// the cron controls serialization and the timezone of run times.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/badges"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/config"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/ledger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/logger"
	"github.com/Andrey-Ft/Backend-Git-Masters/internal/repository/postgres"
)

func main() {
	if len(os.Args) != 2 || (os.Args[1] != "daily" && os.Args[1] != "monthly") {
		fmt.Fprintln(os.Stderr, "usage: scheduler <daily|monthly>")
		os.Exit(2)
	}
	job := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		if err := log.Sync(); err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	db, err := postgres.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := postgres.InitSchema(db); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Badges.Timezone)
	if err != nil {
		log.Fatal("Invalid badges timezone", zap.String("timezone", cfg.Badges.Timezone), zap.Error(err))
	}

	userRepo := postgres.NewUserRepo(db, log)
	eventRepo := postgres.NewEventRepo(db, log)
	ledgerRepo := postgres.NewLedgerRepo(db, log)
	badgeRepo := postgres.NewBadgeRepo(db, log)

	ctx := context.Background()
	if err := badgeRepo.EnsureBadges(ctx, badges.DefaultBadges()); err != nil {
		log.Fatal("Failed to seed badge definitions", zap.Error(err))
	}

	ledgerSvc := ledger.NewService(ledgerRepo, nil, log)
	svc := badges.NewService(userRepo, eventRepo, ledgerRepo, badgeRepo, ledgerSvc, loc, nil, log)

	log.Info("Running badge evaluation", zap.String("job", job))
	switch job {
	case "daily":
		err = svc.RunDailyEvaluation(ctx)
	case "monthly":
		err = svc.RunMonthlyEvaluation(ctx)
	}
	if err != nil {
		log.Fatal("Badge evaluation failed", zap.String("job", job), zap.Error(err))
	}
	log.Info("Badge evaluation finished", zap.String("job", job))
}
