package main

import (
	"context"
	"log"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/infrastructure/database"
	"github.com/marioschiavon/uplink/internal/usecase"
	"github.com/marioschiavon/uplink/pkg/logger"
)

// sync-plans mirrors the Stripe price catalog into the plans table. Run it
// after editing products in the Stripe dashboard.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	stripe.Key = cfg.Stripe.SecretKey

	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("failed to run migrations", zap.Error(err))
	}
	repos := database.NewRepositories(db, zapLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count, err := usecase.NewPlanSync(repos.Plan, zapLogger).SyncStripePlans(ctx)
	if err != nil {
		zapLogger.Fatal("plan sync failed", zap.Error(err))
	}
	zapLogger.Info("plan sync complete", zap.Int("plans", count))
}
