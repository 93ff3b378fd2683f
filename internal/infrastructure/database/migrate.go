package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// Migrate runs database migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	err := db.AutoMigrate(
		&model.Organization{},
		&model.Session{},
		&model.Subscription{},
		&model.Plan{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func createExtensions(db *gorm.DB) error {
	// gen_random_uuid() requires pgcrypto on Postgres < 13.
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error
}

// createCustomIndexes creates indexes GORM doesn't handle automatically.
func createCustomIndexes(db *gorm.DB) error {
	// At most one active subscription per session.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_active_subscription_per_session ON subscriptions (session_id) WHERE status = 'active'`).Error; err != nil {
		return err
	}

	// Operator follow-up queries scan failed reconciliations by time.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_failed ON webhook_events (created_at) WHERE processing_error <> ''`).Error; err != nil {
		return err
	}

	return nil
}
