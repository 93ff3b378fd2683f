package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	adapterrepo "github.com/marioschiavon/uplink/internal/adapter/repository"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// Repositories bundles every repository implementation for wiring.
type Repositories struct {
	Session      repository.SessionRepository
	Organization repository.OrganizationRepository
	Subscription repository.SubscriptionRepository
	Plan         repository.PlanRepository
	WebhookEvent repository.WebhookEventRepository
}

// NewRepositories creates all repositories over one database connection.
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Session:      adapterrepo.NewSessionRepository(db, logger),
		Organization: adapterrepo.NewOrganizationRepository(db, logger),
		Subscription: adapterrepo.NewSubscriptionRepository(db, logger),
		Plan:         adapterrepo.NewPlanRepository(db, logger),
		WebhookEvent: adapterrepo.NewWebhookEventRepository(db, logger),
	}
}
