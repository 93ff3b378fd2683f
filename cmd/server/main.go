package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	handler "github.com/marioschiavon/uplink/internal/adapter/handler/http"
	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/infrastructure/cache"
	"github.com/marioschiavon/uplink/internal/infrastructure/database"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
	httpserver "github.com/marioschiavon/uplink/internal/infrastructure/http"
	"github.com/marioschiavon/uplink/internal/infrastructure/mercadopago"
	"github.com/marioschiavon/uplink/internal/lifecycle"
	"github.com/marioschiavon/uplink/internal/notify"
	"github.com/marioschiavon/uplink/internal/usecase"
	"github.com/marioschiavon/uplink/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting uplink",
		zap.String("environment", cfg.Service.Environment),
		zap.String("version", cfg.Service.Version))

	stripe.Key = cfg.Stripe.SecretKey

	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("failed to run migrations", zap.Error(err))
	}
	repos := database.NewRepositories(db, zapLogger)

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	dedupe := cache.NewEventDedupeStore(redisClient)

	cfg.Lifecycle.Defaults()

	gw := gateway.NewClient(cfg.Gateway, zapLogger)
	mp := mercadopago.NewClient(cfg.MercadoPago, zapLogger)
	mailer := notify.NewMailer(cfg.SMTP, zapLogger)

	manager := lifecycle.NewManager(gw, repos.Session, cfg.Lifecycle, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		zapLogger.Fatal("failed to start lifecycle manager", zap.Error(err))
	}

	sessions := usecase.NewSessionService(
		repos.Session, repos.Organization, repos.Subscription,
		manager, gw, cfg.Service.PublicURL, zapLogger)
	checkout := usecase.NewCheckoutService(
		repos.Session, repos.Subscription, repos.Plan,
		cfg.Service.ClientURL, zapLogger)
	gate := usecase.NewSubscriptionGate(
		repos.Session, repos.Subscription, repos.Organization, repos.WebhookEvent,
		dedupe, gw, manager, mailer, zapLogger)
	forwarder := usecase.NewEventForwarder(cfg.Lifecycle.ForwardTimeout, zapLogger)

	server := httpserver.NewServer(cfg, httpserver.Handlers{
		Session:      handler.NewSessionHandler(sessions, zapLogger),
		Checkout:     handler.NewCheckoutHandler(checkout, zapLogger),
		Plan:         handler.NewPlanHandler(repos.Plan, zapLogger),
		Subscription: handler.NewSubscriptionHandler(repos.Session, repos.Subscription, zapLogger),
		Stripe:       handler.NewStripeWebhookHandler(gate, cfg.Stripe.WebhookSecret, zapLogger),
		MercadoPago:  handler.NewMercadoPagoWebhookHandler(gate, mp, zapLogger),
		Gateway:      handler.NewGatewayWebhookHandler(repos.Session, forwarder, zapLogger),
		Monitoring:   handler.NewMonitoringHandler(manager, cfg.Service.Version),
	}, zapLogger)

	go func() {
		if err := server.Start(); err != nil {
			zapLogger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("http shutdown failed", zap.Error(err))
	}
	manager.Stop()

	zapLogger.Info("shutdown complete")
}
