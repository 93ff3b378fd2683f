package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handler "github.com/marioschiavon/uplink/internal/adapter/handler/http"
	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/middleware/auth"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Session      *handler.SessionHandler
	Checkout     *handler.CheckoutHandler
	Plan         *handler.PlanHandler
	Subscription *handler.SubscriptionHandler
	Stripe       *handler.StripeWebhookHandler
	MercadoPago  *handler.MercadoPagoWebhookHandler
	Gateway      *handler.GatewayWebhookHandler
	Monitoring   *handler.MonitoringHandler
}

// Server is the HTTP front of the service.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer builds the echo instance, mounts middleware and registers routes.
func NewServer(cfg *config.Config, handlers Handlers, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(requestLogger(logger))

	s := &Server{echo: e, cfg: cfg, logger: logger}
	s.routes(handlers)
	return s
}

func (s *Server) routes(h Handlers) {
	e := s.echo

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "ok",
			"service": s.cfg.Service.Name,
			"version": s.cfg.Service.Version,
		})
	})

	// Provider and gateway callbacks authenticate by signature or by obscurity
	// of the instance name, never by JWT.
	e.POST("/webhook/stripe", h.Stripe.Handle)
	e.POST("/webhook/mercadopago", h.MercadoPago.Handle)
	e.POST("/webhook/gateway/:instance", h.Gateway.Handle)

	api := e.Group("/api/v1")
	api.Use(auth.JWTMiddleware(auth.JWTConfig{
		Secret:    s.cfg.JWT.Secret,
		Logger:    s.logger,
		SkipPaths: []string{"/api/v1/plans"},
	}))

	api.GET("/plans", h.Plan.List)

	api.GET("/sessions", h.Session.List)
	api.POST("/sessions", h.Session.Create)
	api.GET("/sessions/:id", h.Session.Get)
	api.POST("/sessions/:id/start", h.Session.Start)
	api.POST("/sessions/:id/qr/refresh", h.Session.RefreshQR)
	api.POST("/sessions/:id/close", h.Session.Close)
	api.DELETE("/sessions/:id", h.Session.Delete)
	api.PUT("/sessions/:id/webhook", h.Session.ConfigureWebhook)
	api.POST("/sessions/:id/messages/text", h.Session.SendText)
	api.POST("/sessions/:id/messages/media", h.Session.SendMedia)
	api.GET("/sessions/:id/subscription", h.Subscription.BySession)

	api.POST("/checkout", h.Checkout.Create)
	api.POST("/checkout/portal", h.Checkout.Portal)

	admin := api.Group("/monitoring", auth.RequireRole(auth.RoleAdmin, s.logger))
	admin.GET("/tasks", h.Monitoring.Tasks)
	admin.GET("/status", h.Monitoring.Status)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.HTTP.Host, s.cfg.Server.HTTP.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}
