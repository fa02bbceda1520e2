// Package api serves the dashboard API: login, status, history, manual
// buys, settings, live events and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/engine"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/settings"
)

// Engine is the part of engine.Service the API calls
type Engine interface {
	Status(ctx context.Context) engine.Status
	RecentTransactions(n int) []ledger.Transaction
	TriggerManualBuy(ctx context.Context, amountOverride *decimal.Decimal) (ledger.Transaction, error)
	Balances(ctx context.Context) ([]broker.Balance, error)
	Settings() settings.Settings
	UpdateSettings(ctx context.Context, u settings.Update) (settings.Settings, error)
}

var _ Engine = (*engine.Service)(nil)

// Config wires a Server
type Config struct {
	Engine Engine
	Auth   *Authenticator
	// Events serves the live event stream (optional)
	Events http.Handler
	// Gatherer backs /metrics (optional)
	Gatherer prometheus.Gatherer
	// SecureCookies marks the session cookie Secure
	SecureCookies bool
	Logger        logger.Logger
}

// Server is the HTTP API
type Server struct {
	echo   *echo.Echo
	engine Engine
	auth   *Authenticator
	secure bool
	log    logger.Logger
	http   *http.Server
}

// requestTimeout bounds handlers that call the exchange
const requestTimeout = 30 * time.Second

// NewServer builds the router
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.InvalidConfigurationf("api: engine is required")
	}
	if cfg.Auth == nil {
		return nil, errors.InvalidConfigurationf("api: authenticator is required")
	}

	s := &Server{
		echo:   echo.New(),
		engine: cfg.Engine,
		auth:   cfg.Auth,
		secure: cfg.SecureCookies,
		log:    logger.OrDefault(cfg.Logger).WithComponent(logger.ComponentAPI),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes(cfg)
	return s, nil
}

func (s *Server) routes(cfg Config) {
	e := s.echo

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				s.log.Warn("Request failed", append(args, "error", v.Error)...)
				return nil
			}
			s.log.Debug("Request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("64K"))

	e.GET("/health", s.health)
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/logout", s.logout)
	}

	protected := api.Group("", s.auth.Middleware)
	{
		protected.GET("/status", s.status)
		protected.GET("/transactions", s.transactions)
		protected.POST("/manual-buy", s.manualBuy)
		protected.GET("/balance", s.balance)
		protected.GET("/settings", s.getSettings)
		protected.PUT("/settings", s.updateSettings)
		if cfg.Events != nil {
			protected.GET("/events", echo.WrapHandler(cfg.Events))
		}
	}
}

// ServeHTTP lets the server be mounted or tested without listening
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.Info("API server listening", "address", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "api server")
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
