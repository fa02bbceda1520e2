package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/autobuy/internal/api"
	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/config"
	"github.com/muaviaUsmani/autobuy/internal/engine"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/metrics"
	"github.com/muaviaUsmani/autobuy/internal/notify"
	"github.com/muaviaUsmani/autobuy/internal/scheduler"
	"github.com/muaviaUsmani/autobuy/internal/settings"
)

const (
	redisConnectAttempts = 5
	ledgerMirrorTTL      = 90 * 24 * time.Hour
)

// app holds every component of a running process
type app struct {
	cfg *config.Config
	log logger.Logger

	redis   *redis.Client
	pg      *pgxpool.Pool
	journal *ledger.Journal
	hub     *notify.Hub

	engine   *engine.Service
	api      *api.Server
	registry *prometheus.Registry
	pprof    *http.Server
}

type appOptions struct {
	// serve builds the API server and the live event hub
	serve bool
}

// newApp wires the components described by cfg. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	base, err := settings.FromEnv()
	if err != nil {
		return nil, err
	}

	store, err := a.settingsStore(ctx)
	if err != nil {
		return nil, err
	}
	current, err := store.Load(ctx, base)
	if err != nil {
		return nil, err
	}

	gateway, err := a.gateway(current)
	if err != nil {
		return nil, err
	}

	sched := scheduler.Options{
		TickInterval:  cfg.SchedulerTickInterval,
		CheckInterval: cfg.OrderCheckInterval,
		LockTTL:       cfg.BuyLockTTL,
		Logger:        log,
	}
	var sinks []ledger.Sink

	if cfg.RedisURL != "" {
		a.redis, err = connectWithRetry(ctx, cfg.RedisURL, redisConnectAttempts, log)
		if err != nil {
			return nil, err
		}
		sched.StateStore = scheduler.NewRedisStateStore(a.redis)
		locker := scheduler.NewRedisLocker(a.redis)
		sched.Locker = locker
		sinks = append(sinks, ledger.NewRedisMirror(a.redis, ledgerMirrorTTL))
		log.Info("Redis connected", "instance_id", locker.InstanceID())
	}

	if cfg.JournalPath != "" {
		a.journal, err = ledger.OpenJournal(ctx, cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.journal)
	}

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.TelegramConfigured() {
		notifiers = append(notifiers, notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, ""))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL))
	}
	if opts.serve {
		a.hub = notify.NewHub(log, nil)
		notifiers = append(notifiers, a.hub)
	}

	collector := metrics.Default()
	sched.Metrics = collector

	a.engine, err = engine.New(engine.Config{
		Gateway:    gateway,
		Notifier:   notifiers,
		Ledger:     ledger.New(log, sinks...),
		Store:      store,
		Settings:   current,
		Scheduler:  sched,
		BrokerMode: cfg.BrokerMode,
		Metrics:    collector,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	if !opts.serve {
		return a, nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.NewPrometheusCollector(collector).Register(a.registry); err != nil {
		return nil, err
	}

	if cfg.APIEnabled() {
		if err := a.buildAPI(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) settingsStore(ctx context.Context) (settings.Store, error) {
	if a.cfg.DatabaseURL == "" {
		return settings.NewEnvFileStore(a.cfg.SettingsFile), nil
	}

	pool, err := settings.OpenPostgres(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pg = pool

	store := settings.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) gateway(current settings.Settings) (broker.Gateway, error) {
	brokerLog := a.log.WithComponent(logger.ComponentBroker)

	switch a.cfg.BrokerMode {
	case config.BrokerModePaper:
		pc := broker.DefaultPaperConfig()
		pc.FillAfter = a.cfg.PaperFillAfter
		pc.LimitPriceFactor = a.cfg.LimitPriceFactor
		if _, ok := pc.Prices[current.ProductID]; !ok {
			pc.Prices[current.ProductID] = pc.Prices["BTC-EUR"]
		}
		quote := broker.QuoteCurrency(current.ProductID)
		if _, ok := pc.Balances[quote]; !ok {
			pc.Balances[quote] = pc.Balances["EUR"]
		}
		brokerLog.Warn("Paper trading enabled, no real orders will be placed")
		return broker.NewPaperBroker(pc), nil
	default:
		return broker.NewCoinbaseClient(broker.CoinbaseConfig{
			APIKey:           a.cfg.CoinbaseAPIKey,
			APISecret:        a.cfg.CoinbaseAPISecret,
			BaseURL:          a.cfg.CoinbaseBaseURL,
			RateLimit:        a.cfg.BrokerRateLimit,
			Timeout:          a.cfg.BrokerTimeout,
			LimitPriceFactor: a.cfg.LimitPriceFactor,
			Logger:           brokerLog,
		})
	}
}

func (a *app) buildAPI() error {
	auth, err := api.NewAuthenticator(api.AuthConfig{
		Username:     a.cfg.AdminUsername,
		PasswordHash: a.cfg.AdminPasswordHash,
		Password:     a.cfg.AdminPassword,
		TOTPSecret:   a.cfg.AdminTOTPSecret,
		JWTSecret:    a.cfg.JWTSecret,
		SessionTTL:   a.cfg.SessionTTL,
	})
	if err != nil {
		return err
	}

	a.api, err = api.NewServer(api.Config{
		Engine:        a.engine,
		Auth:          auth,
		Events:        a.hub,
		Gatherer:      a.registry,
		SecureCookies: a.cfg.SecureCookies,
		Logger:        a.log,
	})
	return err
}

// startPprof serves the profiling endpoints on their own listener
func (a *app) startPprof() {
	if a.cfg.PprofAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	a.pprof = &http.Server{
		Addr:              a.cfg.PprofAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("Starting pprof server", "address", a.cfg.PprofAddr, "url", fmt.Sprintf("http://%s/debug/pprof/", a.cfg.PprofAddr))
		if err := a.pprof.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("pprof server failed", "error", err)
		}
	}()
}

// close releases connections; it is safe on a partially built app
func (a *app) close() {
	if a.pprof != nil {
		_ = a.pprof.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("Failed to close journal", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

// connectWithRetry connects to Redis with exponential backoff
func connectWithRetry(ctx context.Context, redisURL string, maxRetries int, log logger.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.WrapInvalidConfiguration(err, "REDIS_URL")
	}
	client := redis.NewClient(opts)

	for attempt := 0; attempt < maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return client, nil
		}

		// 2^attempt seconds, capped at 30s
		delay := min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	_ = client.Close()
	return nil, errors.Wrapf(err, "failed to connect to Redis after %d attempts", maxRetries)
}

// loadConfig loads the process configuration and builds the logger
func loadConfig() (*config.Config, *logger.MultiLogger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize logger")
	}
	logger.SetDefault(log)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return cfg, log, nil
}
