package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muaviaUsmani/autobuy/internal/logger"
)

// shutdownTimeout bounds how long in-flight buys and requests get on exit
const shutdownTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler, order tracker and API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func run(ctx context.Context) error {
	cfg, baseLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer baseLog.Close()
	log := baseLog.WithComponent(logger.ComponentCLI).WithSource(logger.LogSourceInternal)

	log.Info("Autobuy starting",
		"broker_mode", cfg.BrokerMode,
		"redis", cfg.RedisURL != "",
		"postgres", cfg.DatabaseURL != "",
		"journal", cfg.JournalPath,
		"api_port", cfg.APIPort)

	a, err := newApp(ctx, cfg, baseLog, appOptions{serve: true})
	if err != nil {
		log.Error("Failed to build components", "error", err)
		return err
	}
	defer a.close()

	a.startPprof()

	if err := a.engine.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return err
	}

	apiErr := make(chan error, 1)
	if a.api != nil {
		go func() {
			apiErr <- a.api.Start(net.JoinHostPort("", cfg.APIPort))
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-apiErr:
		if err != nil {
			log.Error("API server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.api != nil {
		if err := a.api.Shutdown(shutdownCtx); err != nil {
			log.Warn("API shutdown incomplete", "error", err)
		}
	}
	if err := a.engine.Stop(shutdownCtx); err != nil {
		log.Warn("Timed out waiting for in-flight runs", "error", err)
	}

	log.Info("Autobuy stopped")
	return nil
}
