package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/app"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/config"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/refresh"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/server"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg)
	logger.Infof("Starting wheelhouse quote service in %s mode", cfg.Environment.Mode)

	a := app.Build(cfg, logger, nil)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping...")
		cancel()
	}()

	if err := run(ctx, a); err != nil {
		logger.WithError(err).Fatal("Service error")
	}
	logger.Info("Service stopped successfully")
}

func run(ctx context.Context, a *app.App) error {
	cfg, logger := a.Config, a.Logger
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var task *refresh.Task
	var store storage.Interface
	if cfg.Refresh.Enabled {
		if cfg.Refresh.StoragePath != "" {
			var err error
			if store, err = storage.NewStorage(cfg.Refresh.StoragePath); err != nil {
				return err
			}
		}
		var err error
		task, err = refresh.New(cfg.Refresh.Cron, cfg.Refresh.Tickers, a.Facade, snapshotSink(store, logger), logger)
		if err != nil {
			if store != nil {
				_ = store.Close()
			}
			return err
		}
	}

	var relay server.RelaySource
	if a.Relay != nil {
		relay = a.Relay
	}
	srv := server.NewServer(server.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, a.Facade, a.Orchestrator, relay, logger)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	refreshDone := make(chan struct{})
	if task != nil {
		go func() {
			defer close(refreshDone)
			if err := runRefresh(ctx, task, store, logger); err != nil {
				errCh <- err
			}
		}()
	} else {
		close(refreshDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	<-refreshDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	return runErr
}

// runRefresh blocks until ctx is cancelled and the last tick has finished,
// then closes store.
func runRefresh(ctx context.Context, task *refresh.Task, store storage.Interface, logger *logrus.Logger) error {
	err := task.Run(ctx)
	if store != nil {
		if cerr := store.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close price storage")
		}
	}
	return err
}

// snapshotSink logs each refreshed price and, when store is set, records it.
func snapshotSink(store storage.Interface, logger *logrus.Logger) refresh.Sink {
	return func(s refresh.Snapshot) {
		for ticker, price := range s.Prices {
			logger.WithFields(logrus.Fields{"ticker": ticker, "price": price}).Info("Refreshed")
		}
		if len(s.Missing) > 0 {
			logger.WithField("tickers", s.Missing).Warn("Refresh missed tickers")
		}
		if store == nil {
			return
		}
		if err := store.RecordPrices(s.At, s.Prices, s.Missing); err != nil {
			logger.WithError(err).Error("Failed to persist refreshed prices")
		}
	}
}
