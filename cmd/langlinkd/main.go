package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/langlink/internal/config"
	"github.com/rickgao/langlink/internal/connection"
	"github.com/rickgao/langlink/internal/database"
	"github.com/rickgao/langlink/internal/journal"
	"github.com/rickgao/langlink/internal/lifecycle"
	"github.com/rickgao/langlink/internal/metrics"
	"github.com/rickgao/langlink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/langlinkd.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting langlinkd",
		version.Attr(),
		"config", *configPath,
		"backend_url", cfg.Backend.URL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("langlinkd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("langlinkd stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	opts := []connection.Option{
		connection.WithObserver(collector),
		connection.WithReconnectHandler(func() {
			logger.Info("language service connected")
		}),
		connection.WithDisconnectHandler(func() {
			logger.Info("language service disconnected")
		}),
	}

	// Optional transition journal
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger.With("component", "journal"))
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		opts = append(opts, connection.WithObserver(writer))
	}

	// Transport and manager
	dialer := connection.NewDialer(connection.ClientConfig{
		Subprotocol:      cfg.Backend.Subprotocol,
		HandshakeTimeout: cfg.Backend.HandshakeTimeout,
		WriteTimeout:     cfg.Backend.WriteTimeout,
		RequestTimeout:   cfg.Lifecycle.RequestTimeout,
	}, func(msg connection.PushMessage) {
		logger.Debug("push message", "service", msg.Service, "resource", msg.Resource, "state_id", msg.StateID)
	}, logger.With("component", "transport"))

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Timing = lifecycle.Timing{
		OpenTimeout: cfg.Lifecycle.OpenTimeout,
		PingPeriod:  cfg.Lifecycle.PingPeriod,
		IdleTimeout: cfg.Lifecycle.IdleTimeout,
		Backoff:     lifecycle.Backoff(cfg.Lifecycle.Backoff),
	}
	mgrCfg.InitialEndpoint = cfg.Backend.URL
	mgrCfg.ConnectOnStart = cfg.Backend.ShouldConnectOnStart()
	mgr := connection.NewManager(mgrCfg, dialer, logger.With("component", "manager"), opts...)
	if cfg.Lifecycle.KeepAlive {
		mgr.SetKeepAlive(true)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHandler(mgr, reg, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Handle shutdown and visibility signals
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
		defer signal.Stop(sigCh)

		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGUSR1:
					logger.Info("tab hidden", "signal", sig)
					mgr.SetTabVisible(false)
				case syscall.SIGUSR2:
					logger.Info("tab visible", "signal", sig)
					mgr.SetTabVisible(true)
				default:
					logger.Info("received shutdown signal", "signal", sig)
					cancel()
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if writer != nil {
		if err := writer.Start(gctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
	}
	if err := mgr.Start(gctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}

	logger.Info("langlinkd running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-gctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mgr.Stop(shutdownCtx)
	if writer != nil {
		writer.Stop(shutdownCtx)
	}
	server.Shutdown(shutdownCtx)

	return g.Wait()
}
