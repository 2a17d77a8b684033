// Package main — cmd/fermentctl/main.go
//
// fermentctl process entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/fermentctl/config.yaml.
//  2. Initialise structured logger (zap, JSON or console format).
//  3. Start the Prometheus metrics server (127.0.0.1:9091).
//  4. Build mTLS configs from internal/tlsutil for whichever of
//     nats.tls/store.tls have enabled: true.
//  5. Open the Postgres command store (mTLS if store.tls.enabled; runs
//     pending migrations if store.migrate_on_start is true), wired to
//     record query latency.
//  6. Connect to NATS (mTLS if nats.tls.enabled) and bind the JetStream
//     ingress consumer and hardware-actuation publisher, wired to record
//     publish latency.
//  7. Build the Scheduler and Executor services over the store, wired
//     to record schedule/tracking/activation counters; the Scheduler
//     enforces model.min_ramp_rate and model.max_steps_per_schedule.
//  8. Start the orchestrator loop.
//  9. Register SIGHUP handler for config hot-reload.
//  10. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to the orchestrator loop).
//  2. Wait for the loop to exit (max 5s).
//  3. Close the NATS connection.
//  4. Close the Postgres pool.
//  5. Flush logger.
//  6. Exit 0.
//
// On config validation or store/transport init failure: exit 1 immediately.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fermentctl/internal/config"
	"fermentctl/internal/executor"
	"fermentctl/internal/observability"
	"fermentctl/internal/orchestrator"
	"fermentctl/internal/scheduler"
	"fermentctl/internal/store/postgres"
	"fermentctl/internal/tlsutil"
	natstransport "fermentctl/internal/transport/nats"
)

func main() {
	configPath := flag.String("config", "/etc/fermentctl/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("fermentctl %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, logLevel, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("fermentctl starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Prometheus metrics ─────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 4: Build mTLS configs ──────────────────────────────────────────────
	storeTLS, err := buildTLSConfig(cfg.Store.TLS)
	if err != nil {
		log.Fatal("store tls config failed", zap.Error(err))
	}
	natsOpts, err := natsTLSOptions(cfg.NATS.TLS)
	if err != nil {
		log.Fatal("nats tls config failed", zap.Error(err))
	}

	// ── Step 5: Open Postgres store ────────────────────────────────────────────
	store, err := postgres.Open(cfg.Store.DSN, postgres.Options{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		Migrate:         cfg.Store.MigrateOnStart,
		Metrics:         metrics,
		TLSConfig:       storeTLS,
	})
	if err != nil {
		log.Fatal("postgres open failed", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck
	log.Info("postgres store opened", zap.Bool("tls", storeTLS != nil))

	// ── Step 6: NATS ingress + publisher ────────────────────────────────────────
	ingress, err := natstransport.NewIngress(ctx, natstransport.IngressConfig{
		URL:             cfg.NATS.URL,
		Stream:          cfg.NATS.Stream,
		Subjects:        []string{cfg.NATS.ScheduleSubject, cfg.NATS.TrackingSubject},
		DurableConsumer: cfg.NATS.DurableConsumer,
		FetchBatchSize:  cfg.NATS.FetchBatchSize,
		FetchTimeout:    cfg.NATS.FetchTimeout,
	}, natsOpts...)
	if err != nil {
		log.Fatal("nats ingress init failed", zap.Error(err))
	}
	defer ingress.Close()
	log.Info("nats ingress connected", zap.String("stream", cfg.NATS.Stream), zap.Bool("tls", len(natsOpts) > 0))

	natsConn, err := natsgo.Connect(cfg.NATS.URL, natsOpts...)
	if err != nil {
		log.Fatal("nats publisher connect failed", zap.Error(err))
	}
	defer natsConn.Close()
	publisher := natstransport.NewPublisher(natsConn, cfg.NATS.ActuationTopicTemplate, cfg.NATS.HardwareModel, metrics)

	// ── Step 7: Services ────────────────────────────────────────────────────────
	schedulerSvc := scheduler.New(store, log, metrics, scheduler.Limits{
		MinRampRate: cfg.Model.MinRampRate,
		MaxSteps:    cfg.Model.MaxStepsPerSchedule,
	})
	executorSvc := executor.New(store, publisher, log, metrics)

	// ── Step 8: Orchestrator loop ───────────────────────────────────────────────
	loop := orchestrator.New(ingress, schedulerSvc, executorSvc, log, metrics)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()
	log.Info("orchestrator loop started")

	// ── Step 9: SIGHUP hot-reload ───────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			var newLevel zapcore.Level
			if err := newLevel.UnmarshalText([]byte(newCfg.Observability.LogLevel)); err != nil {
				log.Error("config hot-reload failed — invalid log level, retaining old config", zap.Error(err))
				continue
			}
			logLevel.SetLevel(newLevel)
			log.Info("config hot-reload successful — log level applied",
				zap.String("new_log_level", newCfg.Observability.LogLevel))
		}
	}()

	// ── Step 10: Wait for shutdown signal ───────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	select {
	case <-shutdownTimer.C:
		log.Warn("shutdown drain timeout — forcing exit")
	case err := <-loopDone:
		if err != nil {
			log.Error("orchestrator loop exited with error", zap.Error(err))
		}
	}

	log.Info("fermentctl shutdown complete")
}

// buildTLSConfig builds a *tls.Config for the Postgres dial from cfg, or
// nil if cfg.Enabled is false.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return tlsutil.Build(tlsutil.Config{
		CertFile:   cfg.CertFile,
		KeyFile:    cfg.KeyFile,
		CAFile:     cfg.CAFile,
		ServerName: cfg.ServerName,
	})
}

// natsTLSOptions builds the nats.Option slice needed to dial with mTLS
// from cfg, or nil if cfg.Enabled is false.
func natsTLSOptions(cfg config.TLSConfig) ([]natsgo.Option, error) {
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return nil, nil
	}
	return []natsgo.Option{natsgo.Secure(tlsConfig)}, nil
}

// buildLogger constructs a zap.Logger with the given level and format. The
// returned zap.AtomicLevel backs the logger live, so a later SetLevel call
// (SIGHUP hot-reload) changes its verbosity without rebuilding it.
func buildLogger(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	return logger, cfg.Level, err
}
