package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicevault/voicevault/internal/api"
	"github.com/voicevault/voicevault/internal/api/middleware"
	"github.com/voicevault/voicevault/internal/config"
	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/email"
	"github.com/voicevault/voicevault/internal/media"
	"github.com/voicevault/voicevault/internal/metrics"
	"github.com/voicevault/voicevault/internal/recording"
	"github.com/voicevault/voicevault/internal/retention"
	"github.com/voicevault/voicevault/internal/storage"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voicevault",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"storage_quota_gb", cfg.StorageQuotaGB,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	recordings := database.NewRecordingRepository(db)
	policies := database.NewRetentionPolicyRepository(db)
	usage := database.NewUsageRepository(db)
	audit := database.NewAuditRepository(db)
	monitorState := database.NewMonitorStateRepository(db)

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Usage tracker, primed from the metadata table so counters survive
	// restarts.
	tracker := storage.NewTracker(cfg.StorageQuotaBytes(), usage, logger)
	files, bytes, err := recordings.Totals(context.Background())
	if err != nil {
		slog.Error("failed to load storage totals", "error", err)
		os.Exit(1)
	}
	tracker.Prime(files, bytes)

	// Encrypted recording store.
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		slog.Error("failed to decode encryption key", "error", err)
		os.Exit(1)
	}
	encryptor, err := storage.NewEncryptor(key, cfg.EncryptionKeyID)
	if err != nil {
		slog.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	engine, err := storage.NewEngine(filepath.Join(cfg.DataDir, "recordings"), encryptor, tracker, logger)
	if err != nil {
		slog.Error("failed to create storage engine", "error", err)
		os.Exit(1)
	}

	// Capture sessions and the archive path that persists them. The
	// telephony integration drives recorder.Session / recorder.Complete.
	registry := media.NewSessionRegistry(media.CodecPCMU, media.MixStereo, logger)
	resolver := retention.NewResolver(policies, cfg.DefaultRetentionDays, logger)
	archiver := recording.NewArchiver(engine, recordings, audit, resolver, logger)
	recorder := recording.NewService(registry, archiver, logger)

	// Alert delivery is optional; without SMTP the monitor runs log-only.
	var notifier *email.Sender
	if cfg.SMTPHost != "" {
		notifier = email.NewSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.AlertFrom,
			To:       cfg.AlertTo,
		}, logger)
	}

	// Nightly retention cleanup.
	cleaner := retention.NewCleaner(recordings, audit, engine, logger)
	if notifier != nil {
		cleaner.NotifyBatches(notifier)
	}
	go cleaner.Run(appCtx)

	// Storage threshold alerts and daily usage reports.
	var alertNotifier retention.Notifier
	if notifier != nil {
		alertNotifier = notifier
	}
	monitor := retention.NewMonitor(tracker, usage, monitorState, alertNotifier,
		float64(cfg.AlertThresholdPct), logger)
	go monitor.Run(appCtx)

	// Prometheus metrics.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(metrics.NewCollector(tracker, recorder, usage, cleaner, startTime))
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to decode jwt secret", "error", err)
		os.Exit(1)
	}

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	handler := api.NewServer(recordings, policies, usage, audit, engine, tracker,
		resolver, metricsHandler, jwtSecret, limiter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	limiter.Stop()
	recorder.Drain()
	tracker.Flush()

	slog.Info("voicevault stopped")
}
