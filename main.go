package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grafana-backup/internal/backup"
	"grafana-backup/internal/config"
	"grafana-backup/internal/encryption"
	"grafana-backup/internal/logger"
	"grafana-backup/internal/scheduler"
	"grafana-backup/internal/webhook"
	"grafana-backup/internal/writer"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Log.Info("Grafana backup starting...")
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Configuration validation failed", zap.Error(err))
	}

	var backupWriter writer.BackupWriter
	if cfg.Storage.Dest != config.DestNone {
		backupWriter, err = writer.GetWriter(cfg.Storage)
		if err != nil {
			logger.Log.Fatal("Failed to initialize backup writer", zap.String("dest", cfg.Storage.Dest), zap.Error(err))
		}
	} else if cfg.Storage.GPGPublicKey != "" {
		logger.Log.Warn("GPG public key configured without a storage destination; the backup tree is not encrypted",
			zap.String("key", config.EnvGPGPublicKey),
		)
	}

	encryptor, err := encryption.NewGPGEncryptor(cfg.Storage.GPGPublicKey)
	if err != nil {
		logger.Log.Fatal("Failed to initialize GPG encryption", zap.Error(err))
	}

	webhookSender := webhook.NewSender(cfg.Webhook)
	defer webhookSender.Stop()

	runner := backup.NewRunner(cfg, backup.Deps{
		Writer:    backupWriter,
		Encryptor: encryptor,
		Notifier:  webhookSender,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if cfg.Schedule.Cron == "" {
		go func() {
			select {
			case sig := <-sigChan:
				logger.Log.Info("Shutdown signal received, cancelling backup...", zap.String("signal", sig.String()))
				cancel()
			case <-ctx.Done():
			}
		}()
		report := runner.Run(ctx)
		logger.Log.Info("Grafana backup finished",
			zap.String("runID", report.RunID),
			zap.Bool("success", report.Success),
			zap.Int("filesWritten", report.FilesWritten),
			zap.Int("errorCount", report.ErrorCount),
		)
		return
	}

	runScheduled(ctx, cancel, cfg, runner, sigChan)
}

// runScheduled runs backups on cfg.Schedule.Cron and serves the status
// endpoints until a shutdown signal arrives.
func runScheduled(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, runner *backup.Runner, sigChan <-chan os.Signal) {
	sched := scheduler.NewScheduler(ctx)
	err := sched.Schedule(cfg.Schedule.Cron, func(jobCtx context.Context) {
		runner.Run(jobCtx)
	})
	if err != nil {
		sched.Stop()
		logger.Log.Fatal("Failed to schedule backup job", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Schedule.StatusAddr,
		Handler:           backup.StatusHandler(runner, sched.Next),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Log.Info("Serving HTTP endpoints", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				logger.Log.Error("HTTP server failed", zap.Error(err))
			} else {
				logger.Log.Info("HTTP server closed gracefully.")
			}
		}
	}()

	logger.Log.Info("Scheduler started. Waiting for the next backup run...",
		zap.String("cron", cfg.Schedule.Cron),
		zap.Time("nextRun", sched.Next()),
	)

	select {
	case sig := <-sigChan:
		logger.Log.Info("Shutdown signal received, stopping...", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()

	logger.Log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	sched.Stop()
	logger.Log.Info("Grafana backup stopped.")
}
