package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path/filepath"
	"sync"
	"time"

	"grafana-backup/internal/archive"
	"grafana-backup/internal/config"
	"grafana-backup/internal/encryption"
	"grafana-backup/internal/exporter"
	"grafana-backup/internal/gc"
	"grafana-backup/internal/grafana"
	"grafana-backup/internal/logger"
	"grafana-backup/internal/tree"
	"grafana-backup/internal/webhook"
	"grafana-backup/internal/writer"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Version is recorded in archive metadata.
const Version = "1.0.0"

// Deps are the collaborators of a Runner. Only Fetcher is required when
// cfg.Storage.Dest is empty; nil optional members disable their step.
type Deps struct {
	// Fetcher performs the Grafana GETs; nil builds a grafana.Client from cfg.
	Fetcher   exporter.Fetcher
	Writer    writer.BackupWriter
	Encryptor *encryption.GPGEncryptor
	Notifier  webhook.WebhookSender
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner executes backup runs for one configuration.
type Runner struct {
	cfg       *config.Config
	fetcher   exporter.Fetcher
	writer    writer.BackupWriter
	encryptor *encryption.GPGEncryptor
	notifier  webhook.WebhookSender
	now       func() time.Time

	mu   sync.Mutex
	last *Report
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	r := &Runner{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		writer:    deps.Writer,
		encryptor: deps.Encryptor,
		notifier:  deps.Notifier,
		now:       deps.Now,
	}
	if r.fetcher == nil {
		r.fetcher = grafana.NewClient(cfg.Grafana.URL, cfg.Grafana.Token, cfg.Grafana.Timeout())
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// apiURL joins an API path onto the configured Grafana host.
func (r *Runner) apiURL(path string) string {
	return grafana.APIURL(r.cfg.Grafana.URL, path)
}

// Run performs one backup: provision the tree, run every enabled export,
// write the report, then archive, prune and notify as configured. Failures
// are recorded in the returned Report; Run never aborts part way except on
// context cancellation.
func (r *Runner) Run(ctx context.Context) *Report {
	rc := NewRunContext(r.cfg.Environment, r.cfg.Grafana.URL, r.now())
	layout := tree.NewLayout(r.cfg.BaseDir, rc.Environment, rc.Timestamp)
	report := newReport(rc, layout)

	log := logger.Log.With(zap.String("runID", rc.RunID), zap.String("environment", rc.Environment))
	log.Info("Starting Grafana backup",
		zap.String("grafanaHost", rc.Host),
		zap.String("backupRoot", layout.Root),
		zap.Strings("categories", r.cfg.Categories),
	)

	for _, err := range tree.Provision(layout.Dirs()) {
		report.addError(err)
	}

	if usage, err := writer.CheckDiskSpace(layout.Root); err != nil {
		log.Warn("Disk space check failed", zap.String("path", layout.Root), zap.Error(err))
	} else {
		log.Debug("Disk space available", zap.Float64("freePercent", usage.FreePercent()))
	}

	exp := exporter.New(r.fetcher)
	for _, t := range plan(r.apiURL, layout) {
		if !r.cfg.Enabled(t.category) {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.addError(errors.Wrap(err, "backup interrupted"))
			break
		}
		report.addResult(t.run(ctx, exp))
	}

	report.finish(r.now())
	r.logSummary(log, report)

	reportPath := filepath.Join(layout.Summary, ReportFileName)
	if err := report.WriteFile(reportPath); err != nil {
		log.Error("Failed to write backup report", zap.Error(err))
		report.addError(err)
	} else {
		log.Info("Backup report written", zap.String("path", reportPath))
	}

	if r.writer != nil && ctx.Err() == nil {
		r.store(ctx, log, rc, layout, report)
	}

	report.finish(r.now())
	r.notify(report)

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	return report
}

// LastReport returns the report of the most recent completed run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) logSummary(log *zap.Logger, report *Report) {
	for _, t := range report.Tasks {
		log.Info("Export summary",
			zap.String("category", t.Category),
			zap.String("source", t.Source),
			zap.Int("files", t.Files),
			zap.Int("errors", len(t.Errors)),
		)
	}
	fields := []zap.Field{
		zap.Int("filesWritten", report.FilesWritten),
		zap.Int("errorCount", report.ErrorCount),
		zap.Float64("durationSeconds", report.DurationSeconds),
		zap.String("backupRoot", report.BackupRoot),
	}
	if report.Success {
		log.Info("Backup completed", fields...)
	} else {
		log.Warn("Backup completed with errors", fields...)
	}
}

// store streams the run tree as a tar.gz (optionally encrypted) to the
// writer, adds the metadata sidecar and runs retention GC.
func (r *Runner) store(ctx context.Context, log *zap.Logger, rc RunContext, layout tree.Layout, report *Report) {
	objectName := writer.GenerateObjectName(r.cfg.Storage.Prefix, rc.RunDirName(), r.encryptor.GetEncryptedExtension())
	log = log.With(zap.String("objectName", objectName), zap.String("writerType", r.writer.Type()))

	archiveReader := archive.NewReader(ctx, layout.Root)
	stream, err := r.encryptor.Encrypt(ctx, archiveReader)
	if err != nil {
		_ = archiveReader.Close()
		log.Error("Failed to start archive encryption", zap.Error(err))
		report.addError(errors.Wrap(err, "encrypting archive"))
		return
	}

	hash := sha256.New()
	destination, size, writeErr := r.writer.Write(ctx, objectName, io.TeeReader(stream, hash))
	_ = archiveReader.Close()
	if errClose := stream.Close(); writeErr == nil {
		writeErr = errClose
	}
	if writeErr != nil {
		log.Error("Failed to store backup archive", zap.Error(writeErr))
		report.addError(errors.Wrapf(writeErr, "storing archive %s", objectName))
		return
	}

	report.Storage = &StorageReport{
		Type:        r.writer.Type(),
		ObjectName:  objectName,
		Destination: destination,
		SizeBytes:   size,
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
		Encrypted:   r.encryptor.IsEnabled(),
	}
	log.Info("Backup archive stored",
		zap.String("destination", destination),
		zap.Int64("sizeBytes", size),
		zap.Bool("encrypted", report.Storage.Encrypted),
	)

	meta := writer.ArchiveMetadata{
		RunID:           rc.RunID,
		Environment:     rc.Environment,
		GrafanaHost:     rc.Host,
		Timestamp:       rc.Timestamp.UTC(),
		ArchiveSize:     size,
		Checksum:        report.Storage.Checksum,
		CompressionType: archive.CompressionType,
		Encrypted:       report.Storage.Encrypted,
		Version:         Version,
		Destination:     destination,
		DurationSeconds: report.DurationSeconds,
		FilesWritten:    report.FilesWritten,
		ErrorCount:      report.ErrorCount,
		Success:         report.Success,
	}
	if _, err := writer.WriteMetadata(ctx, r.writer, meta, objectName); err != nil {
		log.Warn("Failed to write archive metadata", zap.Error(err))
		report.addError(err)
	}

	gcRunner := gc.NewRunner(r.writer, r.cfg.Storage.Prefix, r.cfg.Retention.Duration(), r.cfg.Retention.DryRun)
	stats, err := gcRunner.RunGC(ctx)
	if r.cfg.Retention.DryRun {
		report.Storage.GCWouldDelete = stats.Deleted
	} else {
		report.Storage.GCDeleted = stats.Deleted
	}
	if err != nil {
		log.Warn("Retention GC reported errors", zap.Error(err))
		report.addError(errors.Wrap(err, "retention GC"))
	}
}

func (r *Runner) notify(report *Report) {
	if r.notifier == nil {
		return
	}
	payload := webhook.NotificationPayload{
		RunID:           report.RunID,
		Environment:     report.Environment,
		GrafanaHost:     report.GrafanaHost,
		Success:         report.Success,
		FilesWritten:    report.FilesWritten,
		ErrorCount:      report.ErrorCount,
		Errors:          report.ErrorMessages(maxNotifiedErrors),
		DurationSeconds: report.DurationSeconds,
		Timestamp:       report.FinishedAt.UTC().Format(time.RFC3339),
		BackupRoot:      report.BackupRoot,
	}
	if report.Storage != nil {
		payload.DestinationURL = report.Storage.Destination
		payload.DestinationType = report.Storage.Type
	}
	r.notifier.Enqueue(payload)
}
