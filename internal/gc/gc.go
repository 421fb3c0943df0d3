package gc

import (
	"context"
	"strings"
	"time"

	"grafana-backup/internal/logger"
	"grafana-backup/internal/writer"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	listTimeout   = 30 * time.Second
	deleteTimeout = 10 * time.Second
)

// Stats summarises one GC pass.
type Stats struct {
	Considered int
	Deleted    int
	FreedBytes int64
	Failed     []string
}

// Runner removes archives older than the retention period from a writer.
type Runner struct {
	backupWriter writer.BackupWriter
	prefix       string
	retention    time.Duration
	dryRun       bool
	deleteDelay  time.Duration
	now          func() time.Time
}

// NewRunner configures a GC pass over objects under prefix.
func NewRunner(bw writer.BackupWriter, prefix string, retention time.Duration, dryRun bool) *Runner {
	if retention <= 0 {
		logger.Log.Info("GC: retention period is not positive, garbage collection disabled",
			zap.Duration("retention", retention),
		)
	}

	logger.Log.Debug("GC Runner configured",
		zap.String("prefix", prefix),
		zap.Duration("retention", retention),
		zap.Bool("dryRun", dryRun),
		zap.String("writerType", bw.Type()),
	)

	return &Runner{
		backupWriter: bw,
		prefix:       writer.ObjectPrefix(prefix),
		retention:    retention,
		dryRun:       dryRun,
		deleteDelay:  100 * time.Millisecond,
		now:          time.Now,
	}
}

// isBackupObject reports whether key is an archive or archive sidecar this
// tool produced. Anything else sharing the prefix is left alone.
func isBackupObject(key string) bool {
	name := key[strings.LastIndex(key, "/")+1:]
	name = strings.TrimSuffix(name, writer.MetadataSuffix)
	name = strings.TrimSuffix(name, ".gpg")
	return strings.HasSuffix(name, writer.ArchiveExtension)
}

// RunGC deletes (or, in dry run mode, reports) backup objects last modified
// before now minus the retention period.
func (r *Runner) RunGC(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.retention <= 0 {
		return stats, nil
	}

	logger.Log.Info("Starting GC run",
		zap.String("prefix", r.prefix),
		zap.String("writerType", r.backupWriter.Type()),
		zap.Duration("retention", r.retention),
		zap.Bool("dryRun", r.dryRun),
	)

	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	objects, err := r.backupWriter.ListObjects(listCtx, r.prefix)
	if err != nil {
		logger.Log.Error("GC failed to list objects", zap.String("prefix", r.prefix), zap.Error(err))
		return stats, errors.Wrapf(err, "GC failed to list objects for prefix '%s'", r.prefix)
	}

	cutoffDate := r.now().UTC().Add(-r.retention)
	logger.Log.Debug("GC: Object scan details",
		zap.Int("objectCount", len(objects)),
		zap.String("prefix", r.prefix),
		zap.String("cutoffDate", cutoffDate.Format(time.RFC3339)),
	)

	for _, obj := range objects {
		if ctx.Err() != nil {
			logger.Log.Warn("GC run cancelled during object iteration",
				zap.Int("deletedCount", stats.Deleted),
				zap.Int("totalCount", len(objects)),
				zap.Error(ctx.Err()),
			)
			return stats, ctx.Err()
		}
		if !isBackupObject(obj.Key) {
			continue
		}
		stats.Considered++

		if !obj.LastModified.Before(cutoffDate) {
			logger.Log.Debug("GC: Object is within retention period. Keeping.",
				zap.String("key", obj.Key),
				zap.Time("lastModified", obj.LastModified),
			)
			continue
		}

		if r.dryRun {
			logger.Log.Info("[DryRun] GC: Would delete object",
				zap.String("key", obj.Key),
				zap.Int64("size", obj.Size),
			)
			stats.Deleted++
			stats.FreedBytes += obj.Size
			continue
		}

		deleteCtx, cancelDelete := context.WithTimeout(ctx, deleteTimeout)
		err := r.backupWriter.DeleteObject(deleteCtx, obj.Key)
		cancelDelete()
		if err != nil {
			logger.Log.Error("GC: Failed to delete object", zap.String("key", obj.Key), zap.Error(err))
			stats.Failed = append(stats.Failed, obj.Key)
			continue
		}
		stats.Deleted++
		stats.FreedBytes += obj.Size

		if r.deleteDelay > 0 {
			time.Sleep(r.deleteDelay)
		}
	}

	statusMsg := "deleted"
	if r.dryRun {
		statusMsg = "that would be deleted (dry run)"
	}
	logger.Log.Info("GC run completed",
		zap.String("prefix", r.prefix),
		zap.Int("objectsConsidered", stats.Considered),
		zap.String("status", statusMsg),
		zap.Int("objectsAffected", stats.Deleted),
		zap.Int64("totalSizeFreed", stats.FreedBytes),
		zap.Int("failedDeletes", len(stats.Failed)),
	)

	if len(stats.Failed) > 0 {
		return stats, errors.Newf("GC completed with %d failures: %v", len(stats.Failed), stats.Failed)
	}
	return stats, nil
}
