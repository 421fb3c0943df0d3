package writer

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"grafana-backup/internal/config"
	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ArchiveExtension is appended to run directory names to form object names.
const ArchiveExtension = ".tar.gz"

// MinFreeDiskPercent is the free-space floor below which CheckDiskSpace fails.
const MinFreeDiskPercent = 10.0

// BackupObjectMeta holds metadata about a stored backup object.
type BackupObjectMeta struct {
	Key          string    // Full path/key of the object
	LastModified time.Time // Last modified timestamp
	Size         int64     // Size in bytes
}

// BackupWriter stores finished backup archives.
type BackupWriter interface {
	// Write stores everything read from reader under objectName and returns
	// the final path or URL and the number of bytes stored.
	Write(ctx context.Context, objectName string, reader io.Reader) (destination string, bytesWritten int64, err error)
	// Type returns the destination type ("local" or "remote").
	Type() string
	// ListObjects lists stored objects whose key starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error)
	// DeleteObject removes an object by key. Missing objects are not an error.
	DeleteObject(ctx context.Context, key string) error
}

// NewWriterFunc creates a BackupWriter from the storage configuration.
type NewWriterFunc func(cfg config.StorageConfig) (BackupWriter, error)

var writerFactories = make(map[string]NewWriterFunc)

// RegisterWriterFactory allows different writer implementations to register themselves.
func RegisterWriterFactory(destType string, factory NewWriterFunc) {
	if factory == nil {
		logger.Log.Fatal("Writer factory is nil", zap.String("destType", destType))
	}
	if _, ok := writerFactories[destType]; ok {
		logger.Log.Fatal("Writer factory already registered", zap.String("destType", destType))
	}
	writerFactories[destType] = factory
	logger.Log.Debug("Registered writer factory", zap.String("destType", destType))
}

// GetWriter returns the BackupWriter for cfg.Dest.
func GetWriter(cfg config.StorageConfig) (BackupWriter, error) {
	destType := strings.ToLower(cfg.Dest)
	factory, ok := writerFactories[destType]
	if !ok {
		err := errors.Newf("no writer registered for destination type: %q", destType)
		logger.Log.Error("Failed to get writer: no factory registered",
			zap.String("destType", destType),
			zap.Error(err),
		)
		return nil, err
	}
	return factory(cfg)
}

// GenerateObjectName builds the archive key for a run, e.g.
// grafana/prod_050324140709.tar.gz or, encrypted, ...tar.gz.gpg.
func GenerateObjectName(prefix, runDirName, extraExt string) string {
	fileName := runDirName + ArchiveExtension + extraExt
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fileName
	}
	return path.Join(prefix, fileName)
}

// ObjectPrefix is the listing prefix GC uses for a configured key prefix.
func ObjectPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// DiskUsage describes the filesystem holding a path.
type DiskUsage struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// FreePercent is the share of the filesystem still available to unprivileged users.
func (d DiskUsage) FreePercent() float64 {
	if d.TotalBytes == 0 {
		return 0
	}
	return float64(d.FreeBytes) / float64(d.TotalBytes) * 100
}

// CheckDiskSpace fails when the filesystem holding path has less than
// MinFreeDiskPercent free.
func CheckDiskSpace(path string) (DiskUsage, error) {
	usage, err := diskUsage(path)
	if err != nil {
		return usage, err
	}
	if usage.TotalBytes == 0 {
		return usage, errors.Newf("invalid filesystem at %s: total size is 0", path)
	}
	if free := usage.FreePercent(); free < MinFreeDiskPercent {
		return usage, errors.Newf("insufficient disk space at %s: %.2f%% free (minimum %.0f%% required)", path, free, MinFreeDiskPercent)
	}
	logger.Log.Debug("Disk space check passed",
		zap.String("path", path),
		zap.Float64("freePercentage", usage.FreePercent()),
		zap.Uint64("freeBytes", usage.FreeBytes),
		zap.Uint64("totalBytes", usage.TotalBytes),
	)
	return usage, nil
}
