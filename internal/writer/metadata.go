package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// MetadataSuffix is appended to an archive's object name for its sidecar.
const MetadataSuffix = ".metadata.json"

// ArchiveMetadata is stored next to every archive so a snapshot can be
// identified without downloading it.
type ArchiveMetadata struct {
	RunID           string    `json:"run_id"`
	Environment     string    `json:"environment"`
	GrafanaHost     string    `json:"grafana_host"`
	Timestamp       time.Time `json:"timestamp"`
	ArchiveSize     int64     `json:"archive_size_bytes"`
	Checksum        string    `json:"sha256,omitempty"`
	CompressionType string    `json:"compression_type"`
	Encrypted       bool      `json:"encrypted"`
	Version         string    `json:"version"`
	Destination     string    `json:"destination"`
	DurationSeconds float64   `json:"duration_seconds"`
	FilesWritten    int       `json:"files_written"`
	ErrorCount      int       `json:"error_count"`
	Success         bool      `json:"success"`
}

// WriteMetadata stores metadata as <objectName>.metadata.json through w.
func WriteMetadata(ctx context.Context, w BackupWriter, metadata ArchiveMetadata, objectName string) (string, error) {
	metadataName := objectName + MetadataSuffix

	jsonData, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal metadata")
	}

	destination, _, err := w.Write(ctx, metadataName, bytes.NewReader(jsonData))
	if err != nil {
		return "", errors.Wrap(err, "failed to write metadata file")
	}

	logger.Log.Debug("Archive metadata written",
		zap.String("metadataFile", metadataName),
		zap.String("runID", metadata.RunID),
	)
	return destination, nil
}
