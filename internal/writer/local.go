package writer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"grafana-backup/internal/config"
	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const LocalWriterType = config.DestLocal

// LocalWriter stores archives under a directory on the local filesystem.
type LocalWriter struct {
	basePath string
}

func init() {
	RegisterWriterFactory(LocalWriterType, NewLocalWriter)
}

// NewLocalWriter creates a LocalWriter rooted at cfg.LocalPath, creating it if needed.
func NewLocalWriter(cfg config.StorageConfig) (BackupWriter, error) {
	basePath := cfg.LocalPath
	if basePath == "" {
		basePath = config.DefaultLocalArchivePath
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		logger.Log.Error("Failed to create local archive path", zap.String("path", basePath), zap.Error(err))
		return nil, errors.Wrapf(err, "failed to create local archive path %s", basePath)
	}
	logger.Log.Info("LocalWriter initialized", zap.String("basePath", basePath))
	return &LocalWriter{basePath: basePath}, nil
}

// Type returns the type of the writer.
func (lw *LocalWriter) Type() string {
	return LocalWriterType
}

// resolve maps a slash-separated key onto a path inside basePath, rejecting
// absolute keys and keys that climb out of it.
func (lw *LocalWriter) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(key, "\\", "/")))
	if cleaned == "." || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errors.Newf("malformed object name: %q", key)
	}

	absBase, err := filepath.Abs(lw.basePath)
	if err != nil {
		return "", errors.Wrapf(err, "could not determine absolute path for base %s", lw.basePath)
	}
	absTarget := filepath.Join(absBase, cleaned)
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf("object %q resolves outside base path %s", key, absBase)
	}
	return absTarget, nil
}

// Write saves the data from reader to basePath/objectName. A partially
// written file is removed on error.
func (lw *LocalWriter) Write(ctx context.Context, objectName string, reader io.Reader) (destination string, bytesWritten int64, err error) {
	filePath, err := lw.resolve(objectName)
	if err != nil {
		logger.Log.Error("LocalWriter: rejecting object name", zap.String("objectName", objectName), zap.Error(err))
		return "", 0, err
	}

	if errMkdir := os.MkdirAll(filepath.Dir(filePath), 0755); errMkdir != nil {
		logger.Log.Error("Failed to create directory for local archive", zap.String("path", filePath), zap.Error(errMkdir))
		return "", 0, errors.Wrapf(errMkdir, "failed to create directory for %s", filePath)
	}

	file, errCreate := os.Create(filePath)
	if errCreate != nil {
		logger.Log.Error("Failed to create local archive file", zap.String("path", filePath), zap.Error(errCreate))
		return "", 0, errors.Wrapf(errCreate, "failed to create local archive file %s", filePath)
	}

	bytesWritten, errCopy := io.Copy(file, ctxReader{ctx: ctx, r: reader})
	errClose := file.Close()
	if errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		_ = os.Remove(filePath)
		logger.Log.Error("Failed to write archive to local file", zap.String("path", filePath), zap.Error(errCopy))
		return "", 0, errors.Wrapf(errCopy, "failed to write archive to %s", filePath)
	}

	logger.Log.Info("Successfully wrote local archive", zap.Int64("bytesWritten", bytesWritten), zap.String("path", filePath))
	return filePath, bytesWritten, nil
}

// ListObjects walks basePath and returns files whose slash-separated key starts with prefix.
func (lw *LocalWriter) ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error) {
	var objects []BackupObjectMeta

	if _, err := os.Stat(lw.basePath); err != nil {
		if os.IsNotExist(err) {
			return objects, nil
		}
		return nil, errors.Wrapf(err, "failed to stat %s for listing", lw.basePath)
	}

	err := filepath.WalkDir(lw.basePath, func(p string, d fs.DirEntry, errWalk error) error {
		if errWalk != nil {
			return errWalk
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, errRel := filepath.Rel(lw.basePath, p)
		if errRel != nil {
			return errRel
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, errInfo := d.Info()
		if errInfo != nil {
			return errInfo
		}
		objects = append(objects, BackupObjectMeta{
			Key:          key,
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Log.Warn("Local listing cancelled or timed out", zap.String("prefix", prefix), zap.Error(err))
			return nil, err
		}
		logger.Log.Error("Failed to walk local archive path", zap.String("basePath", lw.basePath), zap.Error(err))
		return nil, errors.Wrapf(err, "failed to walk local path %s", lw.basePath)
	}

	logger.Log.Debug("LocalWriter: listed objects", zap.String("prefix", prefix), zap.Int("count", len(objects)))
	return objects, nil
}

// DeleteObject removes basePath/key and any directories the removal leaves empty.
func (lw *LocalWriter) DeleteObject(ctx context.Context, key string) error {
	filePath, err := lw.resolve(key)
	if err != nil {
		logger.Log.Error("LocalWriter: rejecting delete", zap.String("key", key), zap.Error(err))
		return err
	}

	if errDel := os.Remove(filePath); errDel != nil {
		if os.IsNotExist(errDel) {
			logger.Log.Info("Local file not found for deletion, considering as success.", zap.String("filePath", filePath))
			return nil
		}
		logger.Log.Error("Failed to delete local file", zap.String("filePath", filePath), zap.Error(errDel))
		return errors.Wrapf(errDel, "failed to delete local file %s", filePath)
	}
	logger.Log.Info("Successfully deleted local file", zap.String("filePath", filePath))

	absBase, _ := filepath.Abs(lw.basePath)
	for dir := filepath.Dir(filePath); dir != absBase && strings.HasPrefix(dir, absBase); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
