package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CompressionType is recorded in archive metadata.
const CompressionType = "gzip"

// Stats counts what went into an archive.
type Stats struct {
	Files int
	Bytes int64
}

// Stream writes a gzip-compressed tar of root to dst. Entry names are
// slash-separated and start with root's base name, so extracting the
// archive recreates the run directory.
func Stream(ctx context.Context, root string, dst io.Writer) (Stats, error) {
	var stats Stats
	logFields := []zap.Field{zap.String("root", root)}

	info, err := os.Stat(root)
	if err != nil {
		return stats, errors.Wrapf(err, "failed to stat archive root %s", root)
	}
	if !info.IsDir() {
		return stats, errors.Newf("archive root %s is not a directory", root)
	}

	gw := gzip.NewWriter(dst)
	tw := tar.NewWriter(gw)
	parent := filepath.Dir(filepath.Clean(root))

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			logger.Log.Debug("Archive: skipping non-regular file", zap.String("path", path))
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return errors.Wrapf(err, "failed to write tar header for %s", path)
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(tw, f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "failed to archive %s", path)
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if walkErr != nil {
		logger.Log.Error("Archive: failed to stream tree", append(logFields, zap.Error(walkErr))...)
		return stats, walkErr
	}

	if err := tw.Close(); err != nil {
		return stats, errors.Wrap(err, "failed to finalize tar stream")
	}
	if err := gw.Close(); err != nil {
		return stats, errors.Wrap(err, "failed to finalize gzip stream")
	}

	logger.Log.Debug("Archive: tree streamed",
		append(logFields, zap.Int("files", stats.Files), zap.Int64("bytes", stats.Bytes))...)
	return stats, nil
}

// NewReader streams the archive of root through an io.Pipe from a
// background goroutine. A failure while producing the archive surfaces as
// the reader's error. Closing the reader early stops the producer.
func NewReader(ctx context.Context, root string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := Stream(ctx, root, pw)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return pr
}
