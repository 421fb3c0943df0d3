package tree

import (
	"fmt"
	"os"

	"grafana-backup/internal/logger"

	"go.uber.org/zap"
)

const dirPerm = 0755

// DirectoryCreateError reports a directory the filesystem refused to create.
type DirectoryCreateError struct {
	Path string
	Err  error
}

func (e *DirectoryCreateError) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreateError) Unwrap() error {
	return e.Err
}

// Provision creates every path, parents included, skipping ones that exist.
// It is best effort: a failing path is logged and reported, and the rest are
// still attempted. The returned slice is empty when everything exists.
func Provision(paths []string) []error {
	var errs []error
	for _, path := range paths {
		if err := os.MkdirAll(path, dirPerm); err != nil {
			logger.Log.Error("Failed to create directory", zap.String("path", path), zap.Error(err))
			errs = append(errs, &DirectoryCreateError{Path: path, Err: err})
			continue
		}
		logger.Log.Debug("Directory ready", zap.String("path", path))
	}
	return errs
}
