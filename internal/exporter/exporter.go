package exporter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"grafana-backup/internal/grafana"
	"grafana-backup/internal/logger"
	"grafana-backup/internal/tree"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Format selects how a simple export persists the response body.
type Format int

const (
	// Structured re-encodes the body as indented JSON.
	Structured Format = iota
	// RawText writes the body as received (YAML and CSV exports).
	RawText
)

func (f Format) String() string {
	if f == RawText {
		return "raw"
	}
	return "json"
}

const (
	DefaultFolder = "General"
	UnknownTitle  = "unknown"

	filePerm = 0644
	itemExt  = ".json"

	// reservedPrefix is prepended to folder names listed in Collection.ReservedFolders.
	reservedPrefix = "folder-"
)

// DefaultFolderPath locates a dashboard's folder in its detail record.
var DefaultFolderPath = []string{"meta", "folderTitle"}

// Fetcher is the HTTP collaborator; *grafana.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, endpoint string) ([]byte, error)
}

var _ Fetcher = (*grafana.Client)(nil)

// Result is the outcome of one export call.
type Result struct {
	Category string
	Source   string
	// Items is the number of entries a collection listing returned.
	Items  int
	Files  []string
	Errors []error
}

// OK reports whether the export finished without any error.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Collection describes a list-then-detail export.
type Collection struct {
	Category string
	ListURL  string
	// DetailURL is the base for per-item fetches; ListURL is used when empty.
	DetailURL  string
	DestDir    string
	IDField    string
	TitleField string
	// Foldered buckets items into DestDir/<folder>/ using FolderPath on the detail record.
	Foldered   bool
	FolderPath []string
	// ReservedFolders are names under DestDir owned by other exports. A
	// folder label matching one (case-insensitively) gets reservedPrefix.
	ReservedFolders []string
}

// Exporter fetches Grafana objects and writes them under the backup tree.
// It is not safe for concurrent use.
type Exporter struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Exporter {
	return &Exporter{fetcher: fetcher}
}

// Export fetches endpoint and writes it to destPath. On any failure nothing is
// written and the error is returned in the Result.
func (e *Exporter) Export(ctx context.Context, category, endpoint, destPath string, format Format) Result {
	res := Result{Category: category, Source: endpoint}

	if err := e.export(ctx, endpoint, destPath, format); err != nil {
		logger.Log.Error("Export failed, skipping",
			zap.String("category", category),
			zap.String("endpoint", endpoint),
			zap.String("path", destPath),
			zap.Error(err),
		)
		res.Errors = append(res.Errors, err)
		return res
	}

	logger.Log.Info("Data saved",
		zap.String("category", category),
		zap.String("path", destPath),
		zap.Stringer("format", format),
	)
	res.Files = append(res.Files, destPath)
	return res
}

func (e *Exporter) export(ctx context.Context, endpoint, destPath string, format Format) error {
	body, err := e.fetcher.Get(ctx, endpoint)
	if err != nil {
		return err
	}

	data := body
	if format == Structured {
		v, err := decodeJSON(body)
		if err != nil {
			return &ParseError{Source: endpoint, Err: err}
		}
		if data, err = encodeJSON(v); err != nil {
			return &ParseError{Source: endpoint, Err: err}
		}
	}
	return writeFile(destPath, data)
}

// ExportCollection lists c.ListURL, fetches each item's detail record and
// writes one file per item. A failed listing writes nothing; a failed item is
// recorded and the remaining items are still processed.
func (e *Exporter) ExportCollection(ctx context.Context, c Collection) Result {
	res := Result{Category: c.Category, Source: c.ListURL}

	items, err := e.list(ctx, c.ListURL)
	if err != nil {
		logger.Log.Error("Collection listing failed, skipping category",
			zap.String("category", c.Category),
			zap.String("endpoint", c.ListURL),
			zap.Error(err),
		)
		res.Errors = append(res.Errors, err)
		return res
	}
	res.Items = len(items)
	logger.Log.Info("Collection listed",
		zap.String("category", c.Category),
		zap.String("endpoint", c.ListURL),
		zap.Int("count", len(items)),
	)

	detailBase := c.DetailURL
	if detailBase == "" {
		detailBase = c.ListURL
	}
	folderPath := c.FolderPath
	if len(folderPath) == 0 {
		folderPath = DefaultFolderPath
	}
	provisioned := make(map[string]bool)

	for idx, raw := range items {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, errors.Wrapf(ctx.Err(), "%s export interrupted after %d of %d items", c.Category, idx, len(items)))
			return res
		}

		item, ok := raw.(map[string]any)
		if !ok {
			itemErr := &ItemProcessingError{
				Category: c.Category,
				Title:    UnknownTitle,
				Err:      errors.Newf("list entry %d is not a JSON object", idx),
			}
			logger.Log.Error("Skipping collection entry", zap.String("category", c.Category), zap.Error(itemErr))
			res.Errors = append(res.Errors, itemErr)
			continue
		}

		path, err := e.exportItem(ctx, c, Item(item), detailBase, folderPath, provisioned)
		if err != nil {
			logger.Log.Error("Failed to export item, continuing",
				zap.String("category", c.Category),
				zap.Error(err),
			)
			res.Errors = append(res.Errors, err)
			continue
		}
		logger.Log.Info("Data saved", zap.String("category", c.Category), zap.String("path", path))
		res.Files = append(res.Files, path)
	}
	return res
}

func (e *Exporter) list(ctx context.Context, endpoint string) ([]any, error) {
	body, err := e.fetcher.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	v, err := decodeJSON(body)
	if err != nil {
		return nil, &ParseError{Source: endpoint, Err: err}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &ParseError{Source: endpoint, Err: errors.Newf("expected a JSON array, got %T", v)}
	}
	return items, nil
}

func (e *Exporter) exportItem(ctx context.Context, c Collection, item Item, detailBase string, folderPath []string, provisioned map[string]bool) (string, error) {
	id := item.String(c.IDField, "")
	title := tree.SanitizeN(item.String(c.TitleField, UnknownTitle), tree.MaxNameLength-len(itemExt))
	if title == "" {
		title = UnknownTitle
	}
	fail := func(err error) (string, error) {
		return "", &ItemProcessingError{Category: c.Category, ID: id, Title: title, Err: err}
	}

	if id == "" {
		return fail(errors.Newf("item has no %q field", c.IDField))
	}

	detailURL := grafana.JoinID(detailBase, id)
	body, err := e.fetcher.Get(ctx, detailURL)
	if err != nil {
		return fail(err)
	}
	detail, err := decodeJSON(body)
	if err != nil {
		return fail(&ParseError{Source: detailURL, Err: err})
	}

	dir := c.DestDir
	if c.Foldered {
		record, _ := detail.(map[string]any)
		folder := folderName(Item(record).Path(DefaultFolder, folderPath...), c.ReservedFolders)
		dir = filepath.Join(c.DestDir, folder)
		if !provisioned[dir] {
			if errs := tree.Provision([]string{dir}); len(errs) > 0 {
				return fail(errs[0])
			}
			provisioned[dir] = true
		}
	}

	data, err := encodeJSON(detail)
	if err != nil {
		return fail(&ParseError{Source: detailURL, Err: err})
	}
	path := filepath.Join(dir, title+itemExt)
	if err := writeFile(path, data); err != nil {
		return fail(err)
	}
	return path, nil
}

// folderName sanitizes a folder label and falls back to DefaultFolder when the
// result would be empty or would point outside the category directory.
// Reserved names are prefixed so they cannot land in another export's directory.
func folderName(label string, reserved []string) string {
	name := tree.Sanitize(label)
	switch name {
	case "", ".", "..":
		return DefaultFolder
	}
	for _, r := range reserved {
		if strings.EqualFold(name, r) {
			return tree.Sanitize(reservedPrefix + name)
		}
	}
	return name
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, filePerm); err != nil {
		_ = os.Remove(path)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
