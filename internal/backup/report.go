package backup

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"grafana-backup/internal/exporter"
	"grafana-backup/internal/tree"

	"github.com/cockroachdb/errors"
)

// ReportFileName is written to the run's Summary directory.
const ReportFileName = "backup-report.json"

// maxNotifiedErrors caps the error messages carried in a notification.
const maxNotifiedErrors = 20

// TaskReport is the serialisable form of one export Result.
type TaskReport struct {
	Category string   `json:"category"`
	Source   string   `json:"source"`
	Items    int      `json:"items,omitempty"`
	Files    int      `json:"files_written"`
	Errors   []string `json:"errors,omitempty"`
}

// StorageReport describes the archive copy of a run.
type StorageReport struct {
	Type        string `json:"type"`
	ObjectName  string `json:"object_name"`
	Destination string `json:"destination"`
	SizeBytes   int64  `json:"size_bytes"`
	Checksum    string `json:"sha256"`
	Encrypted   bool   `json:"encrypted"`
	GCDeleted   int    `json:"gc_deleted"`
	// GCWouldDelete counts objects a dry-run GC pass left in place.
	GCWouldDelete int `json:"gc_would_delete,omitempty"`
}

// Report is the outcome of one run.
type Report struct {
	RunID           string         `json:"run_id"`
	Environment     string         `json:"environment"`
	GrafanaHost     string         `json:"grafana_host"`
	Timestamp       string         `json:"timestamp"`
	BackupRoot      string         `json:"backup_root"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	FilesWritten    int            `json:"files_written"`
	ErrorCount      int            `json:"error_count"`
	Success         bool           `json:"success"`
	Tasks           []TaskReport   `json:"tasks"`
	RunErrors       []string       `json:"run_errors,omitempty"`
	Storage         *StorageReport `json:"storage,omitempty"`

	results []exporter.Result
	errs    []error
}

func newReport(rc RunContext, layout tree.Layout) *Report {
	return &Report{
		RunID:       rc.RunID,
		Environment: rc.Environment,
		GrafanaHost: rc.Host,
		Timestamp:   rc.Timestamp.Format(tree.TimestampLayout),
		BackupRoot:  layout.Root,
		StartedAt:   rc.Timestamp,
		Tasks:       []TaskReport{},
	}
}

// addResult records an export outcome.
func (r *Report) addResult(res exporter.Result) {
	r.results = append(r.results, res)
	r.errs = append(r.errs, res.Errors...)

	tr := TaskReport{
		Category: res.Category,
		Source:   res.Source,
		Items:    res.Items,
		Files:    len(res.Files),
	}
	for _, err := range res.Errors {
		tr.Errors = append(tr.Errors, err.Error())
	}
	r.Tasks = append(r.Tasks, tr)
	r.FilesWritten += len(res.Files)
	r.ErrorCount = len(r.errs)
}

// addError records a failure outside any export: provisioning, archiving,
// retention or the report file itself.
func (r *Report) addError(err error) {
	if err == nil {
		return
	}
	r.errs = append(r.errs, err)
	r.RunErrors = append(r.RunErrors, err.Error())
	r.ErrorCount = len(r.errs)
}

func (r *Report) finish(now time.Time) {
	r.FinishedAt = now
	r.DurationSeconds = now.Sub(r.StartedAt).Seconds()
	r.ErrorCount = len(r.errs)
	r.Success = r.ErrorCount == 0
}

// Results returns the export results in execution order.
func (r *Report) Results() []exporter.Result {
	return r.results
}

// Errors returns every error recorded during the run.
func (r *Report) Errors() []error {
	return r.errs
}

// ErrorMessages returns at most limit error messages; limit <= 0 means all.
func (r *Report) ErrorMessages(limit int) []string {
	n := len(r.errs)
	if limit > 0 && n > limit {
		n = limit
	}
	msgs := make([]string, 0, n)
	for _, err := range r.errs[:n] {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// Files returns every file written by the exports.
func (r *Report) Files() []string {
	var files []string
	for _, res := range r.results {
		files = append(files, res.Files...)
	}
	return files
}

// WriteFile stores the report as indented JSON at path.
func (r *Report) WriteFile(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "encoding backup report")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "writing backup report %s", path)
	}
	return nil
}
