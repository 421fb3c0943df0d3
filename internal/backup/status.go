package backup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grafana-backup/internal/logger"
	"grafana-backup/internal/writer"

	"go.uber.org/zap"
)

// StatusSummary is the /status view of the last run.
type StatusSummary struct {
	RunID           string         `json:"run_id"`
	Environment     string         `json:"environment"`
	Success         bool           `json:"success"`
	FilesWritten    int            `json:"files_written"`
	ErrorCount      int            `json:"error_count"`
	Errors          []string       `json:"errors,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	BackupRoot      string         `json:"backup_root"`
	Storage         *StorageReport `json:"storage,omitempty"`
}

// Summary condenses the report for the status endpoint.
func (r *Report) Summary() StatusSummary {
	return StatusSummary{
		RunID:           r.RunID,
		Environment:     r.Environment,
		Success:         r.Success,
		FilesWritten:    r.FilesWritten,
		ErrorCount:      r.ErrorCount,
		Errors:          r.ErrorMessages(maxNotifiedErrors),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationSeconds: r.DurationSeconds,
		BackupRoot:      r.BackupRoot,
		Storage:         r.Storage,
	}
}

// NextRunFunc reports when the scheduler will run next.
type NextRunFunc func() time.Time

// StatusHandler serves /healthz, /readyz and /status for cron mode.
func StatusHandler(r *Runner, nextRun NextRunFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
		logger.Log.Debug("Health check successful", zap.String("path", req.URL.Path))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := writer.CheckDiskSpace(r.cfg.BaseDir); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready\nDisk: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready\nDisk: OK")
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"schedule":  r.cfg.Schedule.Cron,
			"last_run":  nil,
		}
		if nextRun != nil {
			if next := nextRun(); !next.IsZero() {
				status["next_run"] = next.UTC().Format(time.RFC3339)
			}
		}
		if last := r.LastReport(); last != nil {
			status["last_run"] = last.Summary()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Log.Warn("Failed to encode status response", zap.Error(err))
		}
	})

	return mux
}
