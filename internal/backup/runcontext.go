package backup

import (
	"time"

	"grafana-backup/internal/tree"

	"github.com/google/uuid"
)

// RunContext identifies one backup run. It is built once and not modified.
// The bearer token stays with the Grafana client and is never part of it.
type RunContext struct {
	RunID       string
	Environment string
	Timestamp   time.Time
	Host        string
}

func NewRunContext(environment, host string, now time.Time) RunContext {
	return RunContext{
		RunID:       uuid.NewString(),
		Environment: environment,
		Timestamp:   now,
		Host:        host,
	}
}

// RunDirName is the run directory name, <environment>_<ddmmyyHHMMSS>.
func (rc RunContext) RunDirName() string {
	return tree.RunDirName(rc.Environment, rc.Timestamp)
}
