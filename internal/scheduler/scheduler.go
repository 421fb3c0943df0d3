package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const stopTimeout = 10 * time.Second

// Job is one scheduled unit of work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a single backup job on a cron schedule. Runs never overlap:
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entryID cron.EntryID
	spec    string
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates and starts a Scheduler whose jobs run under ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.Recover(logger.NewCronZapLogger(logger.Log.Named("cron-recover"))),
			cron.SkipIfStillRunning(logger.NewCronZapLogger(logger.Log.Named("cron-skip-if-running"))),
		),
		cron.WithLogger(logger.NewCronZapLogger(logger.Log.Named("cron"))),
	)
	jobCtx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		cron:   c,
		ctx:    jobCtx,
		cancel: cancel,
	}
	s.cron.Start()
	logger.Log.Info("Cron scheduler started")
	return s
}

// normalizeCronSpec accepts both 5-field and 6-field expressions. A 5-field
// expression runs at second 0 of the given minute. Descriptors pass through.
func normalizeCronSpec(spec string) string {
	trimmed := strings.TrimSpace(spec)
	if strings.HasPrefix(trimmed, "@") {
		return trimmed
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 5 {
		return "0 " + strings.Join(fields, " ")
	}
	return strings.Join(fields, " ")
}

// Schedule replaces the current job with job running on spec.
func (s *Scheduler) Schedule(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return errors.New("scheduler is stopped")
	}

	cronSpecToUse := normalizeCronSpec(spec)
	if cronSpecToUse != strings.TrimSpace(spec) {
		logger.Log.Info("Converted 5-field cron expression to 6-field",
			zap.String("originalCron", spec),
			zap.String("convertedCron", cronSpecToUse),
		)
	}

	newID, err := s.cron.AddFunc(cronSpecToUse, func() { job(s.ctx) })
	if err != nil {
		logger.Log.Error("Failed to add cron job",
			zap.String("cronAttempted", cronSpecToUse),
			zap.String("originalCron", spec),
			zap.Error(err),
		)
		return errors.Wrapf(err, "failed to add cron job (attempted: '%s', original: '%s')", cronSpecToUse, spec)
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = newID
	s.spec = spec

	logger.Log.Info("Scheduled backup job",
		zap.String("cron", spec),
		zap.Int("cronEntryID", int(newID)),
		zap.Time("nextRun", s.cron.Entry(newID).Next),
	)
	return nil
}

// Next returns the next activation time, or the zero time when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stop cancels the job context and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	logger.Log.Info("Stopping cron scheduler...")
	s.cancel()
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logger.Log.Info("Cron scheduler stopped gracefully.")
	case <-time.After(stopTimeout):
		logger.Log.Warn("Cron scheduler stop timed out. The running backup may not have finished.",
			zap.Duration("timeout", stopTimeout),
		)
	}
	s.cron = nil
}
