// Package scheduler runs mailbox scans on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// DefaultSchedule scans every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// Job is invoked on every tick with the scheduler's context.
type Job func(ctx context.Context)

// Scheduler triggers a Job on a standard five-field cron expression. A tick
// is skipped while the previous run is still going.
type Scheduler struct {
	cron *rcron.Cron
	spec string
	job  Job
}

// New validates spec and creates a scheduler.
func New(spec string, job Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := rcron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	logger := slogLogger{}
	return &Scheduler{
		cron: rcron.New(rcron.WithChain(
			rcron.Recover(logger),
			rcron.SkipIfStillRunning(logger),
		)),
		spec: spec,
		job:  job,
	}, nil
}

// Run starts the schedule and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "schedule", s.spec, "next", s.Next())

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("Scheduler stop timed out waiting for running job")
	}
	slog.Info("Scheduler stopped")
	return nil
}

// Next reports the next scheduled run, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("Cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("Cron "+msg, append([]any{"error", err}, keysAndValues...)...)
}
