// Package scheduler triggers sync runs on a cron expression. The run
// itself decides whether it may proceed; the scheduler only fires.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	"certsync/pkg/result"
)

// Syncer is the single operation the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context) result.Result[int]
}

// Scheduler fires periodic sync runs.
type Scheduler struct {
	syncer       Syncer
	scheduler    gocron.Scheduler
	logger       *slog.Logger
	runOnStartup bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunOnStartup makes Start fire one run immediately before the cron
// schedule takes over.
func WithRunOnStartup(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStartup = enabled }
}

// New builds a scheduler for the given 5-field cron expression. An
// invalid expression is a construction-time error.
func New(syncer Syncer, cronExpr string, opts ...Option) (*Scheduler, error) {
	if syncer == nil {
		return nil, fmt.Errorf("scheduler: syncer is required")
	}

	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	s := &Scheduler{
		syncer:    syncer,
		scheduler: inner,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if _, err := inner.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.runSync),
	); err != nil {
		_ = inner.Shutdown()
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", cronExpr, err)
	}

	return s, nil
}

// Start begins the schedule. With run-on-startup enabled, one run happens
// synchronously first so a fresh deployment does not wait for the next
// cron tick to populate the trust store.
func (s *Scheduler) Start(ctx context.Context) {
	if s.runOnStartup {
		s.logger.Info("running startup sync")
		s.syncer.Sync(ctx)
	}
	s.logger.Info("scheduler started")
	s.scheduler.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("scheduler shutdown", "error", err)
		return
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSync() {
	// Overlap protection lives in the service; a refused run logs itself.
	s.syncer.Sync(context.Background())
}
