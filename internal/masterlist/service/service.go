// Package service coordinates sync runs: it serializes them in-process
// and across instances, executes the pipeline inside an execution
// context, and fans the outcome out to status, metrics, and downstream
// notifications.
package service

import (
	"context"
	"log/slog"
	"time"

	"certsync/internal/masterlist"
	"certsync/internal/masterlist/events"
	"certsync/internal/masterlist/lock"
	"certsync/internal/platform/metrics"
	"certsync/pkg/result"
)

// Runner executes one complete sync and reports the rows written.
type Runner interface {
	Run(ctx context.Context) result.Result[int]
}

// Service is the application-level entry point for sync runs. Scheduler
// and HTTP trigger both go through Sync.
type Service struct {
	runner   Runner
	lock     masterlist.RunLock
	notifier masterlist.Notifier
	metrics  *metrics.Metrics
	status   *masterlist.RunStatus
	exec     result.ExecutionContext[int]
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLock sets the cross-instance run lock.
func WithLock(l masterlist.RunLock) Option {
	return func(s *Service) {
		if l != nil {
			s.lock = l
		}
	}
}

// WithNotifier sets the outcome notifier.
func WithNotifier(n masterlist.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithExecutionContext replaces the default logging context around runs.
func WithExecutionContext(ec result.ExecutionContext[int]) Option {
	return func(s *Service) {
		if ec != nil {
			s.exec = ec
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock pins the time source for reports and durations.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs the sync service around a runner.
func New(runner Runner, opts ...Option) *Service {
	s := &Service{
		runner:   runner,
		lock:     lock.Noop{},
		notifier: events.Noop{},
		status:   masterlist.NewRunStatus(),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.exec == nil {
		s.exec = result.NewLogging[int](s.logger, "masterlist sync")
	}
	return s
}

// Status exposes the run tracker for transport handlers.
func (s *Service) Status() *masterlist.RunStatus {
	return s.status
}

// Sync performs one run end to end. A run already in flight in this
// process is refused immediately with a business-rule failure and leaves
// no trace in the run history.
func (s *Service) Sync(ctx context.Context) result.Result[int] {
	if !s.status.TryBegin() {
		if s.metrics != nil {
			s.metrics.ObserveRejected()
		}
		return result.Fail[int](result.CodeBusinessRule, "sync already in progress")
	}

	started := s.clock()
	res := s.lockedRun(ctx)
	finished := s.clock()
	elapsed := finished.Sub(started)

	report := masterlist.RunReport{
		StartedAt:  started,
		FinishedAt: finished,
	}
	if desc, failed := res.Failure(); failed {
		report.State = masterlist.RunStateFailed
		report.ErrorCode = desc.Code
		report.ErrorMsg = desc.Message
		s.status.Finish(report)
		if s.metrics != nil {
			s.metrics.ObserveFailure(string(desc.Code), elapsed)
		}
		s.notifier.SyncFailed(ctx, desc)
		return res
	}

	rows := res.MustValue()
	report.State = masterlist.RunStateSucceeded
	report.RowsStored = rows
	s.status.Finish(report)
	if s.metrics != nil {
		s.metrics.ObserveSuccess(rows, elapsed)
	}
	s.notifier.SyncCompleted(ctx, rows)
	return res
}

// lockedRun takes the cross-instance lease and executes the pipeline
// inside the configured execution context. The lease is released even
// when the run panics, because the execution context converts panics into
// failures before the deferred release runs.
func (s *Service) lockedRun(ctx context.Context) result.Result[int] {
	return result.FlatMap(s.lock.TryAcquire(ctx),
		func(unlock masterlist.UnlockFunc) result.Result[int] {
			defer unlock(ctx)
			return s.exec.Execute(ctx, func(ctx context.Context) result.Result[int] {
				return s.runner.Run(ctx)
			})
		})
}
