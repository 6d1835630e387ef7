package masterlist

import (
	"sync"
	"time"

	"certsync/pkg/result"
)

// RunState labels the outcome of a sync run.
type RunState string

const (
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// RunReport is the externally visible outcome of the most recent run. On
// failure it carries the classification code and message only.
type RunReport struct {
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	RowsStored int
	ErrorCode  result.ErrorCode
	ErrorMsg   string
}

// RunStatus tracks whether a run is in flight and the last outcome. It is
// an explicit state object owned by the composition root and passed by
// reference to whoever needs it; there is no ambient global.
type RunStatus struct {
	mu      sync.Mutex
	running bool
	last    *RunReport
}

// NewRunStatus builds an idle status tracker.
func NewRunStatus() *RunStatus {
	return &RunStatus{}
}

// TryBegin marks a run as started. It reports false when another run is
// already in flight, in which case the caller must not proceed.
func (s *RunStatus) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// Finish records the run outcome and clears the in-flight flag.
func (s *RunStatus) Finish(report RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.last = &report
}

// Running reports whether a run is currently in flight.
func (s *RunStatus) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns a copy of the most recent run report, if any run has
// finished yet.
func (s *RunStatus) Last() (RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunReport{}, false
	}
	return *s.last, true
}
