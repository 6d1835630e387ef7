package store

import (
	"context"
	"sync"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

// Memory is an in-memory trust store for unit tests and local runs. It
// mirrors the replace semantics of the PostgreSQL store: a failure leaves
// the previous contents in place.
type Memory struct {
	mu       sync.Mutex
	payload  *masterlist.MasterListPayload
	failWith *result.FailureDescription
	calls    int
}

// NewMemory constructs an empty in-memory trust store.
func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes every subsequent Store call fail with the description.
// Pass nil to restore normal behaviour.
func (m *Memory) FailWith(desc *result.FailureDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = desc
}

// Store replaces the held payload and reports the number of records.
func (m *Memory) Store(_ context.Context, payload *masterlist.MasterListPayload) result.Result[int] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return result.FailFrom[int](m.failWith)
	}
	if payload == nil {
		return result.Fail[int](result.CodeDatabase, "nil payload")
	}
	m.payload = payload
	return result.Ok(payload.TotalItems())
}

// Contents returns the currently held payload, or nil before the first
// successful replace.
func (m *Memory) Contents() *masterlist.MasterListPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload
}

// Calls reports how many times Store was invoked.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
