// Package events publishes sync outcomes for downstream consumers that
// mirror or audit the trust store. Delivery is best-effort: a broker
// outage never fails a sync that already persisted its rows.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

const (
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// SyncEvent is the wire payload published after every run.
type SyncEvent struct {
	Event      string    `json:"event"`
	Source     string    `json:"source"`
	RowsStored *int      `json:"rows_stored,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewCompletedEvent builds the payload for a successful run.
func NewCompletedEvent(rows int, at time.Time) SyncEvent {
	return SyncEvent{
		Event:      EventSyncCompleted,
		Source:     masterlist.SourceICAOMasterList,
		RowsStored: &rows,
		OccurredAt: at.UTC(),
	}
}

// NewFailedEvent builds the payload for a failed run. Only the
// classification and message cross the boundary, never the cause chain.
func NewFailedEvent(desc *result.FailureDescription, at time.Time) SyncEvent {
	ev := SyncEvent{
		Event:      EventSyncFailed,
		Source:     masterlist.SourceICAOMasterList,
		OccurredAt: at.UTC(),
	}
	if desc != nil {
		ev.ErrorCode = string(desc.Code)
		ev.Message = desc.Message
	}
	return ev
}

// KafkaNotifier publishes sync events through a franz-go client. The
// client carries the target topic via kgo.DefaultProduceTopic.
type KafkaNotifier struct {
	client *kgo.Client
	logger *slog.Logger
	clock  func() time.Time
}

// KafkaOption configures a KafkaNotifier.
type KafkaOption func(*KafkaNotifier)

// WithLogger sets the notifier logger.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(n *KafkaNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithClock pins the event timestamp source.
func WithClock(clock func() time.Time) KafkaOption {
	return func(n *KafkaNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewKafka constructs a Kafka-backed notifier.
func NewKafka(client *kgo.Client, opts ...KafkaOption) *KafkaNotifier {
	n := &KafkaNotifier{
		client: client,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// SyncCompleted publishes a completion event.
func (n *KafkaNotifier) SyncCompleted(ctx context.Context, rows int) {
	n.produce(ctx, NewCompletedEvent(rows, n.clock()))
}

// SyncFailed publishes a failure event.
func (n *KafkaNotifier) SyncFailed(ctx context.Context, desc *result.FailureDescription) {
	n.produce(ctx, NewFailedEvent(desc, n.clock()))
}

func (n *KafkaNotifier) produce(ctx context.Context, ev SyncEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("encode sync event", "event", ev.Event, "error", err)
		return
	}
	record := &kgo.Record{Key: []byte(ev.Source), Value: payload}
	n.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			n.logger.Error("publish sync event", "event", ev.Event, "error", err)
			return
		}
		n.logger.Debug("sync event published", "event", ev.Event)
	})
}

// Noop is the notifier used when no broker is configured.
type Noop struct{}

func (Noop) SyncCompleted(context.Context, int)                     {}
func (Noop) SyncFailed(context.Context, *result.FailureDescription) {}
