package clock

import (
	"context"
	"strconv"
	"time"

	"github.com/hollowmere/hollowmere/internal/services/world/observability/telemetry"
	"github.com/hollowmere/hollowmere/internal/services/world/storage"
)

// AdvanceNotice announces a world clock advancement to downstream
// projections. The same notice may be delivered more than once; consumers
// must be idempotent per (location, tick).
type AdvanceNotice struct {
	Tick          int64
	Reason        string
	CorrelationID string
}

// Notifier accepts world-advanced notices for asynchronous delivery.
type Notifier interface {
	WorldAdvanced(notice AdvanceNotice)
}

// AdvanceConsumer handles delivered notices.
type AdvanceConsumer interface {
	HandleWorldAdvanced(ctx context.Context, notice AdvanceNotice) error
}

const (
	defaultNotifyBuffer   = 16
	defaultNotifyAttempts = 5
	defaultNotifyBackoff  = 250 * time.Millisecond
)

// AsyncNotifier queues notices and delivers them to a consumer with
// bounded retries. Delivery is at-least-once: a retried notice may reach
// the consumer after an earlier attempt already partially applied it.
type AsyncNotifier struct {
	consumer  AdvanceConsumer
	telemetry *telemetry.Emitter
	notices   chan AdvanceNotice
	attempts  int
	backoff   time.Duration
}

// NewAsyncNotifier creates a notifier delivering to consumer.
func NewAsyncNotifier(consumer AdvanceConsumer, emitter *telemetry.Emitter) *AsyncNotifier {
	return &AsyncNotifier{
		consumer:  consumer,
		telemetry: emitter,
		notices:   make(chan AdvanceNotice, defaultNotifyBuffer),
		attempts:  defaultNotifyAttempts,
		backoff:   defaultNotifyBackoff,
	}
}

// WorldAdvanced enqueues a notice. It blocks when the queue is full rather
// than dropping; world advances are rare and loss would starve projections.
func (n *AsyncNotifier) WorldAdvanced(notice AdvanceNotice) {
	if n == nil {
		return
	}
	n.notices <- notice
}

// Run delivers queued notices until the context is cancelled.
func (n *AsyncNotifier) Run(ctx context.Context) error {
	if n == nil || n.consumer == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notice := <-n.notices:
			n.deliver(ctx, notice)
		}
	}
}

func (n *AsyncNotifier) deliver(ctx context.Context, notice AdvanceNotice) {
	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return
		}
		lastErr = n.consumer.HandleWorldAdvanced(ctx, notice)
		if lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.backoff * time.Duration(attempt)):
		}
	}
	_ = n.telemetry.Emit(ctx, storage.TelemetryEvent{
		Name:     "Location.Clock.NotifyFailed",
		Severity: string(telemetry.SeverityError),
		Properties: map[string]string{
			"world_tick":     strconv.FormatInt(notice.Tick, 10),
			"correlation_id": notice.CorrelationID,
			"attempts":       strconv.Itoa(n.attempts),
			"error":          lastErr.Error(),
		},
	})
}
