// Package notify delivers best-effort push notifications through a fanout
// exchange. Delivery is advisory: failures are logged and never block the
// operation that scheduled the notification.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// scheduleTimeout is the max time allowed for a single async delivery.
const scheduleTimeout = 5 * time.Second

// Notification is one message to deliver to a user's devices.
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
}

// Notifier schedules a notification for delivery.
type Notifier interface {
	Schedule(ctx context.Context, n Notification) error
}

// ScheduleAsync runs Schedule in a goroutine with a short timeout so the caller
// is not blocked. Errors are logged. notifier may be nil; ScheduleAsync returns
// immediately without starting a goroutine.
//
// The goroutine uses context.Background() with scheduleTimeout so request
// cancellation does not abort an in-flight delivery.
func ScheduleAsync(notifier Notifier, n Notification, logger *zap.Logger) {
	if notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduleTimeout)
		defer cancel()
		if err := notifier.Schedule(ctx, n); err != nil {
			logger.Warn("async notification delivery failed",
				zap.String("title", n.Title),
				zap.Error(err),
			)
		}
	}()
}

// Nop is a Notifier that drops everything. Used when AMQP is not configured.
type Nop struct{}

func (Nop) Schedule(ctx context.Context, n Notification) error { return nil }
