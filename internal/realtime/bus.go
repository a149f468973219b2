// Package realtime fans session events out to subscribers over Redis pub/sub.
// Delivery is at-least-once from the subscriber's point of view; handlers are
// expected to be idempotent.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"nestcare/backend/internal/apperr"
)

// Event is one message on a session channel.
type Event struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Channels maps session ids onto their pub/sub channel names.
type Channels struct{}

func (Channels) SessionChannel(sessionID string) string { return "session:" + sessionID }

func (Channels) SessionAlertsChannel(sessionID string) string {
	return "session:" + sessionID + ":alerts"
}

func (Channels) SessionLocationChannel(sessionID string) string {
	return "session:" + sessionID + ":location"
}

// Bus publishes and subscribes session events through Redis.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// Publish sends the payload to everyone subscribed on channel.
func (b *Bus) Publish(ctx context.Context, channel, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &apperr.TransportError{Op: "encode event", Err: err}
	}
	ev := Event{
		Channel: channel,
		Type:    eventType,
		Payload: raw,
		At:      time.Now().UTC(),
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return &apperr.TransportError{Op: "encode event", Err: err}
	}
	if err := b.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return &apperr.TransportError{Op: "publish event", Err: err}
	}
	return nil
}

// Subscription is a live event stream for one channel. Unsubscribe releases
// the underlying pub/sub connection and is safe to call more than once.
type Subscription struct {
	events chan Event
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// Events is the stream of matching events. It is closed after Unsubscribe.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.pubsub.Close()
	})
}

// Subscribe opens an event stream on channel. Events failing the predicate
// are dropped before delivery; a nil predicate matches everything. Malformed
// messages are logged and skipped.
func (b *Bus) Subscribe(ctx context.Context, channel string, predicate func(Event) bool) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	// Force the subscription to be established before returning so callers
	// never miss events published right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, &apperr.TransportError{Op: "subscribe", Err: err}
	}

	sub := &Subscription{
		events: make(chan Event, 16),
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed realtime event",
					zap.String("channel", channel),
					zap.Error(err),
				)
				continue
			}
			if predicate != nil && !predicate(ev) {
				continue
			}
			// A consumer that stopped draining must not pin this
			// goroutine on the send forever.
			select {
			case sub.events <- ev:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}
