package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle cancels a running capture loop. Stop blocks until the loop goroutine
// has exited and is safe to call more than once.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *Handle) Stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// LocationSampler polls the positioning capability at a fixed interval.
type LocationSampler struct {
	pos      Positioner
	interval time.Duration
	logger   *zap.Logger
}

func NewLocationSampler(pos Positioner, interval time.Duration, logger *zap.Logger) *LocationSampler {
	return &LocationSampler{pos: pos, interval: interval, logger: logger}
}

// Start requests location permission and, if granted, launches the polling
// loop. Each successful fix is handed to onSample with its capture time.
// Permission denial is returned to the caller and no loop is started.
// Transient sampling errors inside an established loop are logged and the
// loop continues.
func (s *LocationSampler) Start(sessionID string, onSample func(ctx context.Context, p Position, at time.Time)) (*Handle, error) {
	permCtx, cancelPerm := context.WithTimeout(context.Background(), 10*time.Second)
	err := s.pos.RequestPermission(permCtx)
	cancelPerm()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			p, err := s.pos.SampleOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("location sample failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				continue
			}
			onSample(ctx, p, time.Now().UTC())
		}
	}()
	return h, nil
}
