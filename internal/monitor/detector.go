package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"nestcare/backend/internal/apperr"
)

// DistressDetector captures audio in fixed windows and runs each chunk
// through the classifier.
type DistressDetector struct {
	audio      AudioCapturer
	classifier Classifier
	window     time.Duration
	threshold  float64
	logger     *zap.Logger
}

func NewDistressDetector(audio AudioCapturer, classifier Classifier, window time.Duration, threshold float64, logger *zap.Logger) *DistressDetector {
	return &DistressDetector{
		audio:      audio,
		classifier: classifier,
		window:     window,
		threshold:  threshold,
		logger:     logger,
	}
}

// Start requests microphone permission and, if granted, launches the
// capture/classify cycle. onDetect fires only for positive classifications
// at or above the score threshold. Classification failures degrade to "no
// detection this cycle"; capture failures are logged and the loop continues.
func (d *DistressDetector) Start(sessionID string, onDetect func(ctx context.Context, c Classification, at time.Time)) (*Handle, error) {
	permCtx, cancelPerm := context.WithTimeout(context.Background(), 10*time.Second)
	err := d.audio.RequestPermission(permCtx)
	cancelPerm()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		for {
			if ctx.Err() != nil {
				return
			}
			chunk, err := d.audio.Capture(ctx, d.window)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Warn("audio capture failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				// Back off so a broken capturer does not spin.
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.window):
				}
				continue
			}

			c, err := d.classifier.Classify(ctx, chunk)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				var ce *apperr.ClassificationError
				if !errors.As(err, &ce) {
					err = &apperr.ClassificationError{Err: err}
				}
				d.logger.Warn("distress classification failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				continue
			}
			if c.Label == LabelCrying && c.Score >= d.threshold {
				onDetect(ctx, c, time.Now().UTC())
			}
		}
	}()
	return h, nil
}
