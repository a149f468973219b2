package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alertdomain "nestcare/backend/internal/alert/domain"
	alertsvc "nestcare/backend/internal/alert/service"
	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/geo"
	sessiondomain "nestcare/backend/internal/session/domain"
	trackingdomain "nestcare/backend/internal/tracking/domain"
)

// SessionRepo is the slice of the session store the coordinator needs.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	SetGPSTracking(ctx context.Context, id string, enabled bool, now time.Time) error
	SetCryDetection(ctx context.Context, id string, enabled bool, now time.Time) error
	RecordLocationPing(ctx context.Context, id string, at time.Time) error
	RecordCryDetection(ctx context.Context, id string, at time.Time) error
}

// SampleStore persists GPS samples.
type SampleStore interface {
	Insert(ctx context.Context, s *trackingdomain.Sample) error
}

// AlertRaiser feeds monitoring signals into the alert pipeline.
type AlertRaiser interface {
	Raise(ctx context.Context, in alertsvc.RaiseInput) (*alertdomain.Alert, error)
}

// EventPublisher pushes an event onto a realtime channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// ChannelNamer yields the realtime channel location updates are published to.
type ChannelNamer interface {
	SessionLocationChannel(sessionID string) string
}

// Config carries the tunables for the two capture loops.
type Config struct {
	// LocationInterval is the GPS polling period.
	LocationInterval time.Duration
	// DetectionWindow is the audio capture window per classification cycle.
	DetectionWindow time.Duration
	// CryScoreThreshold is the minimum classifier score treated as a detection.
	CryScoreThreshold float64
	// AnomalyKm is the distance from the session's care location beyond which
	// a gps_anomaly alert is raised.
	AnomalyKm float64
}

// Coordinator owns the per-session monitoring toggles and at most one capture
// loop of each kind per session.
type Coordinator struct {
	repo    SessionRepo
	samples SampleStore
	alerts  AlertRaiser
	bus     EventPublisher
	names   ChannelNamer

	positioner Positioner
	audio      AudioCapturer
	classifier Classifier
	cfg        Config
	logger     *zap.Logger

	mu       sync.Mutex
	gpsLoops map[string]*Handle
	cryLoops map[string]*Handle
}

func NewCoordinator(repo SessionRepo, samples SampleStore, alerts AlertRaiser, bus EventPublisher, names ChannelNamer, positioner Positioner, audio AudioCapturer, classifier Classifier, cfg Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		repo:       repo,
		samples:    samples,
		alerts:     alerts,
		bus:        bus,
		names:      names,
		positioner: positioner,
		audio:      audio,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
		gpsLoops:   make(map[string]*Handle),
		cryLoops:   make(map[string]*Handle),
	}
}

// ToggleGPS enables or disables location tracking for an active session.
// Enabling when already enabled is a no-op. Permission denial is returned to
// the caller and the toggle stays off.
//
// When no Positioner is attached (the usual server deployment) only the flag
// is persisted; the sitter's device runs the capture loop and reports
// through Ingest.
func (c *Coordinator) ToggleGPS(ctx context.Context, sessionID string, enabled bool) (*sessiondomain.Session, error) {
	sess, err := c.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if enabled && c.positioner != nil {
		c.mu.Lock()
		_, running := c.gpsLoops[sessionID]
		c.mu.Unlock()
		if !running {
			sampler := NewLocationSampler(c.positioner, c.cfg.LocationInterval, c.logger)
			expected := sess.Location
			h, err := sampler.Start(sessionID, func(loopCtx context.Context, p Position, at time.Time) {
				c.handleLocationSample(loopCtx, sessionID, expected, p, at)
			})
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			if _, dup := c.gpsLoops[sessionID]; dup {
				// Lost a race with a concurrent enable; keep the first loop.
				c.mu.Unlock()
				h.Stop()
			} else {
				c.gpsLoops[sessionID] = h
				c.mu.Unlock()
			}
		}
	} else if !enabled {
		c.stopLoop(c.gpsLoops, sessionID)
	}

	return c.persistToggle(ctx, sessionID, c.repo.SetGPSTracking, enabled)
}

// ToggleCryDetection enables or disables audio distress detection for an
// active session. Without an attached AudioCapturer and Classifier only the
// flag is persisted, as with ToggleGPS.
func (c *Coordinator) ToggleCryDetection(ctx context.Context, sessionID string, enabled bool) (*sessiondomain.Session, error) {
	if _, err := c.activeSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if enabled && c.audio != nil && c.classifier != nil {
		c.mu.Lock()
		_, running := c.cryLoops[sessionID]
		c.mu.Unlock()
		if !running {
			detector := NewDistressDetector(c.audio, c.classifier, c.cfg.DetectionWindow, c.cfg.CryScoreThreshold, c.logger)
			h, err := detector.Start(sessionID, func(loopCtx context.Context, cls Classification, at time.Time) {
				c.handleCryDetection(loopCtx, sessionID, cls, at)
			})
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			if _, dup := c.cryLoops[sessionID]; dup {
				c.mu.Unlock()
				h.Stop()
			} else {
				c.cryLoops[sessionID] = h
				c.mu.Unlock()
			}
		}
	} else if !enabled {
		c.stopLoop(c.cryLoops, sessionID)
	}

	return c.persistToggle(ctx, sessionID, c.repo.SetCryDetection, enabled)
}

// StartMonitoring starts whichever capture loops the session's individual
// toggles have enabled.
func (c *Coordinator) StartMonitoring(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	sess, err := c.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.GPSTrackingEnabled {
		if _, err := c.ToggleGPS(ctx, sessionID, true); err != nil {
			return nil, err
		}
	}
	if sess.CryDetectionEnabled {
		if _, err := c.ToggleCryDetection(ctx, sessionID, true); err != nil {
			// Leave any GPS loop already started running; the caller decides
			// whether to stop everything.
			return nil, err
		}
	}
	return c.repo.GetByID(ctx, sessionID)
}

// StopMonitoring releases every capture loop for the session. It never fails,
// is safe to call repeatedly, and is safe when monitoring was never started.
func (c *Coordinator) StopMonitoring(ctx context.Context, sessionID string) {
	c.stopLoop(c.gpsLoops, sessionID)
	c.stopLoop(c.cryLoops, sessionID)
}

// StopAll releases every capture loop the coordinator owns. Used on shutdown.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.gpsLoops)+len(c.cryLoops))
	for id, h := range c.gpsLoops {
		handles = append(handles, h)
		delete(c.gpsLoops, id)
	}
	for id, h := range c.cryLoops {
		handles = append(handles, h)
		delete(c.cryLoops, id)
	}
	c.mu.Unlock()
	for _, h := range handles {
		h.Stop()
	}
}

func (c *Coordinator) activeSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	if sessionID == "" {
		return nil, &apperr.ValidationError{Field: "session_id", Reason: "is required"}
	}
	sess, err := c.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, &apperr.TransportError{Op: "load session", Err: err}
	}
	if sess == nil {
		return nil, &apperr.NotFoundError{Resource: "session", ID: sessionID}
	}
	if sess.Status != sessiondomain.StatusActive {
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(sess.Status), Attempted: "monitor"}
	}
	return sess, nil
}

// persistToggle writes one toggle column through the given setter and returns
// the reloaded session.
func (c *Coordinator) persistToggle(ctx context.Context, sessionID string, set func(context.Context, string, bool, time.Time) error, enabled bool) (*sessiondomain.Session, error) {
	if err := set(ctx, sessionID, enabled, time.Now().UTC()); err != nil {
		return nil, &apperr.TransportError{Op: "persist monitoring flags", Err: err}
	}
	sess, err := c.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, &apperr.TransportError{Op: "reload session", Err: err}
	}
	return sess, nil
}

func (c *Coordinator) stopLoop(loops map[string]*Handle, sessionID string) {
	c.mu.Lock()
	h, ok := loops[sessionID]
	if ok {
		delete(loops, sessionID)
	}
	c.mu.Unlock()
	if ok {
		h.Stop()
	}
}

// Ingest records a device-reported position through the same path the
// sampling loop uses. The session must be active.
func (c *Coordinator) Ingest(ctx context.Context, sessionID string, p Position, at time.Time) (*trackingdomain.Sample, error) {
	sess, err := c.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.recordSample(ctx, sessionID, sess.Location, p, at)
}

// handleLocationSample runs on every GPS tick. Store or publish failures are
// logged and the loop keeps going.
func (c *Coordinator) handleLocationSample(ctx context.Context, sessionID string, expected sessiondomain.Location, p Position, at time.Time) {
	if _, err := c.recordSample(ctx, sessionID, expected, p, at); err != nil {
		c.logger.Warn("location sample store failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) recordSample(ctx context.Context, sessionID string, expected sessiondomain.Location, p Position, at time.Time) (*trackingdomain.Sample, error) {
	sample := &trackingdomain.Sample{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		AccuracyM:  p.AccuracyM,
		AltitudeM:  p.AltitudeM,
		SpeedMps:   p.SpeedMps,
		Heading:    p.Heading,
		RecordedAt: at,
	}
	if err := c.samples.Insert(ctx, sample); err != nil {
		return nil, &apperr.TransportError{Op: "store location sample", Err: err}
	}
	if err := c.repo.RecordLocationPing(ctx, sessionID, at); err != nil {
		c.logger.Warn("location ping update failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if c.bus != nil {
		if err := c.bus.Publish(ctx, c.names.SessionLocationChannel(sessionID), "location.updated", sample); err != nil {
			c.logger.Warn("location event publish failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
	c.checkAnomaly(ctx, sessionID, expected, p)
	return sample, nil
}

// checkAnomaly raises a gps_anomaly alert when the sitter strays farther than
// AnomalyKm from the session's care location. Sessions without coordinates
// are never flagged.
func (c *Coordinator) checkAnomaly(ctx context.Context, sessionID string, expected sessiondomain.Location, p Position) {
	if c.cfg.AnomalyKm <= 0 || expected.Latitude == nil || expected.Longitude == nil {
		return
	}
	dist := geo.HaversineKm(p.Latitude, p.Longitude, *expected.Latitude, *expected.Longitude)
	if dist <= c.cfg.AnomalyKm {
		return
	}
	_, err := c.alerts.Raise(ctx, alertsvc.RaiseInput{
		SessionID: sessionID,
		Type:      alertdomain.TypeGPSAnomaly,
		Severity:  alertdomain.SeverityHigh,
		Title:     "Sitter far from care location",
		Message:   formatAnomalyMessage(dist),
	})
	if err != nil {
		c.logger.Warn("gps anomaly alert failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) handleCryDetection(ctx context.Context, sessionID string, cls Classification, at time.Time) {
	if err := c.repo.RecordCryDetection(ctx, sessionID, at); err != nil {
		c.logger.Warn("cry detection update failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	_, err := c.alerts.Raise(ctx, alertsvc.RaiseInput{
		SessionID: sessionID,
		Type:      alertdomain.TypeCryDetection,
		Severity:  alertdomain.SeverityMedium,
		Title:     "Crying detected",
		Message:   formatCryMessage(cls.Score),
	})
	if err != nil {
		c.logger.Warn("cry alert failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func formatAnomalyMessage(distKm float64) string {
	return fmt.Sprintf("The sitter's device is %.1f km from the care location.", distKm)
}

func formatCryMessage(score float64) string {
	return fmt.Sprintf("The sitter's device picked up crying (confidence %.0f%%).", score*100)
}
