// Package camera caches the newest frame published by the robot's
// camera and serves it to the bridge on demand.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/robobridge/codec"
	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
)

// Config locates the camera stream and bounds frame freshness.
type Config struct {
	// Subject carries JPEG frames from the camera publisher.
	Subject string

	// MaxAge rejects cached frames older than this at capture time.
	// Zero disables the staleness check.
	MaxAge time.Duration
}

// Deps carries the shared infrastructure the source runs on.
type Deps struct {
	NATSClient *natsclient.Client
	Logger     *slog.Logger
	Metrics    *metric.MetricsRegistry
}

// Source subscribes to the camera subject and keeps only the newest
// frame. Frames are decoded at capture time, not on arrival: the
// camera can outpace utterances by orders of magnitude, and JPEG work
// for frames nobody asks about is wasted. It satisfies bridge.Camera
// and component.LifecycleComponent.
type Source struct {
	cfg     Config
	client  *natsclient.Client
	logger  *slog.Logger
	metrics *metric.Metrics
	dec     *codec.Codec

	mu        sync.Mutex
	sub       *nats.Subscription
	startedAt time.Time

	frameMu sync.RWMutex
	frame   []byte
	frameAt time.Time

	received atomic.Uint64
	captures atomic.Uint64
	misses   atomic.Uint64
}

// New builds the source. Initialize validates the configuration.
func New(cfg Config, deps Deps) *Source {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		cfg:    cfg,
		client: deps.NATSClient,
		logger: logger.With("component", "camera-source"),
	}
	if deps.Metrics != nil {
		s.metrics = deps.Metrics.CoreMetrics()
	}
	return s
}

// Meta describes the source to the supervisor.
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        "camera-source",
		Type:        "input",
		Description: "NATS camera frame cache",
		Version:     "1.0.0",
	}
}

// Health reports whether the source is subscribed and its connection
// is live. Staleness shows up at capture time, not here; a paused
// camera with a live subscription is still a healthy source.
func (s *Source) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := component.HealthStatus{
		LastCheck:  time.Now(),
		ErrorCount: int(s.misses.Load()),
	}
	if s.sub != nil {
		h.Healthy = s.sub.IsValid() && s.client.IsHealthy()
		h.Uptime = time.Since(s.startedAt)
	}
	return h
}

// Initialize validates the wiring and prepares the decoder.
func (s *Source) Initialize() error {
	if s.client == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "CameraSource", "Initialize", "NATS client required")
	}
	if s.cfg.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "CameraSource", "Initialize", "camera subject is required")
	}
	if s.cfg.MaxAge < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "CameraSource", "Initialize", "max age must not be negative")
	}

	dec, err := codec.New()
	if err != nil {
		return errors.Wrap(err, "CameraSource", "Initialize", "build decoder")
	}
	s.dec = dec
	return nil
}

// Start subscribes to the camera subject.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "CameraSource", "Start", "source already running")
	}
	if s.dec == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "CameraSource", "Start", "initialize first")
	}

	sub, err := s.client.Subscribe(ctx, s.cfg.Subject, s.handleFrame)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"CameraSource", "Start", fmt.Sprintf("subscribe to %s", s.cfg.Subject))
	}
	s.sub = sub
	s.startedAt = time.Now()

	s.logger.Info("camera source started", "subject", s.cfg.Subject, "max_age", s.cfg.MaxAge)
	return nil
}

// Stop unsubscribes and drops the cached frame. The shared NATS
// client stays open.
func (s *Source) Stop(_ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "CameraSource", "Stop", "source not running")
	}
	if s.sub.IsValid() {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "subject", s.cfg.Subject, "error", err)
		}
	}
	s.sub = nil

	s.frameMu.Lock()
	s.frame = nil
	s.frameAt = time.Time{}
	s.frameMu.Unlock()

	s.logger.Info("camera source stopped",
		"frames_received", s.received.Load(),
		"captures", s.captures.Load(),
		"misses", s.misses.Load())
	return nil
}

// Capture returns the newest cached frame. No frame yet, a stale one,
// and an undecodable one all fail the capture; the bridge degrades
// the request to text-only in that case.
func (s *Source) Capture(_ context.Context) (codec.Frame, error) {
	s.frameMu.RLock()
	blob, at := s.frame, s.frameAt
	s.frameMu.RUnlock()

	if blob == nil {
		s.misses.Add(1)
		return codec.Frame{}, errors.WrapTransient(errors.ErrCaptureFailed,
			"CameraSource", "Capture", "no frame cached")
	}
	if s.cfg.MaxAge > 0 {
		if age := time.Since(at); age > s.cfg.MaxAge {
			s.misses.Add(1)
			return codec.Frame{}, errors.WrapTransient(
				fmt.Errorf("%w: frame is %s old", errors.ErrCaptureFailed, age.Round(time.Millisecond)),
				"CameraSource", "Capture", "stale frame")
		}
	}

	frame, err := s.dec.Decode(blob)
	if err != nil {
		s.misses.Add(1)
		return codec.Frame{}, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCaptureFailed, err),
			"CameraSource", "Capture", "decode frame")
	}

	s.captures.Add(1)
	return frame, nil
}

// Stats returns the source counters.
func (s *Source) Stats() Stats {
	return Stats{
		FramesReceived: s.received.Load(),
		Captures:       s.captures.Load(),
		Misses:         s.misses.Load(),
	}
}

// Stats is a point-in-time snapshot of the source counters.
type Stats struct {
	FramesReceived uint64 `json:"frames_received"`
	Captures       uint64 `json:"captures"`
	Misses         uint64 `json:"misses"`
}

// handleFrame replaces the cached frame. Empty payloads keep the
// previous frame.
func (s *Source) handleFrame(_ context.Context, data []byte) {
	s.received.Add(1)
	if s.metrics != nil {
		s.metrics.RecordMessageReceived("camera", "frame")
	}
	if len(data) == 0 {
		return
	}

	s.frameMu.Lock()
	s.frame = data
	s.frameAt = time.Now()
	s.frameMu.Unlock()
}
