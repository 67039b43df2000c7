// Package bridge ties the codec and a transport adapter into the robot's
// ask-the-model operation. Ask owns the request lifecycle: encode the
// frame, build the envelope, send with a deadline, and degrade to the
// configured fallback reply when the remote side cannot answer, so the
// calling pipeline always has something to dispatch.
package bridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/c360/robobridge/codec"
	"github.com/c360/robobridge/convo"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/wire"
)

// Speaker voices replies to the person. The voice hint carries the
// reply's emotion so a TTS implementation can color delivery.
type Speaker interface {
	Say(ctx context.Context, text, voiceHint string) error
}

// Camera captures one frame of visual context. A capture failure is
// tolerated by callers: the request goes out text-only.
type Camera interface {
	Capture(ctx context.Context) (codec.Frame, error)
}

// Bridge sends correlated inference requests over one transport adapter.
type Bridge struct {
	transport     transport.Transport
	transportName string
	codec         *codec.Codec
	timeout       time.Duration
	fallback      string
	convo         *convo.Manager
	logger        *slog.Logger
	metrics       *metric.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for request outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger.With("component", "bridge")
	}
}

// WithMetricsRegistry enables request metrics on the given registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(b *Bridge) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// WithTransportName sets the transport label on request metrics and logs.
func WithTransportName(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.transportName = name
		}
	}
}

// WithTimeout caps each Ask when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithFallbackText enables the fallback reply spoken when the remote
// side cannot answer. Empty disables the fallback, surfacing transport
// errors to the caller instead.
func WithFallbackText(text string) Option {
	return func(b *Bridge) {
		b.fallback = text
	}
}

// WithConversation records each exchange in the given context manager.
func WithConversation(m *convo.Manager) Option {
	return func(b *Bridge) {
		b.convo = m
	}
}

// New builds a bridge over the given transport. A nil codec gets the
// default encoder.
func New(tr transport.Transport, c *codec.Codec, opts ...Option) (*Bridge, error) {
	if tr == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "New", "transport required")
	}
	if c == nil {
		var err error
		c, err = codec.New()
		if err != nil {
			return nil, err
		}
	}

	b := &Bridge{
		transport:     tr,
		transportName: "unknown",
		codec:         c,
		timeout:       30 * time.Second,
		logger:        slog.Default().With("component", "bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Ask sends one inference request and returns the reply. A nil frame
// sends text-only; a frame that fails to encode degrades to text-only
// rather than losing the utterance. On transport failure the configured
// fallback reply is returned, except when the caller cancelled.
func (b *Bridge) Ask(ctx context.Context, text string, frame *codec.Frame) (wire.Response, error) {
	var image []byte
	if frame != nil {
		blob, err := b.codec.Encode(*frame)
		if err != nil {
			b.logger.Warn("frame encode failed, sending text-only", "error", err)
			b.recordError("encode")
		} else {
			image = blob
			if b.metrics != nil {
				b.metrics.ObserveImagePayload(len(blob))
			}
		}
	}

	req := wire.NewRequest(text, image)
	if b.convo != nil {
		b.convo.AddUser(text)
	}

	if _, ok := ctx.Deadline(); !ok && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := b.transport.Send(ctx, req)
	elapsed := time.Since(start)
	if b.metrics != nil {
		b.metrics.RecordRequestDuration(b.transportName, elapsed)
	}

	if err != nil {
		b.logger.Warn("inference request failed",
			"id", req.ID,
			"transport", b.transportName,
			"elapsed", elapsed,
			"error", err)

		if b.fallback != "" && !stderrors.Is(err, errors.ErrCancelled) {
			b.recordRequest("fallback")
			fallback := b.fallbackResponse(req.ID)
			if b.convo != nil {
				b.convo.AddAssistant(fallback.Text)
			}
			return fallback, nil
		}
		b.recordRequest("error")
		return wire.Response{}, err
	}

	b.recordRequest("success")
	if b.convo != nil && resp.Text != "" {
		b.convo.AddAssistant(resp.Text)
	}

	b.logger.Debug("inference reply received",
		"id", req.ID,
		"status", resp.Status,
		"elapsed", elapsed,
		"has_image", req.HasImage())
	return resp, nil
}

// Probe reports whether the transport can currently reach the remote
// side.
func (b *Bridge) Probe(ctx context.Context) error {
	return b.transport.Probe(ctx)
}

// Close releases the underlying transport.
func (b *Bridge) Close(ctx context.Context) error {
	return b.transport.Close(ctx)
}

// fallbackResponse is the reply dispatched when the remote side cannot
// answer: speech only, no action, flagged in metadata.
func (b *Bridge) fallbackResponse(id string) wire.Response {
	return wire.Response{
		ID:       id,
		Status:   wire.StatusSuccess,
		Text:     b.fallback,
		Emotion:  "apologetic",
		Metadata: map[string]string{"fallback": "true"},
	}
}

func (b *Bridge) recordRequest(status string) {
	if b.metrics != nil {
		b.metrics.RecordRequest(b.transportName, status)
	}
}

func (b *Bridge) recordError(errorType string) {
	if b.metrics != nil {
		b.metrics.RecordError("bridge", errorType)
	}
}
