package vlmsim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/wire"
)

// NATSResponder serves the engine over NATS pub/sub: it subscribes to the
// request subject and publishes each reply on the response subject. It
// implements component.LifecycleComponent so cmd/vlmsim can supervise it
// next to the other responders.
type NATSResponder struct {
	engine          *Engine
	client          *natsclient.Client
	requestSubject  string
	responseSubject string
	logger          *slog.Logger

	mu        sync.Mutex
	sub       *nats.Subscription
	startedAt time.Time
	lastErr   string

	served  atomic.Uint64
	dropped atomic.Uint64
}

// NewNATSResponder builds a responder on an already-connected client. A
// nil logger falls back to the default.
func NewNATSResponder(engine *Engine, client *natsclient.Client, requestSubject, responseSubject string, logger *slog.Logger) *NATSResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSResponder{
		engine:          engine,
		client:          client,
		requestSubject:  requestSubject,
		responseSubject: responseSubject,
		logger:          logger.With("component", "vlmsim-nats"),
	}
}

// Meta describes the responder to the supervisor.
func (r *NATSResponder) Meta() component.Metadata {
	return component.Metadata{
		Name:        "vlmsim-nats",
		Type:        "server",
		Description: "NATS responder for the simulated inferencer",
		Version:     "1.0.0",
	}
}

// Health reports whether the responder can currently answer requests.
func (r *NATSResponder) Health() component.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := component.HealthStatus{
		LastCheck:  time.Now(),
		ErrorCount: int(r.dropped.Load()),
		LastError:  r.lastErr,
	}
	if r.sub != nil {
		h.Healthy = r.sub.IsValid() && r.client.IsHealthy()
		h.Uptime = time.Since(r.startedAt)
	}
	return h
}

// Initialize validates the responder's wiring.
func (r *NATSResponder) Initialize() error {
	if r.engine == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "NATSResponder", "Initialize", "engine required")
	}
	if r.client == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "NATSResponder", "Initialize", "NATS client required")
	}
	if r.requestSubject == "" || r.responseSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "NATSResponder", "Initialize",
			"request and response subjects are required")
	}
	if r.requestSubject == r.responseSubject {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "NATSResponder", "Initialize",
			"request and response subjects must differ")
	}
	return nil
}

// Start subscribes to the request subject. Message handlers inherit ctx,
// so cancelling it turns replies into error envelopes until Stop runs.
func (r *NATSResponder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "NATSResponder", "Start", "responder already running")
	}

	sub, err := r.client.Subscribe(ctx, r.requestSubject, r.handleRequest)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"NATSResponder", "Start", fmt.Sprintf("subscribe to %s", r.requestSubject))
	}
	r.sub = sub
	r.startedAt = time.Now()

	r.logger.Info("responder started",
		"request_subject", r.requestSubject,
		"response_subject", r.responseSubject)
	return nil
}

// Stop unsubscribes from the request subject. The shared NATS client
// stays open.
func (r *NATSResponder) Stop(_ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "NATSResponder", "Stop", "responder not running")
	}

	if r.sub.IsValid() {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe failed", "subject", r.requestSubject, "error", err)
		}
	}
	r.sub = nil

	r.logger.Info("responder stopped", "served", r.served.Load(), "dropped", r.dropped.Load())
	return nil
}

// Served returns how many requests got a published reply.
func (r *NATSResponder) Served() uint64 {
	return r.served.Load()
}

// handleRequest decodes one request envelope, runs inference, and
// publishes the reply. Undecodable payloads are dropped; there is no id
// to correlate an error reply to.
func (r *NATSResponder) handleRequest(ctx context.Context, data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		r.recordFailure(err)
		r.logger.Warn("dropping undecodable request envelope", "error", err)
		return
	}

	resp := r.engine.Infer(ctx, req)
	payload, err := wire.EncodeResponse(resp)
	if err != nil {
		r.recordFailure(err)
		r.logger.Error("encode response failed", "id", req.ID, "error", err)
		return
	}

	if err := r.client.Publish(ctx, r.responseSubject, payload); err != nil {
		r.recordFailure(err)
		r.logger.Warn("publish response failed", "id", req.ID, "error", err)
		return
	}
	if err := r.client.Flush(); err != nil {
		r.logger.Warn("flush response failed", "id", req.ID, "error", err)
	}

	r.served.Add(1)
	r.logger.Debug("served inference request", "id", req.ID, "status", resp.Status)
}

func (r *NATSResponder) recordFailure(err error) {
	r.dropped.Add(1)
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}
