// Package natsps implements the NATS publish/subscribe transport adapter.
// Requests go out on the request subject as fire-and-forget envelopes; a
// background listener on the response subject feeds every decoded envelope
// to the correlator, which pairs them with waiting Sends by request id.
//
// Delivery is at-most-once on purpose. A lost request or response shows up
// as a correlator timeout, and the caller decides what happens next.
package natsps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/robobridge/correlator"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/wire"
)

// Name is the registry key for this adapter.
const Name = "natsps"

// Config holds configuration for the NATS pub/sub transport.
type Config struct {
	RequestSubject  string `json:"request_subject"`
	ResponseSubject string `json:"response_subject"`
	Timeout         int    `json:"timeout"` // seconds, await ceiling when the caller's context has no deadline
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.RequestSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "request_subject is required")
	}
	if c.ResponseSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "response_subject is required")
	}
	if c.RequestSubject == c.ResponseSubject {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_subject and response_subject must differ")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	return nil
}

// DefaultConfig returns the canonical inference subjects.
func DefaultConfig() Config {
	return Config{
		RequestSubject:  "robot.inference.request",
		ResponseSubject: "robot.inference.response",
		Timeout:         30,
	}
}

// Transport is the NATS pub/sub adapter.
type Transport struct {
	client          *natsclient.Client
	correlator      *correlator.Correlator
	requestSubject  string
	responseSubject string
	timeout         time.Duration
	sub             *nats.Subscription
	logger          *slog.Logger
	closed          atomic.Bool
}

// New builds the adapter and starts its response listener, so no Send can
// race the subscription coming up.
func New(rawConfig json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
	config := DefaultConfig()
	if err := transport.DecodeConfig(rawConfig, &config); err != nil {
		return nil, err
	}

	if deps.NATSClient == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Transport", "New", "NATS client required")
	}

	corrOpts := []correlator.Option{
		correlator.WithMetricsRegistry(deps.Metrics),
	}
	if deps.Logger != nil {
		corrOpts = append(corrOpts, correlator.WithLogger(deps.Logger))
	}

	t := &Transport{
		client:          deps.NATSClient,
		correlator:      correlator.New(corrOpts...),
		requestSubject:  config.RequestSubject,
		responseSubject: config.ResponseSubject,
		timeout:         time.Duration(config.Timeout) * time.Second,
		logger:          deps.ComponentLogger(Name),
	}

	// The subscription outlives any single request, so it gets the
	// background context rather than a caller's.
	sub, err := deps.NATSClient.Subscribe(context.Background(), config.ResponseSubject, t.handleResponse)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "New", fmt.Sprintf("subscribe to %s", config.ResponseSubject))
	}
	t.sub = sub

	t.logger.Info("response listener started",
		"request_subject", config.RequestSubject,
		"response_subject", config.ResponseSubject)

	return t, nil
}

// Register wires the adapter factory into a transport registry.
func Register(r *transport.Registry) error {
	return r.Register(Name, New)
}

// handleResponse decodes one envelope from the response subject and hands
// it to the correlator. Undecodable payloads are dropped here; unmatched
// responses are the correlator's orphans.
func (t *Transport) handleResponse(_ context.Context, data []byte) {
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		t.logger.Warn("dropping undecodable response envelope", "error", err)
		return
	}
	t.correlator.Resolve(resp.ID, resp)
}

// Send registers the request id, publishes the envelope, and awaits the
// correlated response. The context deadline governs the wait; without one,
// the configured timeout applies.
func (t *Transport) Send(ctx context.Context, req wire.Request) (wire.Response, error) {
	if !t.listening() {
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: response listener not running", errors.ErrTransport),
			"Transport", "Send", "check state")
	}

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return wire.Response{}, err
	}

	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if err := t.correlator.Register(req.ID); err != nil {
		return wire.Response{}, err
	}

	if err := t.client.Publish(ctx, t.requestSubject, payload); err != nil {
		t.correlator.Cancel(req.ID)
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "Send", fmt.Sprintf("publish to %s", t.requestSubject))
	}

	// Push the request onto the wire before waiting on the reply.
	if err := t.client.Flush(); err != nil {
		t.correlator.Cancel(req.ID)
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "Send", "flush request")
	}

	t.logger.Debug("published inference request", "id", req.ID, "has_image", req.HasImage())

	return t.correlator.Await(ctx, req.ID, timeout)
}

// Probe reports adapter readiness: a healthy NATS connection and a live
// response listener. Reachability of the inferencer itself only shows up
// in request timeouts; pub/sub carries no readiness signal for peers.
func (t *Transport) Probe(_ context.Context) error {
	if t.closed.Load() {
		return errors.WrapTransient(
			fmt.Errorf("%w: transport closed", errors.ErrTransport),
			"Transport", "Probe", "check state")
	}
	if !t.client.IsHealthy() {
		return errors.WrapTransient(
			fmt.Errorf("%w: NATS connection unhealthy", errors.ErrNoConnection),
			"Transport", "Probe", "check connection")
	}
	if !t.sub.IsValid() {
		return errors.WrapTransient(
			fmt.Errorf("%w: response listener not running", errors.ErrTransport),
			"Transport", "Probe", "check listener")
	}
	if _, err := t.client.RTT(); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"Transport", "Probe", "measure RTT")
	}
	return nil
}

// Close stops the response listener and cancels every in-flight Send. The
// shared NATS client stays open.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}

	if t.sub.IsValid() {
		if err := t.sub.Unsubscribe(); err != nil {
			t.logger.Warn("unsubscribe failed", "subject", t.responseSubject, "error", err)
		}
	}

	if cancelled := t.correlator.CancelAll(); cancelled > 0 {
		t.logger.Info("cancelled in-flight requests", "count", cancelled)
	}

	t.logger.Debug("transport closed")
	return nil
}

// listening reports whether Sends can currently be resolved.
func (t *Transport) listening() bool {
	return !t.closed.Load() && t.sub.IsValid()
}
