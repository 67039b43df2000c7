// Package httprpc implements the synchronous HTTP transport adapter: one
// POST to the inferencer's /infer endpoint per request, one JSON envelope
// back in the reply body. The call frame is the correlation, so no pending
// table is needed.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/pkg/tlsutil"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/wire"
)

// Name is the registry key for this adapter.
const Name = "httprpc"

// Config holds configuration for the HTTP RPC transport.
type Config struct {
	BaseURL string            `json:"base_url"`
	Timeout int               `json:"timeout"` // seconds, applied when the caller's context has no deadline
	Headers map[string]string `json:"headers"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "base_url is required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid base_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("base_url scheme must be http or https, got %q", u.Scheme))
	}

	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}

	return nil
}

// DefaultConfig returns defaults matching the reference inferencer, which
// serves /infer and /health on port 5000.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: 30,
	}
}

// Transport is the synchronous HTTP adapter.
type Transport struct {
	inferURL  string
	healthURL string
	headers   map[string]string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
	closed    atomic.Bool
}

// New builds the adapter from its raw config section.
func New(rawConfig json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
	config := DefaultConfig()
	if err := transport.DecodeConfig(rawConfig, &config); err != nil {
		return nil, err
	}

	httpClient := &http.Client{}

	// Configure TLS when client TLS is set at platform level.
	clientTLS := deps.Security.TLS.Client
	if len(clientTLS.CAFiles) > 0 || clientTLS.InsecureSkipVerify ||
		clientTLS.MinVersion != "" || clientTLS.MTLS.Enabled {
		tlsConfig, err := tlsutil.LoadClientTLSConfigWithMTLS(clientTLS, clientTLS.MTLS)
		if err != nil {
			return nil, errors.WrapFatal(err, "Transport", "New", "load client TLS config")
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	base := strings.TrimRight(config.BaseURL, "/")

	return &Transport{
		inferURL:  base + "/infer",
		healthURL: base + "/health",
		headers:   config.Headers,
		timeout:   time.Duration(config.Timeout) * time.Second,
		client:    httpClient,
		logger:    deps.ComponentLogger(Name),
	}, nil
}

// Register wires the adapter factory into a transport registry.
func Register(r *transport.Registry) error {
	return r.Register(Name, New)
}

// Send POSTs the request envelope and decodes the reply envelope. The
// context deadline governs the round trip; without one, the configured
// timeout applies.
func (t *Transport) Send(ctx context.Context, req wire.Request) (wire.Response, error) {
	if t.closed.Load() {
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: transport closed", errors.ErrTransport),
			"Transport", "Send", "check state")
	}

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return wire.Response{}, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.inferURL, bytes.NewReader(payload))
	if err != nil {
		return wire.Response{}, errors.WrapInvalid(err, "Transport", "Send", "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}

	t.logger.Debug("sending inference request", "id", req.ID, "has_image", req.HasImage())

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return wire.Response{}, t.sendError(req.ID, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return wire.Response{}, t.sendError(req.ID, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// The inferencer reports handled failures as error envelopes with
		// a non-2xx code. Surface those as responses so the error still
		// reaches the dispatcher with its message intact.
		if resp, derr := wire.DecodeResponse(body); derr == nil && !resp.IsSuccess() {
			return resp, nil
		}
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: HTTP %d from %s", errors.ErrTransport, httpResp.StatusCode, t.inferURL),
			"Transport", "Send", "check status")
	}

	resp, err := wire.DecodeResponse(body)
	if err != nil {
		return wire.Response{}, err
	}

	// The reply id is optional on a synchronous transport. A present but
	// mismatched id means crossed wires, not a usable response.
	if resp.ID != "" && resp.ID != req.ID {
		return wire.Response{}, errors.WrapInvalid(
			fmt.Errorf("%w: response id %q does not match request id %q", errors.ErrProtocol, resp.ID, req.ID),
			"Transport", "Send", "match response id")
	}

	return resp, nil
}

// sendError maps an HTTP round-trip failure onto the transport error
// taxonomy.
func (t *Transport) sendError(id string, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapTransient(
			fmt.Errorf("%w: request %s: %v", errors.ErrTimeout, id, err),
			"Transport", "Send", "await response")
	case stderrors.Is(err, context.Canceled):
		return errors.WrapTransient(
			fmt.Errorf("%w: request %s: %v", errors.ErrCancelled, id, err),
			"Transport", "Send", "await response")
	default:
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "Send", "POST inference request")
	}
}

// healthReply mirrors the inferencer's /health body.
type healthReply struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
}

// Probe GETs /health and reports readiness. The inferencer is ready when
// it answers "healthy" with its model loaded.
func (t *Transport) Probe(ctx context.Context) error {
	if t.closed.Load() {
		return errors.WrapTransient(
			fmt.Errorf("%w: transport closed", errors.ErrTransport),
			"Transport", "Probe", "check state")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL, nil)
	if err != nil {
		return errors.WrapInvalid(err, "Transport", "Probe", "build request")
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "Probe", "GET health")
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"Transport", "Probe", "read health reply")
	}

	if httpResp.StatusCode != http.StatusOK {
		return errors.WrapTransient(
			fmt.Errorf("%w: HTTP %d from %s", errors.ErrTransport, httpResp.StatusCode, t.healthURL),
			"Transport", "Probe", "check status")
	}

	var health healthReply
	if err := json.Unmarshal(body, &health); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrProtocol, err),
			"Transport", "Probe", "decode health reply")
	}

	if health.Status != "healthy" {
		return errors.WrapTransient(
			fmt.Errorf("%w: inferencer reports status %q", errors.ErrTransport, health.Status),
			"Transport", "Probe", "check readiness")
	}
	if !health.ModelLoaded {
		return errors.WrapTransient(
			fmt.Errorf("%w: inferencer model not loaded (path %q)", errors.ErrTransport, health.ModelPath),
			"Transport", "Probe", "check readiness")
	}

	return nil
}

// Close releases idle connections. Sends already in flight finish on their
// own deadlines.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	t.logger.Debug("transport closed")
	return nil
}
