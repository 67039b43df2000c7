package vlmsim

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/wire"
)

// MQTTConfig configures the MQTT responder's broker session.
type MQTTConfig struct {
	BrokerURL      string
	ClientID       string // generated per instance when empty
	Username       string
	Password       string
	RequestTopic   string
	ResponseTopic  string
	QoS            byte
	ConnectTimeout time.Duration
}

// Validate checks the configuration for errors.
func (c *MQTTConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate", "broker URL is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return errors.WrapInvalid(err, "MQTTConfig", "Validate", "invalid broker URL")
	}
	if u.Scheme == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate",
			"broker URL needs a scheme such as tcp:// or ssl://")
	}
	if c.RequestTopic == "" || c.ResponseTopic == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate",
			"request and response topics are required")
	}
	if c.RequestTopic == c.ResponseTopic {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate",
			"request and response topics must differ")
	}
	if c.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate", "qos must be 0, 1, or 2")
	}
	if c.ConnectTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTConfig", "Validate",
			"connect timeout cannot be negative")
	}
	return nil
}

// MQTTResponder serves the engine over MQTT: it subscribes to the request
// topic and publishes each reply on the response topic. Unlike the NATS
// responder it owns its broker session. It implements
// component.LifecycleComponent.
type MQTTResponder struct {
	engine *Engine
	cfg    MQTTConfig
	logger *slog.Logger

	mu        sync.Mutex
	client    mqtt.Client
	startedAt time.Time
	lastErr   string

	served  atomic.Uint64
	dropped atomic.Uint64
}

// NewMQTTResponder builds a responder for the given broker session. A nil
// logger falls back to the default.
func NewMQTTResponder(engine *Engine, cfg MQTTConfig, logger *slog.Logger) *MQTTResponder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &MQTTResponder{
		engine: engine,
		cfg:    cfg,
		logger: logger.With("component", "vlmsim-mqtt"),
	}
}

// Meta describes the responder to the supervisor.
func (r *MQTTResponder) Meta() component.Metadata {
	return component.Metadata{
		Name:        "vlmsim-mqtt",
		Type:        "server",
		Description: "MQTT responder for the simulated inferencer",
		Version:     "1.0.0",
	}
}

// Health reports whether the responder can currently answer requests.
func (r *MQTTResponder) Health() component.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := component.HealthStatus{
		LastCheck:  time.Now(),
		ErrorCount: int(r.dropped.Load()),
		LastError:  r.lastErr,
	}
	if r.client != nil {
		h.Healthy = r.client.IsConnectionOpen()
		h.Uptime = time.Since(r.startedAt)
	}
	return h
}

// Initialize validates the responder's wiring.
func (r *MQTTResponder) Initialize() error {
	if r.engine == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "MQTTResponder", "Initialize", "engine required")
	}
	return r.cfg.Validate()
}

// Start connects to the broker and subscribes to the request topic. The
// listener is re-established by the on-connect handler after reconnects;
// message handlers inherit ctx.
func (r *MQTTResponder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MQTTResponder", "Start", "responder already running")
	}

	clientID := r.cfg.ClientID
	if clientID == "" {
		clientID = "vlmsim-" + uuid.NewString()
	}

	listen := func(_ mqtt.Client, msg mqtt.Message) {
		r.handleRequest(ctx, msg.Payload())
	}

	opts := mqtt.NewClientOptions().AddBroker(r.cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(r.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if r.cfg.Username != "" {
		opts.SetUsername(r.cfg.Username)
		opts.SetPassword(r.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(r.cfg.RequestTopic, r.cfg.QoS, listen)
		token.Wait()
		if err := token.Error(); err != nil {
			r.logger.Error("request topic subscribe failed", "topic", r.cfg.RequestTopic, "error", err)
			return
		}
		r.logger.Info("request listener started", "topic", r.cfg.RequestTopic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		r.logger.Warn("broker connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.WrapTransient(
				fmt.Errorf("%w: connect to %s: %v", errors.ErrNoConnection, r.cfg.BrokerURL, err),
				"MQTTResponder", "Start", "connect to broker")
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return errors.WrapTransient(
			fmt.Errorf("%w: connect to %s", errors.ErrCancelled, r.cfg.BrokerURL),
			"MQTTResponder", "Start", "connect to broker")
	}

	// Subscribe synchronously as well, so the listener is live before
	// Start returns rather than whenever the on-connect handler lands.
	subToken := client.Subscribe(r.cfg.RequestTopic, r.cfg.QoS, listen)
	subToken.Wait()
	if err := subToken.Error(); err != nil {
		client.Disconnect(250)
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"MQTTResponder", "Start", fmt.Sprintf("subscribe to %s", r.cfg.RequestTopic))
	}

	r.client = client
	r.startedAt = time.Now()

	r.logger.Info("responder started",
		"broker", r.cfg.BrokerURL,
		"request_topic", r.cfg.RequestTopic,
		"response_topic", r.cfg.ResponseTopic)
	return nil
}

// Stop unsubscribes the listener and disconnects from the broker, giving
// in-flight acknowledgements up to timeout, capped at 250ms.
func (r *MQTTResponder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "MQTTResponder", "Stop", "responder not running")
	}

	token := r.client.Unsubscribe(r.cfg.RequestTopic)
	if !token.WaitTimeout(time.Second) {
		r.logger.Warn("unsubscribe not acknowledged", "topic", r.cfg.RequestTopic)
	} else if err := token.Error(); err != nil {
		r.logger.Warn("unsubscribe failed", "topic", r.cfg.RequestTopic, "error", err)
	}

	quiesce := 250 * time.Millisecond
	if timeout >= 0 && timeout < quiesce {
		quiesce = timeout
	}
	r.client.Disconnect(uint(quiesce / time.Millisecond))
	r.client = nil

	r.logger.Info("responder stopped", "served", r.served.Load(), "dropped", r.dropped.Load())
	return nil
}

// Served returns how many requests got a published reply.
func (r *MQTTResponder) Served() uint64 {
	return r.served.Load()
}

// handleRequest decodes one request envelope, runs inference, and
// publishes the reply at the configured QoS.
func (r *MQTTResponder) handleRequest(ctx context.Context, data []byte) {
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

	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return
	}

	token := client.Publish(r.cfg.ResponseTopic, r.cfg.QoS, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		r.recordFailure(err)
		r.logger.Warn("publish response failed", "id", req.ID, "error", err)
		return
	}

	r.served.Add(1)
	r.logger.Debug("served inference request", "id", req.ID, "status", resp.Status)
}

func (r *MQTTResponder) recordFailure(err error) {
	r.dropped.Add(1)
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}
