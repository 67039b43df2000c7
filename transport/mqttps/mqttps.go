// Package mqttps implements the MQTT publish/subscribe transport adapter:
// the natsps strategy carried over an MQTT broker. Request envelopes go out
// on the request topic at the configured QoS; a response-topic listener
// feeds every decoded envelope to the correlator.
//
// The listener is re-established by the on-connect handler after every
// broker reconnect. Responses published while that handler runs are lost,
// which is within the at-most-once contract; the correlator timeout covers
// the affected Sends.
package mqttps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/robobridge/correlator"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/pkg/retry"
	"github.com/c360/robobridge/pkg/tlsutil"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/wire"
)

// Name is the registry key for this adapter.
const Name = "mqttps"

// Config holds configuration for the MQTT pub/sub transport.
type Config struct {
	BrokerURL      string `json:"broker_url"`
	ClientID       string `json:"client_id"` // generated per instance when empty
	Username       string `json:"username"`
	Password       string `json:"password"`
	RequestTopic   string `json:"request_topic"`
	ResponseTopic  string `json:"response_topic"`
	QoS            byte   `json:"qos"`
	ConnectTimeout int    `json:"connect_timeout"` // seconds, per connect attempt
	Timeout        int    `json:"timeout"`         // seconds, await ceiling when the caller's context has no deadline
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "broker_url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid broker_url")
	}
	if u.Scheme == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"broker_url needs a scheme such as tcp:// or ssl://")
	}

	if c.RequestTopic == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "request_topic is required")
	}
	if c.ResponseTopic == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "response_topic is required")
	}
	if c.RequestTopic == c.ResponseTopic {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_topic and response_topic must differ")
	}

	if c.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "qos must be 0, 1, or 2")
	}
	if c.ConnectTimeout < 0 || c.ConnectTimeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"connect_timeout must be between 0 and 300 seconds")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}

	return nil
}

// DefaultConfig returns the canonical inference topics at QoS 1.
func DefaultConfig() Config {
	return Config{
		BrokerURL:      "tcp://localhost:1883",
		RequestTopic:   "robot/inference/request",
		ResponseTopic:  "robot/inference/response",
		QoS:            1,
		ConnectTimeout: 5,
		Timeout:        30,
	}
}

// Transport is the MQTT pub/sub adapter. It owns its broker connection,
// unlike natsps which shares the process-wide NATS client.
type Transport struct {
	client        mqtt.Client
	correlator    *correlator.Correlator
	requestTopic  string
	responseTopic string
	qos           byte
	timeout       time.Duration
	logger        *slog.Logger
	closed        atomic.Bool
}

// New connects to the broker, with a few quick retries for a broker that
// is still coming up, and subscribes the response listener before
// returning.
func New(rawConfig json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
	config := DefaultConfig()
	if err := transport.DecodeConfig(rawConfig, &config); err != nil {
		return nil, err
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "robobridge-" + uuid.NewString()
	}

	corrOpts := []correlator.Option{
		correlator.WithMetricsRegistry(deps.Metrics),
	}
	if deps.Logger != nil {
		corrOpts = append(corrOpts, correlator.WithLogger(deps.Logger))
	}

	t := &Transport{
		correlator:    correlator.New(corrOpts...),
		requestTopic:  config.RequestTopic,
		responseTopic: config.ResponseTopic,
		qos:           config.QoS,
		timeout:       time.Duration(config.Timeout) * time.Second,
		logger:        deps.ComponentLogger(Name),
	}

	opts := mqtt.NewClientOptions().AddBroker(config.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(time.Duration(config.ConnectTimeout) * time.Second)
	opts.SetAutoReconnect(true)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	// Configure TLS when client TLS is set at platform level.
	clientTLS := deps.Security.TLS.Client
	if len(clientTLS.CAFiles) > 0 || clientTLS.InsecureSkipVerify ||
		clientTLS.MinVersion != "" || clientTLS.MTLS.Enabled {
		tlsConfig, err := tlsutil.LoadClientTLSConfigWithMTLS(clientTLS, clientTLS.MTLS)
		if err != nil {
			return nil, errors.WrapFatal(err, "Transport", "New", "load client TLS config")
		}
		opts.SetTLSConfig(tlsConfig)
	}

	// The on-connect handler re-establishes the listener after every
	// reconnect; subscriptions do not survive the broker session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(t.responseTopic, t.qos, t.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			t.logger.Error("response topic subscribe failed", "topic", t.responseTopic, "error", err)
			return
		}
		t.logger.Info("response listener started", "topic", t.responseTopic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.logger.Warn("broker connection lost", "error", err)
	})

	t.client = mqtt.NewClient(opts)

	connectRetry := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	err := retry.Do(context.Background(), connectRetry, func() error {
		token := t.client.Connect()
		token.Wait()
		return token.Error()
	})
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: connect to %s: %v", errors.ErrTransport, config.BrokerURL, err),
			"Transport", "New", "connect to broker")
	}

	// Subscribe synchronously as well, so the listener is live before the
	// first Send rather than whenever the on-connect handler lands.
	token := t.client.Subscribe(t.responseTopic, t.qos, t.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		t.client.Disconnect(250)
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: subscribe to %s: %v", errors.ErrTransport, t.responseTopic, err),
			"Transport", "New", "subscribe to response topic")
	}

	return t, nil
}

// Register wires the adapter factory into a transport registry.
func Register(r *transport.Registry) error {
	return r.Register(Name, New)
}

// handleMessage decodes one envelope from the response topic and hands it
// to the correlator.
func (t *Transport) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	resp, err := wire.DecodeResponse(msg.Payload())
	if err != nil {
		t.logger.Warn("dropping undecodable response envelope", "error", err)
		return
	}
	t.correlator.Resolve(resp.ID, resp)
}

// Send registers the request id, publishes the envelope at the configured
// QoS, and awaits the correlated response.
func (t *Transport) Send(ctx context.Context, req wire.Request) (wire.Response, error) {
	if t.closed.Load() {
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: transport closed", errors.ErrTransport),
			"Transport", "Send", "check state")
	}
	if !t.client.IsConnectionOpen() {
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: broker connection down", errors.ErrTransport),
			"Transport", "Send", "check connection")
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

	token := t.client.Publish(t.requestTopic, t.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			t.correlator.Cancel(req.ID)
			return wire.Response{}, errors.WrapTransient(
				fmt.Errorf("%w: publish to %s: %v", errors.ErrTransport, t.requestTopic, err),
				"Transport", "Send", "publish request")
		}
	case <-ctx.Done():
		t.correlator.Cancel(req.ID)
		if ctx.Err() == context.DeadlineExceeded {
			return wire.Response{}, errors.WrapTransient(
				fmt.Errorf("%w: request %s: publish not acknowledged", errors.ErrTimeout, req.ID),
				"Transport", "Send", "publish request")
		}
		return wire.Response{}, errors.WrapTransient(
			fmt.Errorf("%w: request %s", errors.ErrCancelled, req.ID),
			"Transport", "Send", "publish request")
	}

	t.logger.Debug("published inference request", "id", req.ID, "has_image", req.HasImage())

	return t.correlator.Await(ctx, req.ID, timeout)
}

// Probe reports adapter readiness: an open broker connection. As with
// natsps, peer readiness only shows up in request timeouts.
func (t *Transport) Probe(_ context.Context) error {
	if t.closed.Load() {
		return errors.WrapTransient(
			fmt.Errorf("%w: transport closed", errors.ErrTransport),
			"Transport", "Probe", "check state")
	}
	if !t.client.IsConnectionOpen() {
		return errors.WrapTransient(
			fmt.Errorf("%w: broker connection down", errors.ErrNoConnection),
			"Transport", "Probe", "check connection")
	}
	return nil
}

// Close unsubscribes the listener, cancels every in-flight Send, and
// disconnects from the broker.
func (t *Transport) Close(ctx context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}

	token := t.client.Unsubscribe(t.responseTopic)
	if !token.WaitTimeout(time.Second) {
		t.logger.Warn("unsubscribe not acknowledged", "topic", t.responseTopic)
	} else if err := token.Error(); err != nil {
		t.logger.Warn("unsubscribe failed", "topic", t.responseTopic, "error", err)
	}

	if cancelled := t.correlator.CancelAll(); cancelled > 0 {
		t.logger.Info("cancelled in-flight requests", "count", cancelled)
	}

	// Give the client up to the context deadline, capped at 250ms, to
	// finish in-flight acknowledgements.
	quiesce := 250 * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining >= 0 && remaining < quiesce {
			quiesce = remaining
		}
	}
	t.client.Disconnect(uint(quiesce / time.Millisecond))

	t.logger.Debug("transport closed")
	return nil
}
