// Package asr receives speech recognition results over NATS, filters
// them through an admission gate, and hands accepted utterances to the
// agent pipeline through a bounded worker pool.
package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/pkg/worker"
)

// Utterance is one ASR result as published by the robot's audio stack.
// Confidence is the recognizer's own score in [0,1]. Payloads without
// the field decode to 0 and fall to any positive gate threshold.
type Utterance struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Handler runs the pipeline for one admitted utterance.
type Handler func(ctx context.Context, u Utterance) error

// Config sizes the intake and its admission gate.
type Config struct {
	// Subject carries utterance JSON from the ASR publisher.
	Subject string

	// Workers bounds concurrent pipeline runs. One worker keeps the
	// robot's replies strictly ordered.
	Workers int

	// QueueSize bounds utterances waiting for a worker. Submissions
	// beyond it are rejected, newest first.
	QueueSize int

	// Gate thresholds. An empty Charset disables the garbage check.
	MinConfidence float64
	Throttle      time.Duration
	Charset       string
}

// Deps carries the shared infrastructure the intake runs on.
type Deps struct {
	NATSClient *natsclient.Client
	Logger     *slog.Logger
	Metrics    *metric.MetricsRegistry
}

// Input subscribes to the utterance subject and pushes admitted
// utterances into a worker pool running the pipeline handler. It
// implements component.LifecycleComponent so the agent can supervise
// it next to the transport and the ops server.
type Input struct {
	cfg     Config
	handler Handler
	client  *natsclient.Client
	logger  *slog.Logger
	metrics *metric.Metrics

	gate *Gate
	pool *worker.Pool[Utterance]

	mu        sync.Mutex
	sub       *nats.Subscription
	startedAt time.Time

	received  atomic.Uint64
	admitted  atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
	lastError atomic.Value // string
}

// New builds the intake. The pool is created here but idle until
// Start; Initialize validates the configuration first.
func New(cfg Config, handler Handler, deps Deps) *Input {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	in := &Input{
		cfg:     cfg,
		handler: handler,
		client:  deps.NATSClient,
		logger:  logger.With("component", "asr-input"),
	}

	var poolOpts []worker.Option[Utterance]
	if deps.Metrics != nil {
		in.metrics = deps.Metrics.CoreMetrics()
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Utterance](deps.Metrics, "robobridge_asr"))
	}
	in.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, in.process, poolOpts...)
	return in
}

// Meta describes the intake to the supervisor.
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        "asr-input",
		Type:        "input",
		Description: "NATS utterance intake with admission gating",
		Version:     "1.0.0",
	}
}

// Health reports whether the intake is subscribed and its connection
// is live.
func (i *Input) Health() component.HealthStatus {
	i.mu.Lock()
	defer i.mu.Unlock()

	h := component.HealthStatus{
		LastCheck:  time.Now(),
		ErrorCount: int(i.failures.Load()),
	}
	if v := i.lastError.Load(); v != nil {
		h.LastError = v.(string)
	}
	if i.sub != nil {
		h.Healthy = i.sub.IsValid() && i.client.IsHealthy()
		h.Uptime = time.Since(i.startedAt)
	}
	return h
}

// Initialize validates the wiring and compiles the gate.
func (i *Input) Initialize() error {
	if i.client == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "ASRInput", "Initialize", "NATS client required")
	}
	if i.handler == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "ASRInput", "Initialize", "pipeline handler required")
	}
	if i.cfg.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ASRInput", "Initialize", "utterance subject is required")
	}

	gate, err := NewGate(i.cfg.MinConfidence, i.cfg.Throttle, i.cfg.Charset)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"ASRInput", "Initialize", "compile gate charset")
	}
	i.gate = gate
	return nil
}

// Start launches the worker pool and subscribes to the utterance
// subject. Pipeline runs inherit ctx, so cancelling it stops the
// workers mid-drain.
func (i *Input) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "ASRInput", "Start", "intake already running")
	}
	if i.gate == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "ASRInput", "Start", "initialize first")
	}

	if err := i.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "ASRInput", "Start", "start worker pool")
	}
	sub, err := i.client.Subscribe(ctx, i.cfg.Subject, i.handleMessage)
	if err != nil {
		_ = i.pool.Stop(time.Second)
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"ASRInput", "Start", fmt.Sprintf("subscribe to %s", i.cfg.Subject))
	}
	i.sub = sub
	i.startedAt = time.Now()

	i.logger.Info("utterance intake started",
		"subject", i.cfg.Subject,
		"workers", i.cfg.Workers,
		"queue_size", i.cfg.QueueSize)
	return nil
}

// Stop unsubscribes and drains the pool. Utterances already queued get
// the timeout to finish; the shared NATS client stays open.
func (i *Input) Stop(timeout time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sub == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "ASRInput", "Stop", "intake not running")
	}
	if i.sub.IsValid() {
		if err := i.sub.Unsubscribe(); err != nil {
			i.logger.Warn("unsubscribe failed", "subject", i.cfg.Subject, "error", err)
		}
	}
	i.sub = nil

	if err := i.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "ASRInput", "Stop", "drain worker pool")
	}

	i.logger.Info("utterance intake stopped",
		"received", i.received.Load(),
		"admitted", i.admitted.Load(),
		"dropped", i.dropped.Load())
	return nil
}

// Stats returns the intake counters next to the pool's own.
func (i *Input) Stats() Stats {
	return Stats{
		Received: i.received.Load(),
		Admitted: i.admitted.Load(),
		Dropped:  i.dropped.Load(),
		Failed:   i.failures.Load(),
		Pool:     i.pool.Stats(),
	}
}

// Stats is a point-in-time snapshot of the intake counters.
type Stats struct {
	Received uint64           `json:"received"`
	Admitted uint64           `json:"admitted"`
	Dropped  uint64           `json:"dropped"`
	Failed   uint64           `json:"failed"`
	Pool     worker.PoolStats `json:"pool"`
}

// handleMessage decodes and gates one utterance payload. Only admitted
// utterances reach the pool; everything else is counted by reason.
func (i *Input) handleMessage(_ context.Context, data []byte) {
	i.received.Add(1)
	if i.metrics != nil {
		i.metrics.RecordMessageReceived("asr", "utterance")
	}

	var u Utterance
	if err := json.Unmarshal(data, &u); err != nil {
		i.drop("undecodable")
		i.logger.Warn("dropping undecodable utterance payload", "error", err)
		return
	}
	u.Text = strings.TrimSpace(u.Text)

	if ok, reason := i.gate.Admit(u); !ok {
		i.drop(reason)
		i.logger.Debug("utterance dropped",
			"reason", reason,
			"confidence", u.Confidence,
			"text_len", len(u.Text))
		return
	}

	if err := i.pool.Submit(u); err != nil {
		i.drop("rejected")
		i.logger.Warn("utterance rejected, pipeline busy", "text_len", len(u.Text), "error", err)
		return
	}
	i.admitted.Add(1)
	if i.metrics != nil {
		i.metrics.RecordMessageProcessed("asr", "utterance", "admitted")
	}
	i.logger.Debug("utterance admitted", "text", u.Text, "confidence", u.Confidence)
}

// process runs one admitted utterance through the pipeline handler.
func (i *Input) process(ctx context.Context, u Utterance) error {
	start := time.Now()
	err := i.handler(ctx, u)
	if i.metrics != nil {
		i.metrics.RecordProcessingDuration("asr", "pipeline", time.Since(start))
	}
	if err != nil {
		i.failures.Add(1)
		i.lastError.Store(err.Error())
		if i.metrics != nil {
			i.metrics.RecordError("asr", "pipeline")
		}
		i.logger.Error("utterance pipeline failed", "error", err, "text_len", len(u.Text))
		return err
	}
	return nil
}

func (i *Input) drop(reason string) {
	i.dropped.Add(1)
	if i.metrics != nil {
		i.metrics.RecordMessageProcessed("asr", "utterance", reason)
	}
}
