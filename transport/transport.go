// Package transport defines the adapter boundary between the bridge and a
// remote inferencer. An adapter delivers one inference request and produces
// the matching response, however the bytes travel: synchronous HTTP RPC
// (httprpc), NATS publish/subscribe with correlation (natsps), or MQTT
// publish/subscribe with correlation (mqttps).
//
// Adapters register factories in a Registry keyed by name, so the active
// adapter is a configuration choice rather than a compile-time one.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/pkg/security"
	"github.com/c360/robobridge/wire"
)

// Transport sends inference requests to a remote inferencer.
//
// Send is safe for concurrent use. Close wakes every in-flight Send; calls
// made after Close fail fast with a transport error.
type Transport interface {
	// Send delivers one request and blocks until the matching response
	// arrives, the context expires, or the transport fails.
	Send(ctx context.Context, req wire.Request) (wire.Response, error)

	// Probe reports whether the remote inferencer is reachable and ready
	// to serve requests.
	Probe(ctx context.Context) error

	// Close releases connections and subscriptions held by the adapter.
	// Shared resources passed in through Dependencies stay open.
	Close(ctx context.Context) error
}

// Dependencies carries the shared resources a factory may hand to the
// adapter it builds. Fields an adapter does not need may be zero.
type Dependencies struct {
	// NATSClient is the process-wide NATS connection. Required by natsps.
	NATSClient *natsclient.Client

	// Security supplies client TLS material for adapters that dial out
	// over TLS.
	Security security.Config

	// Logger is the parent logger; adapters derive component loggers
	// from it. Nil falls back to slog.Default.
	Logger *slog.Logger

	// Metrics receives correlator gauges and counters from the
	// publish/subscribe adapters. Optional.
	Metrics *metric.MetricsRegistry
}

// ComponentLogger derives an adapter logger carrying the component attr.
func (d Dependencies) ComponentLogger(component string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// Factory builds a transport adapter from its raw JSON config section.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Transport, error)

// Validatable is implemented by adapter configs that check themselves
// after decoding.
type Validatable interface {
	Validate() error
}

// DecodeConfig fills target from a raw JSON config section. An empty
// section keeps whatever defaults target already holds. Targets
// implementing Validatable are validated after the decode.
func DecodeConfig(raw json.RawMessage, target any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.WrapInvalid(err, "Transport", "DecodeConfig", "unmarshal config")
		}
	}

	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Registry maps adapter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a named factory. Names are unique; re-registration is a
// wiring bug and fails.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "validate transport name")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register",
			fmt.Sprintf("nil factory for transport %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapFatal(fmt.Errorf("transport %q already registered", name),
			"Registry", "Register", "check name uniqueness")
	}

	r.factories[name] = factory
	return nil
}

// New builds the named adapter from its config section.
func (r *Registry) New(name string, rawConfig json.RawMessage, deps Dependencies) (Transport, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown transport %q (registered: %v)", name, r.Names()),
			"Registry", "New", "look up factory")
	}

	return factory(rawConfig, deps)
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
