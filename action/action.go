// Package action executes directives from inference replies against the
// robot's actuators. A Sequencer routes each directive to the actuator
// registered for its kind; directives within one sequence run in strict
// list order, never reordered or parallelized, because consecutive
// physical motions assume their predecessors completed.
//
// A failing step is contained to its own result. Nothing is retried
// automatically; a physical action cannot be assumed idempotent, so
// replay is the caller's call.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/wire"
)

// Result is the outcome of one directive execution.
type Result struct {
	Directive wire.Directive
	Err       error
	Elapsed   time.Duration
}

// OK reports whether the step completed without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Sequencer routes directives to per-kind actuators. The actuator table
// is read-mostly; registration happens at startup.
type Sequencer struct {
	mu        sync.RWMutex
	actuators map[wire.Kind]Actuator

	stopOnError bool
	logger      *slog.Logger
	metrics     *metric.MetricsRegistry
}

// Option is a functional option for configuring the Sequencer
type Option func(*Sequencer)

// WithLogger sets the logger used for step outcomes
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger.With("component", "action")
		}
	}
}

// WithMetricsRegistry enables per-kind execution counters
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Sequencer) {
		s.metrics = registry
	}
}

// WithStopOnError makes ExecuteSequence end the walk at the first
// failing step instead of continuing past it.
func WithStopOnError(stop bool) Option {
	return func(s *Sequencer) {
		s.stopOnError = stop
	}
}

// New creates a Sequencer with no actuators registered.
func New(opts ...Option) *Sequencer {
	s := &Sequencer{
		actuators: make(map[wire.Kind]Actuator),
		logger:    slog.Default().With("component", "action"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterActuator binds kind to actuator. Re-registering a kind
// overwrites the previous binding.
func (s *Sequencer) RegisterActuator(kind wire.Kind, actuator Actuator) error {
	if kind == "" {
		return errors.WrapInvalid(fmt.Errorf("empty directive kind"),
			"Sequencer", "RegisterActuator", "validate kind")
	}
	if actuator == nil {
		return errors.WrapInvalid(fmt.Errorf("nil actuator for kind %q", kind),
			"Sequencer", "RegisterActuator", "validate actuator")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actuators[kind] = actuator
	return nil
}

// Kinds returns the registered directive kinds in sorted order.
func (s *Sequencer) Kinds() []wire.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]wire.Kind, 0, len(s.actuators))
	for kind := range s.actuators {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute runs one directive and returns its result. A kind with no
// actuator, or a built-in kind with a name outside its vocabulary, fails
// the step before anything moves; an actuator panic is contained as a
// handler failure.
func (s *Sequencer) Execute(ctx context.Context, d wire.Directive) Result {
	start := time.Now()
	err := s.perform(ctx, d)
	result := Result{Directive: d, Err: err, Elapsed: time.Since(start)}

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Warn("directive failed", "kind", d.Kind, "name", d.Name, "error", err)
	} else {
		s.logger.Debug("directive executed", "kind", d.Kind, "name", d.Name, "elapsed", result.Elapsed)
	}
	if s.metrics != nil {
		s.metrics.CoreMetrics().RecordActionExecuted(string(d.Kind), status)
	}

	return result
}

func (s *Sequencer) perform(ctx context.Context, d wire.Directive) (err error) {
	name := Normalize(d.Name)
	if name == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty action name", errors.ErrUnknownAction),
			"Sequencer", "Execute", "route directive")
	}

	s.mu.RLock()
	actuator, ok := s.actuators[d.Kind]
	s.mu.RUnlock()
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: kind %q", errors.ErrUnknownAction, d.Kind),
			"Sequencer", "Execute", "route directive")
	}

	// Built-in kinds are validated against the vocabulary before anything
	// moves; custom kinds vet their own names.
	meta, known := Lookup(d.Kind, name)
	switch d.Kind {
	case wire.KindGesture, wire.KindMovement, wire.KindSystem:
		if !known {
			return errors.WrapInvalid(
				fmt.Errorf("%w: unknown %s action %q (known: %v)",
					errors.ErrUnknownAction, d.Kind, name, Names(d.Kind)),
				"Sequencer", "Execute", "route directive")
		}
	}
	if known && meta.Critical {
		s.logger.Error("critical action requested", "kind", d.Kind, "name", name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapInvalid(fmt.Errorf("%w: actuator panic: %v", errors.ErrHandler, r),
				"Sequencer", "Execute", "perform action")
		}
	}()
	return actuator.Perform(ctx, name, d.Params)
}

// ExecuteSequence runs directives in exactly the given order. By default
// a failing step is recorded and the walk continues; with stop-on-error
// the walk ends at the first failure. A done context ends the walk
// between steps, leaving the remaining directives unexecuted.
func (s *Sequencer) ExecuteSequence(ctx context.Context, directives []wire.Directive) []Result {
	results := make([]Result, 0, len(directives))
	for _, d := range directives {
		if ctx.Err() != nil {
			s.logger.Warn("sequence interrupted", "executed", len(results), "remaining", len(directives)-len(results))
			break
		}

		result := s.Execute(ctx, d)
		results = append(results, result)

		if s.stopOnError && !result.OK() {
			break
		}
	}
	return results
}
