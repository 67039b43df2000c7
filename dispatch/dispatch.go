// Package dispatch routes decoded inference replies to their consumers:
// speech text to the speech handler, action directives to the sequencer,
// metadata to observers, and error replies to the error handler. The
// success and error paths are mutually exclusive per reply.
//
// Handler slots are isolated from each other. A slot that fails, or
// panics, is recorded in the dispatch report and the remaining slots
// still run; a reply's action path reaches the sequencer even when its
// speech handler blew up.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/robobridge/action"
	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/wire"
)

// SpeechFunc consumes a reply's speech text. The full reply is passed
// along for handlers that read metadata hints such as language.
type SpeechFunc func(ctx context.Context, text string, resp wire.Response) error

// MetadataFunc inspects a reply's metadata for telemetry or logging.
type MetadataFunc func(ctx context.Context, metadata map[string]string, resp wire.Response) error

// ErrorFunc handles an error-status reply.
type ErrorFunc func(ctx context.Context, resp wire.Response) error

// Sequencer executes a reply's directives in order. Satisfied by
// action.Sequencer.
type Sequencer interface {
	ExecuteSequence(ctx context.Context, directives []wire.Directive) []action.Result
}

// Report summarizes one dispatch.
type Report struct {
	// ErrorPath is true when the reply carried an error status and was
	// routed to the error handler instead of the success slots.
	ErrorPath bool

	// Spoke is true when speech text was routed to the speech handler.
	Spoke bool

	// Actions holds the per-step results of the directive walk, in order.
	Actions []action.Result

	// HandlerErrs collects isolated handler failures. Directive failures
	// live in Actions.
	HandlerErrs []error
}

// OK reports whether every invoked handler and directive succeeded.
func (r Report) OK() bool {
	if len(r.HandlerErrs) > 0 {
		return false
	}
	for _, res := range r.Actions {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Dispatcher owns the handler registry. Slots are read-mostly;
// registration normally happens once at startup, and runtime
// re-registration takes the same lock dispatch reads under.
type Dispatcher struct {
	mu        sync.RWMutex
	speech    SpeechFunc
	metadata  MetadataFunc
	errorFn   ErrorFunc
	sequencer Sequencer

	logger  *slog.Logger
	metrics *metric.MetricsRegistry
}

// Option is a functional option for configuring the Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used for handler failures
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger.With("component", "dispatch")
		}
	}
}

// WithMetricsRegistry enables handler failure counters
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(d *Dispatcher) {
		d.metrics = registry
	}
}

// WithSequencer sets the sequencer that receives action directives.
func WithSequencer(seq Sequencer) Option {
	return func(d *Dispatcher) {
		d.sequencer = seq
	}
}

// New creates a Dispatcher with empty handler slots. A reply field with
// no registered handler is ignored, not an error.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: slog.Default().With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnSpeech registers the speech handler, replacing any previous one.
func (d *Dispatcher) OnSpeech(fn SpeechFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speech = fn
}

// OnMetadata registers the metadata handler, replacing any previous one.
func (d *Dispatcher) OnMetadata(fn MetadataFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata = fn
}

// OnError registers the error-reply handler, replacing any previous one.
// Without one, error replies are logged and dropped.
func (d *Dispatcher) OnError(fn ErrorFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorFn = fn
}

// Dispatch routes one reply. Success replies run speech, then the
// directive walk, then metadata; error replies run the error handler
// only. The report carries every isolated failure.
func (d *Dispatcher) Dispatch(ctx context.Context, resp wire.Response) Report {
	d.mu.RLock()
	speech, metadata, errorFn, seq := d.speech, d.metadata, d.errorFn, d.sequencer
	d.mu.RUnlock()

	var report Report

	if !resp.IsSuccess() {
		report.ErrorPath = true
		if errorFn == nil {
			d.logger.Warn("inference reply reported an error", "id", resp.ID, "error", resp.Err)
			return report
		}
		if err := safely("error", func() error { return errorFn(ctx, resp) }); err != nil {
			report.HandlerErrs = append(report.HandlerErrs, err)
			d.recordHandlerFailure("error", resp.ID, err)
		}
		return report
	}

	if resp.Text != "" && speech != nil {
		report.Spoke = true
		if err := safely("speech", func() error { return speech(ctx, resp.Text, resp) }); err != nil {
			report.HandlerErrs = append(report.HandlerErrs, err)
			d.recordHandlerFailure("speech", resp.ID, err)
		}
	}

	if directives := resp.Directives(); len(directives) > 0 {
		if seq != nil {
			report.Actions = seq.ExecuteSequence(ctx, directives)
		} else {
			d.logger.Debug("no sequencer registered, dropping directives",
				"id", resp.ID, "count", len(directives))
		}
	}

	if len(resp.Metadata) > 0 && metadata != nil {
		if err := safely("metadata", func() error { return metadata(ctx, resp.Metadata, resp) }); err != nil {
			report.HandlerErrs = append(report.HandlerErrs, err)
			d.recordHandlerFailure("metadata", resp.ID, err)
		}
	}

	return report
}

func (d *Dispatcher) recordHandlerFailure(slot, id string, err error) {
	d.logger.Warn("handler failed", "slot", slot, "id", id, "error", err)
	if d.metrics != nil {
		d.metrics.CoreMetrics().RecordError("dispatch", slot+"_handler")
	}
}

// safely runs one handler invocation, containing panics as handler
// failures.
func safely(slot string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapInvalid(
				fmt.Errorf("%w: %s handler panic: %v", errors.ErrHandler, slot, r),
				"Dispatcher", "Dispatch", "invoke handler")
		}
	}()
	return fn()
}
