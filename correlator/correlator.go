// Package correlator owns the pending-request table that matches
// asynchronous inference responses back to their originating request ids.
//
// Each registered id gets a resolution slot that is filled at most once:
// among resolve, timeout, and cancel, the first writer wins and the others
// are no-ops. Responses for unknown or already-terminal ids are orphans;
// they are dropped, logged, and counted, never surfaced to a caller.
package correlator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/wire"
)

// entryState tracks the lifecycle of one pending request.
type entryState int

const (
	statePending entryState = iota
	stateResolved
	stateTimedOut
	stateCancelled
)

// entry is one row of the pending table. The slot channel has capacity
// one and is filled at most once; state transitions happen only under
// the Correlator mutex.
type entry struct {
	id        string
	enqueued  time.Time
	deadline  time.Time
	state     entryState
	slot      chan wire.Response
	cancelled chan struct{}
}

// Correlator owns the pending table. The table mutex is the only lock;
// Register, Resolve, Await, and Cancel are linearizable per id.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*entry

	orphans atomic.Uint64

	logger  *slog.Logger
	metrics *metric.MetricsRegistry
}

// Option is a functional option for configuring the Correlator
type Option func(*Correlator)

// WithLogger sets the logger used for orphan drops and anomalies
func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger.With("component", "correlator")
		}
	}
}

// WithMetricsRegistry enables pending-depth and orphan counters
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(c *Correlator) {
		c.metrics = registry
	}
}

// New creates a Correlator with an empty pending table.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		pending: make(map[string]*entry),
		logger:  slog.Default().With("component", "correlator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register records a new pending request for id. Ids are UUID-strength,
// so a duplicate means uniqueness broke upstream; it is rejected as a
// defensive bug signal rather than tolerated.
func (c *Correlator) Register(id string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("empty request id"),
			"Correlator", "Register", "validate id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrDuplicateID, id),
			"Correlator", "Register", "record pending request")
	}

	c.pending[id] = &entry{
		id:        id,
		enqueued:  time.Now(),
		state:     statePending,
		slot:      make(chan wire.Response, 1),
		cancelled: make(chan struct{}),
	}
	c.setPendingGauge()
	return nil
}

// Resolve fills the pending entry for id with resp and reports whether
// the response was delivered. A response for an unknown id, or for an
// entry some other writer already finished, is dropped as an orphan.
func (c *Correlator) Resolve(id string, resp wire.Response) bool {
	c.mu.Lock()
	e, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		c.dropOrphan(id, "no pending entry")
		return false
	}
	if e.state != statePending {
		c.mu.Unlock()
		c.dropOrphan(id, "entry already resolved")
		return false
	}
	e.state = stateResolved
	// Capacity-one slot; the state guard admits exactly one writer.
	e.slot <- resp
	c.mu.Unlock()
	return true
}

// Await blocks until the entry for id is resolved, the timeout elapses,
// or ctx is done. Timeout and cancellation remove the entry atomically
// with respect to Resolve; a late response then drops as an orphan.
func (c *Correlator) Await(ctx context.Context, id string, timeout time.Duration) (wire.Response, error) {
	c.mu.Lock()
	e, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return wire.Response{}, errors.WrapInvalid(fmt.Errorf("no pending entry for id %s", id),
			"Correlator", "Await", "look up pending request")
	}
	e.deadline = time.Now().Add(timeout)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-e.slot:
		c.remove(id, e)
		return resp, nil

	case <-timer.C:
		resp, outcome := c.finish(id, e, stateTimedOut)
		switch outcome {
		case stateResolved:
			return resp, nil
		case stateCancelled:
			return wire.Response{}, cancelledErr(id, nil)
		default:
			return wire.Response{}, timeoutErr(id, timeout, nil)
		}

	case <-e.cancelled:
		return wire.Response{}, cancelledErr(id, nil)

	case <-ctx.Done():
		resp, outcome := c.finish(id, e, stateCancelled)
		if outcome == stateResolved {
			return resp, nil
		}
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return wire.Response{}, timeoutErr(id, timeout, ctx.Err())
		}
		return wire.Response{}, cancelledErr(id, ctx.Err())
	}
}

// timeoutErr and cancelledErr build the terminal Await errors. Both are
// transient: the request may be retried with a fresh id.
func timeoutErr(id string, timeout time.Duration, cause error) error {
	err := fmt.Errorf("%w: no response for %s within %s", errors.ErrTimeout, id, timeout)
	if cause != nil {
		err = fmt.Errorf("%w: no response for %s within %s: %v", errors.ErrTimeout, id, timeout, cause)
	}
	return errors.WrapTransient(err, "Correlator", "Await", "await response")
}

func cancelledErr(id string, cause error) error {
	err := fmt.Errorf("%w: %s", errors.ErrCancelled, id)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %v", errors.ErrCancelled, id, cause)
	}
	return errors.WrapTransient(err, "Correlator", "Await", "await response")
}

// Cancel transitions an in-flight entry to cancelled and removes it,
// waking any blocked Await. Reports whether this call won the entry;
// false means the id is unknown or a response already claimed it.
func (c *Correlator) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[id]
	if !ok || e.state != statePending {
		return false
	}
	e.state = stateCancelled
	close(e.cancelled)
	delete(c.pending, id)
	c.setPendingGauge()
	return true
}

// CancelAll cancels every in-flight entry and empties the table,
// returning the number of entries removed. Used on shutdown.
func (c *Correlator) CancelAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	for id, e := range c.pending {
		if e.state == statePending {
			e.state = stateCancelled
			close(e.cancelled)
		}
		delete(c.pending, id)
	}
	c.setPendingGauge()
	return n
}

// Pending returns the current pending-table depth.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OrphanCount returns the number of responses dropped as orphans.
func (c *Correlator) OrphanCount() uint64 {
	return c.orphans.Load()
}

// finish resolves the race between a waker (timer or ctx) and Resolve.
// If the entry is still pending it transitions to terminal and is
// removed. If Resolve won first, the slot is drained and its response
// returned. The returned state is the entry's final state.
func (c *Correlator) finish(id string, e *entry, terminal entryState) (wire.Response, entryState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.state {
	case statePending:
		e.state = terminal
		c.removeLocked(id, e)
		return wire.Response{}, terminal
	case stateResolved:
		resp := <-e.slot
		c.removeLocked(id, e)
		return resp, stateResolved
	default:
		// A concurrent Cancel already removed it.
		return wire.Response{}, e.state
	}
}

// remove deletes the entry for id if it is still the same entry.
func (c *Correlator) remove(id string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id, e)
}

// removeLocked is remove without the lock; the pointer check protects a
// re-registered id from being deleted by a stale waker.
func (c *Correlator) removeLocked(id string, e *entry) {
	if cur, ok := c.pending[id]; ok && cur == e {
		delete(c.pending, id)
		c.setPendingGauge()
	}
}

// dropOrphan records a dropped response. Orphans are expected under
// timeout churn; the original caller already received its own timeout
// signal, so this never raises.
func (c *Correlator) dropOrphan(id, reason string) {
	c.orphans.Add(1)
	c.logger.Warn("dropping orphan response", "id", id, "reason", reason)
	if c.metrics != nil {
		c.metrics.CoreMetrics().RecordOrphanResponse()
	}
}

// setPendingGauge publishes the table depth; callers hold c.mu.
func (c *Correlator) setPendingGauge() {
	if c.metrics != nil {
		c.metrics.CoreMetrics().SetPendingRequests(len(c.pending))
	}
}
