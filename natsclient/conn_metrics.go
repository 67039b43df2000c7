package natsclient

import (
	"context"
	"time"

	"github.com/c360/robobridge/metric"
)

// Circuit breaker states as exported to the gauge.
const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
)

// connMetrics records connection health into the platform metrics.
// All methods are safe on a nil receiver so the client can call them
// unconditionally whether or not metrics were configured.
type connMetrics struct {
	core *metric.Metrics
}

// newConnMetrics wires connection metrics to the provided registry.
func newConnMetrics(registry *metric.MetricsRegistry) *connMetrics {
	if registry == nil {
		return nil // Metrics disabled
	}
	return &connMetrics{core: registry.CoreMetrics()}
}

// recordStatus updates the connected gauge.
func (m *connMetrics) recordStatus(connected bool) {
	if m != nil {
		m.core.RecordNATSStatus(connected)
	}
}

// recordRTT updates the round-trip time gauge.
func (m *connMetrics) recordRTT(rtt time.Duration) {
	if m != nil {
		m.core.RecordNATSRTT(rtt)
	}
}

// recordReconnect increments the reconnect counter.
func (m *connMetrics) recordReconnect() {
	if m != nil {
		m.core.RecordNATSReconnect()
	}
}

// recordCircuitState updates the circuit breaker gauge.
func (m *connMetrics) recordCircuitState(state int) {
	if m != nil {
		m.core.RecordCircuitBreakerState(state)
	}
}

// updateStats samples connection state and RTT. Called periodically by
// the background poller. Fails gracefully if the server is unreachable.
func (m *connMetrics) updateStats(c *Client) {
	if m == nil {
		return
	}

	conn := c.GetConnection()
	if conn == nil || !conn.IsConnected() {
		m.recordStatus(false)
		return
	}

	m.recordStatus(true)
	if rtt, err := conn.RTT(); err == nil {
		m.recordRTT(rtt)
	}
}

// startPoller starts a background goroutine that samples connection stats
// periodically. Returns a cancel function to stop the poller.
func (m *connMetrics) startPoller(ctx context.Context, interval time.Duration, c *Client) context.CancelFunc {
	if m == nil {
		return func() {} // No-op if metrics disabled
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.updateStats(c)
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
