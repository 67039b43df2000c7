// Package health provides health monitoring for bridge components and systems
// with thread-safe status tracking and aggregation.
//
// The health package tracks the health of the individual bridge components
// (transport, correlator, dispatcher, sequencer) and aggregates them into the
// system-wide view served by the operational HTTP endpoint.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// The three-state model enables nuanced operational responses. A degraded
// transport (reconnecting, elevated timeouts) keeps the bridge serving
// requests while an unhealthy transport triggers immediate attention.
//
// # Core Components
//
// Status: Individual component health state containing status level,
// descriptive message, timestamp, optional metrics, and hierarchical
// sub-statuses.
//
// Monitor: Thread-safe centralized tracking for multiple component health
// statuses with concurrent read/write access and automatic timestamp
// management.
//
// Helpers: Convenience constructors plus Aggregate for combining statuses.
//
// # Basic Usage
//
// Creating and tracking component health:
//
//	monitor := health.NewMonitor()
//
//	// Update component health
//	monitor.UpdateHealthy("transport", "Connection stable")
//	monitor.UpdateDegraded("correlator", "Pending table near capacity")
//	monitor.UpdateUnhealthy("dispatcher", "Handler panics exceeded threshold")
//
//	// Check individual component health
//	if status, exists := monitor.Get("transport"); exists {
//	    if status.IsHealthy() {
//	        log.Println("Transport is healthy")
//	    }
//	}
//
//	// Get all component statuses
//	allStatuses := monitor.GetAll()
//	for name, status := range allStatuses {
//	    log.Printf("%s: %s - %s", name, status.Status, status.Message)
//	}
//
// # System-Wide Health Aggregation
//
// Combining component health statuses into a single bridge indicator:
//
//	systemHealth := monitor.AggregateHealth("bridge")
//	if systemHealth.IsUnhealthy() {
//	    log.Printf("Bridge unhealthy: %s", systemHealth.Message)
//	}
//
//	// Aggregation uses hierarchical rules:
//	// - Any unhealthy component → system unhealthy
//	// - Any degraded component (with no unhealthy) → system degraded
//	// - All healthy → system healthy
//
// # Hierarchical Status
//
// Building nested health status for composite components:
//
//	requestSide := health.NewHealthy("transport-request", "Publishing")
//	responseSide := health.NewDegraded("transport-response", "Subscription resubscribing")
//
//	transportHealth := health.NewHealthy("transport", "Operational").
//	    WithSubStatus(requestSide).
//	    WithSubStatus(responseSide)
//
// # Health Metrics
//
// Attaching operational metrics to a status:
//
//	metrics := &health.Metrics{
//	    Uptime:            time.Since(start),
//	    ErrorCount:        0,
//	    MessagesProcessed: 1500,
//	    LastActivity:      time.Now(),
//	}
//
//	status := health.NewHealthy("correlator", "Resolving normally").
//	    WithMetrics(metrics)
//
// # Integration with Components
//
// Converting component.HealthStatus to health.Status:
//
//	componentHealth := transport.Health() // Returns component.HealthStatus
//
//	// Convert to health.Status with automatic error sanitization
//	healthStatus := health.FromComponentHealth("transport", componentHealth)
//
//	// Error messages are automatically sanitized to remove:
//	// - URLs (http://, nats://, ws://)
//	// - File paths (Unix and Windows)
//	// - IP addresses and ports
//	// - Credentials (password, token, key, secret)
//
// # Thread Safety
//
// All Monitor operations are thread-safe and can be safely called from
// multiple goroutines:
//
//	monitor := health.NewMonitor()
//
//	go monitor.UpdateHealthy("transport", "Running")
//	go monitor.UpdateHealthy("correlator", "Running")
//
//	go func() {
//	    for {
//	        systemHealth := monitor.AggregateHealth("bridge")
//	        log.Printf("Bridge health: %s", systemHealth.Status)
//	        time.Sleep(5 * time.Second)
//	    }
//	}()
//
// The Monitor uses an RWMutex internally to allow concurrent reads while
// protecting writes. Status objects are immutable - methods like WithMetrics
// and WithSubStatus return new copies rather than modifying the original.
//
// # Security
//
// Error messages passed through FromComponentHealth are automatically
// sanitized to remove potentially sensitive information:
//
//	// Original error with sensitive data
//	err := "failed to connect to https://vlm.example.com/infer with token=abc123"
//
//	// After sanitization via FromComponentHealth
//	// "failed to connect to [URL] with [REDACTED]"
//
// Sanitization patterns:
//   - URLs: http://, https://, nats://, ws://, wss:// → [URL]
//   - File paths: /path/to/file, C:\path\to\file → [PATH]
//   - IP addresses: 192.168.1.100 → [IP]
//   - Ports: :8080 → :[PORT]
//   - Credentials: password=X, token=X, key=X, secret=X → [REDACTED]
//
// This prevents accidental exposure of sensitive data in health dashboards
// and logs.
//
// # Error Handling Philosophy
//
// The health package does not return errors because it represents the
// *result* of error handling, not part of error propagation. Health status
// is an observability output.
//
// Components creating Status objects should wrap errors with the errors
// package before converting them to health status messages. The health
// package then sanitizes those messages for safe display.
//
// # Architecture Integration
//
// Data flow:
//
//	Component → component.HealthStatus → health.FromComponentHealth → health.Status → Monitor → HTTP /health
//
// The bridge supervisor polls each managed component's Health(), converts
// the result with FromComponentHealth, and feeds the Monitor. The
// operational HTTP server serves the aggregate.
//
// # Design Decisions
//
// Three-State Model: healthy/degraded/unhealthy rather than a binary state,
// so a reconnecting transport can report degraded without failing the whole
// bridge health check.
//
// Automatic Sanitization: Error messages are sanitized by default (no
// opt-out). Over-redaction during debugging is an accepted cost.
//
// Value-Based Status: Status is a struct, not *Status. Methods like
// WithMetrics return new copies, preventing accidental mutation.
//
// Conservative Aggregation: System health follows "worst case" rules - a
// single unhealthy component marks the entire system unhealthy.
package health
