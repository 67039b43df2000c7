// Package metric provides Prometheus-based metrics collection and HTTP server
// for RoboBridge monitoring and observability.
//
// The package offers a centralized metrics registry managing both core platform
// metrics (service status, message processing, the inference request pipeline,
// NATS health) and custom handler-specific metrics. It includes an HTTP server
// exposing metrics in Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Service Registry: Extensible registration for service-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// application concerns (handler-specific metrics) while providing a unified
// metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{} // Platform security config
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("bridge", 2)
//	coreMetrics.RecordRequest("nats", "ok")
//	coreMetrics.SetPendingRequests(3)
//
// The metrics server will expose Prometheus-formatted metrics at http://localhost:9090/metrics
// and a health check at http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Service lifecycle: service_status (0=stopped, 1=starting, 2=running, 3=stopping)
//   - Message flow: messages_received_total, messages_processed_total, messages_published_total
//   - Inference pipeline: inference_requests_total, inference_request_duration_seconds
//   - Correlation: correlator_pending_requests, correlator_orphan_responses_total
//   - Robot actions: actions_executed_total by type and outcome
//   - Image codec: codec_image_payload_bytes
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//   - Error tracking: errors_total
//
// Access core metrics through the registry:
//
//	coreMetrics := registry.CoreMetrics()
//
//	// Request pipeline tracking
//	coreMetrics.RecordRequest("http", "timeout")
//	coreMetrics.RecordRequestDuration("http", 2*time.Second)
//	coreMetrics.RecordOrphanResponse()
//
//	// Action dispatch tracking
//	coreMetrics.RecordActionExecuted("gesture", "ok")
//	coreMetrics.RecordActionExecuted("movement", "error")
//
//	// Error tracking
//	coreMetrics.RecordError("dispatcher", "handler_panic")
//
// # Handler-Specific Metrics
//
// Handlers and services can register custom metrics through the registry:
//
//	wavesPlayed := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "gesture_waves_total",
//	    Help: "Total wave gestures played",
//	})
//	err := registry.RegisterCounter("gesture-handler", "gesture_waves_total", wavesPlayed)
//
// Vector metrics with labels are supported through RegisterCounterVec,
// RegisterGaugeVec and RegisterHistogramVec.
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page with links to metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (default path, configurable)
//   - GET /health - plain OK health check
//
// All core metrics use the namespace "robobridge" and appropriate subsystems:
//   - robobridge_service_status{service="..."}
//   - robobridge_inference_requests_total{transport="...",status="..."}
//   - robobridge_correlator_pending_requests
//
// # Thread Safety
//
// All registry operations are thread-safe:
//   - Registration methods use mutex protection
//   - Metric recording is lock-free (Prometheus guarantee)
//   - CoreMetrics() returns a thread-safe shared instance
//   - PrometheusRegistry() is safe for concurrent access
//
// # Error Handling
//
// Registration methods return errors for:
//
//   - Duplicate registration: attempting to register same metric name twice
//   - Prometheus conflicts: internal Prometheus registration failures
//
// The Server.Start() method returns errors for:
//
//   - Server already running
//   - Nil registry
//   - HTTP server failures (port in use, permission denied)
//
// # Architecture Integration
//
// The metric package integrates with RoboBridge components:
//
//   - bridge: records request outcomes and round-trip durations
//   - correlator: mirrors pending-table depth and orphan drops
//   - dispatch: records action execution outcomes and handler errors
//   - natsclient: NATS client records connectivity metrics
//   - health: Health status can be mirrored as metrics
//
// Data flow:
//
//	Component → Core Metrics → Prometheus Registry → HTTP Server → Prometheus
package metric
