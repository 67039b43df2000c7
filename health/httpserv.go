package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/pkg/security"
	"github.com/c360/robobridge/pkg/tlsutil"
)

// defaultProbeTimeout bounds one readiness probe when the request carries
// no tighter deadline.
const defaultProbeTimeout = 5 * time.Second

// Prober reports whether the remote side of a connection is ready.
// Transport adapters satisfy it.
type Prober interface {
	Probe(ctx context.Context) error
}

// Server is the operational HTTP endpoint: /healthz aggregates the
// monitor, /readyz probes the remote inferencer, /metrics exposes the
// Prometheus registry.
type Server struct {
	host    string
	port    int
	system  string
	monitor *Monitor

	prober       Prober
	registry     *metric.MetricsRegistry
	security     security.Config
	logger       *slog.Logger
	probeTimeout time.Duration

	mu     sync.Mutex // protects server field
	server *http.Server
}

// ServerOption configures the ops server.
type ServerOption func(*Server)

// WithHost sets the bind host. Empty binds all interfaces.
func WithHost(host string) ServerOption {
	return func(s *Server) {
		s.host = host
	}
}

// WithProber wires the readiness probe, normally the active transport.
func WithProber(p Prober) ServerOption {
	return func(s *Server) {
		s.prober = p
	}
}

// WithMetricsRegistry exposes the registry on /metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) ServerOption {
	return func(s *Server) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithSecurity supplies TLS material for the listener.
func WithSecurity(cfg security.Config) ServerOption {
	return func(s *Server) {
		s.security = cfg
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProbeTimeout bounds each /readyz probe.
func WithProbeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// NewServer creates the ops server. The system name labels the aggregate
// health status.
func NewServer(port int, system string, monitor *Monitor, opts ...ServerOption) *Server {
	if port == 0 {
		port = 9090
	}

	s := &Server{
		port:         port,
		system:       system,
		monitor:      monitor,
		logger:       slog.Default(),
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the ops mux. Exposed so tests can serve it through
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
			},
		))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, `<html>
<head><title>RoboBridge Ops</title></head>
<body>
<h1>RoboBridge Ops Server</h1>
<p><a href="/healthz">Health</a></p>
<p><a href="/readyz">Readiness</a></p>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>`)
	})

	return mux
}

// Start runs the ops HTTP server and blocks until Stop or failure.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "cannot start server that is already running")
	}
	if s.monitor == nil {
		s.mu.Unlock()
		return errors.WrapFatal(
			fmt.Errorf("nil monitor"),
			"Server", "Start", "health monitor not provided")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	if s.security.TLS.Server.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.security.TLS.Server)
		if err != nil {
			s.mu.Unlock()
			return errors.WrapFatal(err, "Server", "Start", "load TLS config")
		}
		server.TLSConfig = tlsConfig
	}

	s.server = server
	s.mu.Unlock()

	s.logger.Info("ops server listening", "addr", server.Addr, "tls", s.security.TLS.Server.Enabled)

	var err error
	if s.security.TLS.Server.Enabled {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("failed to serve on port %d", s.port))
	}
	return nil
}

// Stop shuts the ops server down, letting in-flight requests finish
// within the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}

// Address returns the server address.
func (s *Server) Address() string {
	scheme := "http"
	if s.security.TLS.Server.Enabled {
		scheme = "https"
	}
	host := s.host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, s.port)
}

// handleHealthz serves the aggregate health of all monitored components.
// Degraded still answers 200; only unhealthy flips to 503.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	agg := s.monitor.AggregateHealth(s.system)

	code := http.StatusOK
	if agg.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(agg); err != nil {
		s.logger.Warn("healthz encode failed", "error", err)
	}
}

// readiness is the /readyz reply shape.
type readiness struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// handleReadyz probes the remote inferencer. With no prober configured
// there is nothing to wait for and the server reports ready.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.prober == nil {
		_ = json.NewEncoder(w).Encode(readiness{Ready: true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.probeTimeout)
	defer cancel()

	if err := s.prober.Probe(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(readiness{
			Ready: false,
			Error: sanitizeErrorMessage(err.Error()),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(readiness{Ready: true})
}
