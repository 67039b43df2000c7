// Package natsclient provides a robust NATS client with circuit breaker protection
// and automatic reconnection for the bridge's pub/sub messaging.
//
// The natsclient package wraps the standard NATS Go client with additional reliability
// features including circuit breaker pattern for failure protection, exponential backoff
// for reconnection, and proper context propagation throughout all operations. The bridge
// uses it in two places: the NATS inference transport publishes requests and listens for
// responses on core subjects, and component loggers publish structured log entries to
// logs.{robot_id}.{component}.
//
// # Core Features
//
// Circuit Breaker Pattern: Prevents cascading failures by failing fast after a threshold
// of consecutive failures (default: 5). The circuit opens to prevent further attempts,
// then gradually tests the connection with exponential backoff.
//
// Connection Lifecycle Management: Handles connection states automatically through the
// lifecycle: Disconnected → Connecting → Connected → Reconnecting → Connected. The client
// manages all transitions with configurable callbacks for state changes.
//
// Connection Metrics: When configured with a metrics registry, the client records
// connection status, round-trip time, reconnect counts, and circuit breaker state
// into the platform NATS metrics.
//
// # Basic Usage
//
// Creating and connecting to NATS:
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	err = client.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	// Publish a message
//	err = client.Publish(ctx, "robot.camera.request", payload)
//
//	// Subscribe to messages
//	sub, err := client.Subscribe(ctx, "robot.camera.response", func(msgCtx context.Context, data []byte) {
//	    // Handle message with context (30s timeout per message)
//	    fmt.Printf("Received: %s\n", string(data))
//	})
//	defer sub.Unsubscribe()
//
// # Advanced Configuration
//
// Creating client with options:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithMaxReconnects(-1),  // Infinite reconnects
//	    natsclient.WithReconnectWait(2*time.Second),
//	    natsclient.WithCircuitBreakerThreshold(10),
//	    natsclient.WithMetrics(metricsRegistry),
//	    natsclient.WithDisconnectCallback(func(err error) {
//	        log.Printf("Disconnected: %v", err)
//	    }),
//	    natsclient.WithReconnectCallback(func() {
//	        log.Println("Reconnected successfully")
//	    }),
//	)
//
// # Circuit Breaker Pattern
//
// The circuit breaker protects against cascading failures:
//
//	// Circuit states:
//	// - Closed: Normal operation, requests pass through
//	// - Open: Failures exceeded threshold, failing fast
//	// - Half-Open: Testing if system recovered
//
//	err := client.Connect(ctx)
//	if errors.Is(err, natsclient.ErrCircuitOpen) {
//	    // Back off; the client schedules its own retry window
//	}
//
// Exponential backoff doubles the retry window after each failed round,
// capped at one minute. A successful connection resets the circuit.
//
// # Health Monitoring
//
// The client runs a background health check (default every 10s) that pings
// the server and reports transitions through OnHealthChange. The bridge
// supervisor feeds these transitions into component health status.
//
// # Testing Support
//
// TestClient starts a disposable NATS server in a container:
//
//	func TestMain(m *testing.M) {
//	    tc, err := natsclient.NewSharedTestClient()
//	    if err != nil {
//	        log.Fatalf("nats container: %v", err)
//	    }
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
//
// NewTestClient does the same with automatic t.Cleanup registration for
// per-test containers.
package natsclient
