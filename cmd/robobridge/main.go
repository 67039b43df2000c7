// Package main implements the entry point for the RoboBridge agent.
// The agent connects a robot's speech and camera streams to a remote
// vision-language model over a pluggable transport, voices the reply,
// and sequences the returned actions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/robobridge/action"
	"github.com/c360/robobridge/bridge"
	"github.com/c360/robobridge/codec"
	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/config"
	"github.com/c360/robobridge/convo"
	"github.com/c360/robobridge/health"
	"github.com/c360/robobridge/input/asr"
	"github.com/c360/robobridge/input/camera"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/transport/httprpc"
	"github.com/c360/robobridge/transport/mqttps"
	"github.com/c360/robobridge/transport/natsps"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "robobridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging, cliCfg.Debug)
	slog.SetDefault(logger)

	slog.Info("Starting RoboBridge agent",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"robot_id", cfg.Robot.ID,
		"transport", cfg.Transport.Name)

	ctx := context.Background()

	metricsRegistry := metric.NewMetricsRegistry()
	natsClient, err := buildNATSClient(cfg, metricsRegistry)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := connectToNATS(ctx, natsClient); err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	br, convoMgr, err := buildBridge(cfg, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer br.Close(ctx)

	convoMgr.SetRobotState(map[string]string{"robot_id": cfg.Robot.ID})

	sequencer := action.New(
		action.WithLogger(logger),
		action.WithMetricsRegistry(metricsRegistry),
	)
	if err := registerActuators(sequencer, natsClient, cfg.Agent.ActionSubject); err != nil {
		return err
	}

	speaker := newNATSSpeaker(natsClient, cfg.Agent.SpeakSubject, logger)
	dispatcher := buildDispatcher(speaker, sequencer, metricsRegistry, logger)

	// Pipeline events also publish on logs.<robot>.agent for remote
	// operator tailing.
	convLog := component.NewLogger("agent", cfg.Robot.ID, natsClient.GetConnection(), logger)

	var cam bridge.Camera
	var comps []component.LifecycleComponent
	if cfg.Agent.Camera.Enabled {
		camSource := camera.New(
			camera.Config{Subject: cfg.Agent.Camera.Subject, MaxAge: cfg.Agent.Camera.MaxAge},
			camera.Deps{NATSClient: natsClient, Logger: logger, Metrics: metricsRegistry})
		cam = camSource
		comps = append(comps, camSource)
	}

	pipeline := newPipeline(br, dispatcher, cam, convLog, logger)

	asrInput := asr.New(asr.Config{
		Subject:       cfg.Agent.UtteranceSubject,
		Workers:       cfg.Agent.Workers,
		QueueSize:     cfg.Agent.QueueSize,
		MinConfidence: cfg.Agent.Gate.MinConfidence,
		Throttle:      cfg.Agent.Gate.Throttle,
		Charset:       cfg.Agent.Gate.Charset,
	}, pipeline, asr.Deps{NATSClient: natsClient, Logger: logger, Metrics: metricsRegistry})
	comps = append(comps, asrInput)

	monitor := health.NewMonitor()
	ops, opsErrs := startOpsServer(cfg, monitor, br, metricsRegistry, logger)

	return runWithSignalHandling(ctx, comps, monitor, natsClient, ops, opsErrs, cliCfg.ShutdownTimeout)
}

// buildNATSClient maps the NATS config section onto client options.
func buildNATSClient(cfg *config.Config, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(fmt.Sprintf("%s-%s", appName, cfg.Robot.ID)),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithMetrics(registry),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile))
	}
	return natsclient.NewClient(cfg.NATS.URL, opts...)
}

// connectToNATS establishes the NATS connection and waits for it to be
// ready.
func connectToNATS(ctx context.Context, client *natsclient.Client) error {
	slog.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	return nil
}

// buildBridge selects the transport adapter from the registry and ties
// it to the codec and conversation context.
func buildBridge(cfg *config.Config, natsClient *natsclient.Client, registry *metric.MetricsRegistry, logger *slog.Logger) (*bridge.Bridge, *convo.Manager, error) {
	transports := transport.NewRegistry()
	for _, register := range []func(*transport.Registry) error{
		httprpc.Register,
		natsps.Register,
		mqttps.Register,
	} {
		if err := register(transports); err != nil {
			return nil, nil, fmt.Errorf("register transports: %w", err)
		}
	}
	slog.Info("transport adapters registered", "available", transports.Names())

	rawOptions, err := cfg.Transport.Options(cfg.Transport.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("transport options: %w", err)
	}

	tr, err := transports.New(cfg.Transport.Name, rawOptions, transport.Dependencies{
		NATSClient: natsClient,
		Security:   cfg.Security,
		Logger:     logger,
		Metrics:    registry,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s transport: %w", cfg.Transport.Name, err)
	}

	enc, err := codec.New(codec.WithQuality(cfg.Codec.Quality), codec.WithMaxSide(cfg.Codec.MaxSide))
	if err != nil {
		return nil, nil, fmt.Errorf("create codec: %w", err)
	}

	convoMgr := convo.New(cfg.Bridge.HistoryTurns)

	br, err := bridge.New(tr, enc,
		bridge.WithLogger(logger),
		bridge.WithMetricsRegistry(registry),
		bridge.WithTransportName(cfg.Transport.Name),
		bridge.WithTimeout(cfg.Bridge.Timeout),
		bridge.WithFallbackText(cfg.Bridge.FallbackText),
		bridge.WithConversation(convoMgr),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create bridge: %w", err)
	}

	return br, convoMgr, nil
}

// startOpsServer launches /healthz, /readyz, and /metrics when the ops
// section is enabled. The returned channel carries the server's exit
// error.
func startOpsServer(cfg *config.Config, monitor *health.Monitor, prober health.Prober, registry *metric.MetricsRegistry, logger *slog.Logger) (*health.Server, <-chan error) {
	errs := make(chan error, 1)
	if !cfg.Ops.Enabled {
		return nil, errs
	}

	server := health.NewServer(cfg.Ops.Port, appName, monitor,
		health.WithHost(cfg.Ops.Host),
		health.WithProber(prober),
		health.WithMetricsRegistry(registry),
		health.WithSecurity(cfg.Security),
		health.WithServerLogger(logger),
	)
	go func() {
		errs <- server.Start()
	}()

	slog.Info("ops server starting", "address", server.Address())
	return server, errs
}

// runWithSignalHandling starts the pipeline components and blocks until
// a signal or a fatal ops failure, then stops everything in reverse
// order.
func runWithSignalHandling(
	ctx context.Context,
	comps []component.LifecycleComponent,
	monitor *health.Monitor,
	natsClient *natsclient.Client,
	ops *health.Server,
	opsErrs <-chan error,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	started := make([]component.LifecycleComponent, 0, len(comps))
	for _, c := range comps {
		name := c.Meta().Name
		if err := c.Initialize(); err != nil {
			stopComponents(started, shutdownTimeout)
			return fmt.Errorf("initialize %s: %w", name, err)
		}
		if err := c.Start(signalCtx); err != nil {
			stopComponents(started, shutdownTimeout)
			return fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, c)
		slog.Info("component started", "name", name)
	}

	go superviseHealth(signalCtx, monitor, comps, natsClient, 5*time.Second)

	slog.Info("RoboBridge agent ready")

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-opsErrs:
		slog.Error("ops server failed", "error", err)
		signalCancel()
	}

	stopComponents(started, shutdownTimeout)

	if ops != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Stop(stopCtx); err != nil {
			slog.Warn("ops server stop failed", "error", err)
		}
	}

	slog.Info("RoboBridge agent shutdown complete")
	return nil
}

// stopComponents stops components in reverse start order, sharing the
// shutdown budget.
func stopComponents(comps []component.LifecycleComponent, total time.Duration) {
	deadline := time.Now().Add(total)
	for i := len(comps) - 1; i >= 0; i-- {
		c := comps[i]
		remaining := time.Until(deadline)
		if remaining < time.Second {
			remaining = time.Second
		}
		if err := c.Stop(remaining); err != nil {
			slog.Warn("component stop failed", "name", c.Meta().Name, "error", err)
		} else {
			slog.Info("component stopped", "name", c.Meta().Name)
		}
	}
}
