// Package main implements the simulated vision language model service.
// It serves the vlmsim rule engine over HTTP, and optionally over NATS
// and MQTT, so the agent can run end to end without the real inferencer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/robobridge/component"
	"github.com/c360/robobridge/metric"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/pkg/security"
	"github.com/c360/robobridge/vlmsim"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "vlmsim"
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
		slog.Error("Simulator failed", "error", err, "exit_code", 1)
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

	logger := setupLogger(cliCfg)
	slog.SetDefault(logger)

	slog.Info("Starting inference simulator",
		"version", Version,
		"addr", cliCfg.Addr,
		"nats", cliCfg.NATSURL != "",
		"mqtt", cliCfg.MQTTBroker != "")

	ctx := context.Background()
	registry := metric.NewMetricsRegistry()

	engineOpts := []vlmsim.Option{
		vlmsim.WithLogger(logger),
		vlmsim.WithMetricsRegistry(registry),
	}
	if cliCfg.Emotion != "" {
		engineOpts = append(engineOpts, vlmsim.WithEmotion(cliCfg.Emotion))
	}
	engine := vlmsim.New(engineOpts...)

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	httpServer := &http.Server{
		Addr:              cliCfg.Addr,
		Handler:           vlmsim.NewHandler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErrs := make(chan error, 1)
	go func() {
		slog.Info("HTTP responder listening", "addr", cliCfg.Addr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		httpErrs <- err
	}()

	responders, natsClient, err := buildResponders(ctx, engine, cliCfg, registry, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	started := make([]component.LifecycleComponent, 0, len(responders))
	stopStarted := func() {
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(5 * time.Second); err != nil {
				slog.Warn("responder stop failed", "name", started[i].Meta().Name, "error", err)
			}
		}
	}
	for _, r := range responders {
		name := r.Meta().Name
		if err := r.Initialize(); err != nil {
			stopStarted()
			return fmt.Errorf("initialize %s: %w", name, err)
		}
		if err := r.Start(signalCtx); err != nil {
			stopStarted()
			return fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, r)
		slog.Info("responder started", "name", name)
	}

	var metricsServer *metric.Server
	if cliCfg.MetricsPort > 0 {
		metricsServer = metric.NewServer(cliCfg.MetricsPort, "/metrics", registry, security.Config{})
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics server exited", "error", err)
			}
		}()
		slog.Info("metrics server starting", "port", cliCfg.MetricsPort)
	}

	slog.Info("Simulator ready")

	var runErr error
	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-httpErrs:
		if err != nil {
			slog.Error("HTTP responder failed", "error", err)
			runErr = err
		}
		signalCancel()
	}

	stopStarted()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP responder shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			slog.Warn("metrics server stop failed", "error", err)
		}
	}

	slog.Info("Simulator shutdown complete")
	return runErr
}

// buildResponders assembles the optional NATS and MQTT responders from
// the CLI flags. The returned client is non-nil only when the NATS
// responder is enabled; the caller owns closing it.
func buildResponders(ctx context.Context, engine *vlmsim.Engine, cliCfg *CLIConfig, registry *metric.MetricsRegistry, logger *slog.Logger) ([]component.LifecycleComponent, *natsclient.Client, error) {
	var responders []component.LifecycleComponent
	var client *natsclient.Client

	if cliCfg.NATSURL != "" {
		var err error
		client, err = natsclient.NewClient(cliCfg.NATSURL,
			natsclient.WithName(appName),
			natsclient.WithMetrics(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create NATS client: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}

		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = client.WaitForConnection(connCtx)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("NATS connection timeout: %w", err)
		}

		responders = append(responders,
			vlmsim.NewNATSResponder(engine, client, cliCfg.RequestSubject, cliCfg.ResponseSubject, logger))
	}

	if cliCfg.MQTTBroker != "" {
		responders = append(responders, vlmsim.NewMQTTResponder(engine, vlmsim.MQTTConfig{
			BrokerURL:     cliCfg.MQTTBroker,
			RequestTopic:  cliCfg.MQTTRequestTopic,
			ResponseTopic: cliCfg.MQTTResponseTopic,
			QoS:           1,
		}, logger))
	}

	return responders, client, nil
}

// setupLogger builds the process logger from the CLI flags.
func setupLogger(cfg *CLIConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", appName, "version", Version)
}
