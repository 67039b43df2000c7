package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds the simulator's command-line configuration.
type CLIConfig struct {
	Addr              string
	Emotion           string
	LogLevel          string
	LogFormat         string
	NATSURL           string
	RequestSubject    string
	ResponseSubject   string
	MQTTBroker        string
	MQTTRequestTopic  string
	MQTTResponseTopic string
	MetricsPort       int
	ShowVersion       bool
	ShowHelp          bool
}

// parseFlags parses command-line flags with environment fallbacks.
func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.Addr, "addr", getEnv("VLMSIM_ADDR", ":5000"),
		"HTTP listen address (env: VLMSIM_ADDR)")
	flag.StringVar(&cfg.Emotion, "emotion", getEnv("VLMSIM_EMOTION", ""),
		"Pin the detected person emotion instead of deriving it from the image (env: VLMSIM_EMOTION)")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("VLMSIM_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VLMSIM_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("VLMSIM_LOG_FORMAT", "text"),
		"Log format: text or json (env: VLMSIM_LOG_FORMAT)")

	flag.StringVar(&cfg.NATSURL, "nats-url", getEnv("VLMSIM_NATS_URL", ""),
		"NATS server URL; empty disables the NATS responder (env: VLMSIM_NATS_URL)")
	flag.StringVar(&cfg.RequestSubject, "request-subject",
		getEnv("VLMSIM_REQUEST_SUBJECT", "robot.inference.request"),
		"NATS subject to consume requests from (env: VLMSIM_REQUEST_SUBJECT)")
	flag.StringVar(&cfg.ResponseSubject, "response-subject",
		getEnv("VLMSIM_RESPONSE_SUBJECT", "robot.inference.response"),
		"NATS subject to publish replies on (env: VLMSIM_RESPONSE_SUBJECT)")

	flag.StringVar(&cfg.MQTTBroker, "mqtt-broker", getEnv("VLMSIM_MQTT_BROKER", ""),
		"MQTT broker URL; empty disables the MQTT responder (env: VLMSIM_MQTT_BROKER)")
	flag.StringVar(&cfg.MQTTRequestTopic, "mqtt-request-topic",
		getEnv("VLMSIM_MQTT_REQUEST_TOPIC", "robot/inference/request"),
		"MQTT topic to consume requests from (env: VLMSIM_MQTT_REQUEST_TOPIC)")
	flag.StringVar(&cfg.MQTTResponseTopic, "mqtt-response-topic",
		getEnv("VLMSIM_MQTT_RESPONSE_TOPIC", "robot/inference/response"),
		"MQTT topic to publish replies on (env: VLMSIM_MQTT_RESPONSE_TOPIC)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port", getEnvInt("VLMSIM_METRICS_PORT", 0),
		"Prometheus metrics port; 0 disables the metrics server (env: VLMSIM_METRICS_PORT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show detailed help information")

	flag.Parse()
	return cfg
}

// validateFlags checks flag values for consistency.
func validateFlags(cfg *CLIConfig) error {
	if cfg.Addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metrics port out of range: %d", cfg.MetricsPort)
	}
	if cfg.NATSURL != "" && (cfg.RequestSubject == "" || cfg.ResponseSubject == "") {
		return fmt.Errorf("NATS responder needs both request and response subjects")
	}
	if cfg.MQTTBroker != "" && (cfg.MQTTRequestTopic == "" || cfg.MQTTResponseTopic == "") {
		return fmt.Errorf("MQTT responder needs both request and response topics")
	}
	return nil
}

// printDetailedHelp displays comprehensive help information.
func printDetailedHelp() {
	fmt.Fprintf(os.Stderr, `vlmsim - simulated vision language model service

USAGE:
    vlmsim [OPTIONS]

DESCRIPTION:
    Serves a deterministic rule-based stand-in for the remote inferencer
    over HTTP, and optionally over NATS and MQTT, so the agent can run
    end to end without GPUs or network access.

EXAMPLES:
    # HTTP only on the default port
    vlmsim

    # Serve all three transports
    vlmsim -nats-url nats://localhost:4222 -mqtt-broker tcp://localhost:1883

    # Force every frame to read as happy
    vlmsim -emotion happy

    # Expose prometheus metrics
    vlmsim -metrics-port 9091

OPTIONS:
`)
	flag.PrintDefaults()
}

// getEnv returns the environment variable value or a fallback.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt returns the environment variable as an int or a fallback.
func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
