package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/robobridge/codec"
	"github.com/c360/robobridge/pkg/security"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "ROBOBRIDGE"

// DefaultFallbackText is spoken when the remote inferencer cannot be
// reached and no other fallback is configured.
const DefaultFallbackText = "Sorry, I am having trouble connecting to the cloud."

// DefaultCharset accepts plain conversational text in any script.
// Utterances with characters outside it are treated as ASR garbage
// and dropped.
const DefaultCharset = `^[\p{L}\p{N}_\s\.,!?'\-]+$`

// Config is the complete agent configuration. Zero values are filled by
// DefaultConfig; Load applies file and environment overrides on top.
type Config struct {
	Robot     RobotConfig     `yaml:"robot"`
	Logging   LoggingConfig   `yaml:"logging"`
	NATS      NATSConfig      `yaml:"nats"`
	Transport TransportConfig `yaml:"transport"`
	Codec     CodecConfig     `yaml:"codec"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Agent     AgentConfig     `yaml:"agent"`
	Ops       OpsConfig       `yaml:"ops"`
	Security  security.Config `yaml:"security"`
}

// RobotConfig identifies the robot this agent runs on.
type RobotConfig struct {
	// ID names the robot in logs, NATS client names, and log
	// publication subjects.
	ID string `yaml:"id"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// NATSConfig defines the shared NATS connection. The same connection
// carries ASR intake, the natsps transport, actuator publications, and
// component log publication.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Token         string        `yaml:"token"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	TLS           NATSTLSConfig `yaml:"tls"`
}

// NATSTLSConfig for secure NATS connections.
type NATSTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// TransportConfig selects the inference transport adapter and carries the
// per-adapter option sections. Sections are opaque maps handed to the
// adapter factory, which owns their decoding and validation; only the
// section named by Name is used.
type TransportConfig struct {
	Name string `yaml:"name"`

	HTTPRPC map[string]any `yaml:"httprpc"`
	NATSPS  map[string]any `yaml:"natsps"`
	MQTTPS  map[string]any `yaml:"mqttps"`

	// Extra holds option sections for adapters registered outside this
	// module, keyed by adapter name.
	Extra map[string]map[string]any `yaml:"extra"`
}

// CodecConfig controls frame encoding before transmission.
type CodecConfig struct {
	Quality int `yaml:"quality"`  // JPEG quality, 1-100
	MaxSide int `yaml:"max_side"` // longest frame dimension before downscale
}

// BridgeConfig controls the ask-the-model operation.
type BridgeConfig struct {
	// Timeout bounds one inference round trip when the caller supplies
	// no deadline of its own.
	Timeout time.Duration `yaml:"timeout"`

	// FallbackText is spoken when the transport fails outright. Empty
	// disables the fallback and surfaces transport errors instead.
	FallbackText string `yaml:"fallback_text"`

	// HistoryTurns bounds the retained conversation context.
	HistoryTurns int `yaml:"history_turns"`
}

// AgentConfig controls the utterance pipeline.
type AgentConfig struct {
	// UtteranceSubject carries ASR results as {"text","confidence"} JSON.
	UtteranceSubject string `yaml:"utterance_subject"`

	// SpeakSubject receives reply text for the robot's TTS engine.
	SpeakSubject string `yaml:"speak_subject"`

	// ActionSubject is the prefix for actuator publications; the
	// directive kind is appended (robot.action.gesture and so on).
	ActionSubject string `yaml:"action_subject"`

	// Workers bounds concurrent utterance pipelines. A physical robot
	// wants 1 so replies never interleave.
	Workers int `yaml:"workers"`

	// QueueSize bounds utterances waiting for a worker. Submissions
	// beyond it are dropped, newest first.
	QueueSize int `yaml:"queue_size"`

	Gate   GateConfig   `yaml:"gate"`
	Camera CameraConfig `yaml:"camera"`
}

// GateConfig filters ASR utterances before they reach the pipeline.
type GateConfig struct {
	// MinConfidence drops utterances the ASR engine itself doubts.
	MinConfidence float64 `yaml:"min_confidence"`

	// Throttle drops utterances arriving within this interval of the
	// previous accepted or garbled one.
	Throttle time.Duration `yaml:"throttle"`

	// Charset is a regular expression accepted text must match in
	// full. Non-matching text is treated as ASR garbage.
	Charset string `yaml:"charset"`
}

// CameraConfig controls the frame source attached to requests.
type CameraConfig struct {
	Enabled bool `yaml:"enabled"`

	// Subject carries JPEG frames published by the robot's camera.
	Subject string `yaml:"subject"`

	// MaxAge rejects frames older than this at capture time.
	MaxAge time.Duration `yaml:"max_age"`
}

// OpsConfig controls the operational HTTP endpoint serving health,
// readiness, and metrics.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DefaultConfig returns the configuration used when no file or override
// says otherwise. Defaults target a single robot and a local inferencer.
func DefaultConfig() *Config {
	return &Config{
		Robot: RobotConfig{
			ID: "g1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Transport: TransportConfig{
			Name: "httprpc",
		},
		Codec: CodecConfig{
			Quality: codec.DefaultQuality,
			MaxSide: codec.DefaultMaxSide,
		},
		Bridge: BridgeConfig{
			Timeout:      30 * time.Second,
			FallbackText: DefaultFallbackText,
			HistoryTurns: 10,
		},
		Agent: AgentConfig{
			UtteranceSubject: "robot.audio.utterance",
			SpeakSubject:     "robot.audio.speak",
			ActionSubject:    "robot.action",
			Workers:          1,
			QueueSize:        8,
			Gate: GateConfig{
				MinConfidence: 0.3,
				Throttle:      1200 * time.Millisecond,
				Charset:       DefaultCharset,
			},
			Camera: CameraConfig{
				Enabled: false,
				Subject: "robot.camera.frame",
				MaxAge:  2 * time.Second,
			},
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9090,
		},
	}
}

// Load reads configuration from an optional YAML file, applies
// environment overrides, and validates the result. An empty path loads
// defaults plus environment only. Environment references in the file
// (${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		expanded := os.ExpandEnv(string(data))

		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies ROBOBRIDGE_* environment variables on top of
// the file configuration. Only deployment-varying settings are exposed
// this way; transport option sections stay file-only.
func applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"ROBOT_ID", func(v string) error { cfg.Robot.ID = v; return nil }},
		{"LOG_LEVEL", func(v string) error { cfg.Logging.Level = v; return nil }},
		{"LOG_FORMAT", func(v string) error { cfg.Logging.Format = v; return nil }},
		{"NATS_URL", func(v string) error { cfg.NATS.URL = v; return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
		{"TRANSPORT", func(v string) error { cfg.Transport.Name = v; return nil }},
		{"FALLBACK_TEXT", func(v string) error { cfg.Bridge.FallbackText = v; return nil }},
		{"OPS_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %w", err)
			}
			cfg.Ops.Port = port
			return nil
		}},
	}

	for _, o := range overrides {
		key := EnvPrefix + "_" + o.key
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		if err := o.apply(val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

// Validate checks the whole configuration. The transport option sections
// are not inspected here; the selected adapter factory validates its own
// section when the transport is built.
func (c *Config) Validate() error {
	if c.Robot.ID == "" {
		return errors.New("robot.id is required")
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"logging", c.Logging.Validate},
		{"nats", c.NATS.Validate},
		{"transport", c.Transport.Validate},
		{"codec", c.Codec.Validate},
		{"bridge", c.Bridge.Validate},
		{"agent", c.Agent.Validate},
		{"ops", c.Ops.Validate},
		{"security", c.validateSecurity},
	}

	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	return nil
}

// Validate checks logger settings.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level %q must be one of debug, info, warn, error", c.Level)
	}

	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("format %q must be json or text", c.Format)
	}

	return nil
}

// Validate checks NATS connection settings.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.ReconnectWait < 0 {
		return errors.New("reconnect_wait must not be negative")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("tls.cert_file and tls.key_file are required when tls is enabled")
		}
	}

	return nil
}

// Validate checks the adapter selection. Option sections are validated
// later by the adapter factory.
func (c *TransportConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// Options returns the raw option section for the named adapter as JSON,
// ready for the transport registry. A missing section yields an empty
// payload so adapters run on their own defaults.
func (c *TransportConfig) Options(name string) (json.RawMessage, error) {
	var section map[string]any
	switch name {
	case "httprpc":
		section = c.HTTPRPC
	case "natsps":
		section = c.NATSPS
	case "mqttps":
		section = c.MQTTPS
	default:
		section = c.Extra[name]
	}

	if section == nil {
		return nil, nil
	}

	raw, err := json.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("transport %s options: %w", name, err)
	}
	return raw, nil
}

// Validate checks codec settings against the encoder's accepted ranges.
func (c *CodecConfig) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality %d out of range [1,100]", c.Quality)
	}
	if c.MaxSide <= 0 {
		return fmt.Errorf("max_side %d must be positive", c.MaxSide)
	}
	return nil
}

// Validate checks bridge settings.
func (c *BridgeConfig) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.HistoryTurns < 0 {
		return errors.New("history_turns must not be negative")
	}
	return nil
}

// Validate checks the pipeline settings.
func (c *AgentConfig) Validate() error {
	if c.UtteranceSubject == "" {
		return errors.New("utterance_subject is required")
	}
	if c.SpeakSubject == "" {
		return errors.New("speak_subject is required")
	}
	if c.ActionSubject == "" {
		return errors.New("action_subject is required")
	}
	if c.UtteranceSubject == c.SpeakSubject {
		return errors.New("utterance_subject and speak_subject must differ")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d must be at least 1", c.Workers)
	}
	if c.QueueSize < 0 {
		return errors.New("queue_size must not be negative")
	}

	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}

	return nil
}

// Validate checks the utterance gate settings.
func (c *GateConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %v out of range [0,1]", c.MinConfidence)
	}
	if c.Throttle < 0 {
		return errors.New("throttle must not be negative")
	}
	if c.Charset != "" {
		if _, err := regexp.Compile(c.Charset); err != nil {
			return fmt.Errorf("charset: %w", err)
		}
	}
	return nil
}

// Validate checks the camera settings.
func (c *CameraConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Subject == "" {
		return errors.New("subject is required when camera is enabled")
	}
	if c.MaxAge <= 0 {
		return errors.New("max_age must be positive when camera is enabled")
	}
	return nil
}

// Validate checks the ops endpoint settings.
func (c *OpsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", c.Port)
	}
	return nil
}

// validateSecurity checks TLS material referenced by the security
// section. Enabled server TLS must point at readable files.
func (c *Config) validateSecurity() error {
	srv := c.Security.TLS.Server
	if srv.Enabled {
		if srv.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if srv.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if _, err := os.Stat(srv.CertFile); err != nil {
			return fmt.Errorf("tls.server.cert_file: %w", err)
		}
		if _, err := os.Stat(srv.KeyFile); err != nil {
			return fmt.Errorf("tls.server.key_file: %w", err)
		}
		if srv.MinVersion != "" {
			if err := validateTLSVersion(srv.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	cli := c.Security.TLS.Client
	for i, caFile := range cli.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}
	if cli.InsecureSkipVerify {
		_, _ = fmt.Fprintf(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!\n")
	}
	if cli.MinVersion != "" {
		if err := validateTLSVersion(cli.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}

	return nil
}

// validateTLSVersion checks if a TLS version string is valid
func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// String returns the YAML representation of the config. Credentials are
// redacted so the result is safe to log.
func (c *Config) String() string {
	clone := *c
	if clone.NATS.Password != "" {
		clone.NATS.Password = "[redacted]"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "[redacted]"
	}

	data, err := yaml.Marshal(&clone)
	if err != nil {
		return fmt.Sprintf("config marshal failed: %v", err)
	}
	return string(data)
}

// SaveToFile writes the configuration as YAML, for seeding a config file
// from the defaults.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// LogLevel converts the configured level to a slog level.
func (c *LoggingConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
