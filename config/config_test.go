package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robobridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "g1", cfg.Robot.ID)
	assert.Equal(t, "httprpc", cfg.Transport.Name)
	assert.Equal(t, DefaultFallbackText, cfg.Bridge.FallbackText)
	assert.Equal(t, 85, cfg.Codec.Quality)
	assert.Equal(t, 1280, cfg.Codec.MaxSide)
	assert.Equal(t, 0.3, cfg.Agent.Gate.MinConfidence)
	assert.Equal(t, 1200*time.Millisecond, cfg.Agent.Gate.Throttle)
	assert.Equal(t, 1, cfg.Agent.Workers)
	assert.False(t, cfg.Agent.Camera.Enabled)
	assert.True(t, cfg.Ops.Enabled)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
robot:
  id: lab-7
nats:
  url: nats://robot-lan:4222
transport:
  name: mqttps
  mqttps:
    broker_url: tcp://broker:1883
    request_topic: robot/inference/request
    response_topic: robot/inference/response
    qos: 1
bridge:
  timeout: 45s
agent:
  gate:
    throttle: 2.5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lab-7", cfg.Robot.ID)
	assert.Equal(t, "nats://robot-lan:4222", cfg.NATS.URL)
	assert.Equal(t, "mqttps", cfg.Transport.Name)
	assert.Equal(t, 45*time.Second, cfg.Bridge.Timeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Agent.Gate.Throttle)

	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultFallbackText, cfg.Bridge.FallbackText)
	assert.Equal(t, 0.3, cfg.Agent.Gate.MinConfidence)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROBOBRIDGE_ROBOT_ID", "env-robot")
	t.Setenv("ROBOBRIDGE_NATS_URL", "nats://env:4222")
	t.Setenv("ROBOBRIDGE_TRANSPORT", "natsps")
	t.Setenv("ROBOBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("ROBOBRIDGE_OPS_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-robot", cfg.Robot.ID)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "natsps", cfg.Transport.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9191, cfg.Ops.Port)
}

func TestLoad_EnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, "robot:\n  id: file-robot\n")
	t.Setenv("ROBOBRIDGE_ROBOT_ID", "env-robot")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-robot", cfg.Robot.ID)
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("ROBOBRIDGE_OPS_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROBOBRIDGE_OPS_PORT")
}

func TestLoad_ExpandsEnvRefsInFile(t *testing.T) {
	t.Setenv("TEST_MQTT_PASSWORD", "hunter2")
	path := writeConfigFile(t, `
transport:
  name: mqttps
  mqttps:
    broker_url: tcp://broker:1883
    password: ${TEST_MQTT_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Transport.MQTTPS["password"])
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, "brdige:\n  timeout: 45s\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brdige")
}

func TestLoad_FileErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	jsonPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0600))

	big := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("# padding\n", 200000)), 0600))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", missing, "cannot stat"},
		{"wrong extension", jsonPath, "only YAML"},
		{"oversized file", big, "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty robot id", func(c *Config) { c.Robot.ID = "" }, "robot.id is required"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }, "url is required"},
		{"negative reconnect wait", func(c *Config) { c.NATS.ReconnectWait = -time.Second }, "reconnect_wait"},
		{"nats tls without certs", func(c *Config) { c.NATS.TLS.Enabled = true }, "tls.cert_file"},
		{"empty transport name", func(c *Config) { c.Transport.Name = "" }, "name is required"},
		{"quality too low", func(c *Config) { c.Codec.Quality = 0 }, "quality"},
		{"quality too high", func(c *Config) { c.Codec.Quality = 101 }, "quality"},
		{"zero max side", func(c *Config) { c.Codec.MaxSide = 0 }, "max_side"},
		{"negative bridge timeout", func(c *Config) { c.Bridge.Timeout = -time.Second }, "timeout"},
		{"negative history", func(c *Config) { c.Bridge.HistoryTurns = -1 }, "history_turns"},
		{"empty utterance subject", func(c *Config) { c.Agent.UtteranceSubject = "" }, "utterance_subject"},
		{"empty speak subject", func(c *Config) { c.Agent.SpeakSubject = "" }, "speak_subject"},
		{"empty action subject", func(c *Config) { c.Agent.ActionSubject = "" }, "action_subject"},
		{
			"utterance equals speak",
			func(c *Config) { c.Agent.SpeakSubject = c.Agent.UtteranceSubject },
			"must differ",
		},
		{"zero workers", func(c *Config) { c.Agent.Workers = 0 }, "workers"},
		{"negative queue", func(c *Config) { c.Agent.QueueSize = -1 }, "queue_size"},
		{"confidence above one", func(c *Config) { c.Agent.Gate.MinConfidence = 1.5 }, "min_confidence"},
		{"negative throttle", func(c *Config) { c.Agent.Gate.Throttle = -time.Second }, "throttle"},
		{"bad charset regexp", func(c *Config) { c.Agent.Gate.Charset = "[unclosed" }, "charset"},
		{
			"camera enabled without subject",
			func(c *Config) { c.Agent.Camera.Enabled = true; c.Agent.Camera.Subject = "" },
			"subject is required",
		},
		{
			"camera enabled without max age",
			func(c *Config) { c.Agent.Camera.Enabled = true; c.Agent.Camera.MaxAge = 0 },
			"max_age",
		},
		{"ops port out of range", func(c *Config) { c.Ops.Port = 0 }, "port"},
		{
			"server tls without cert",
			func(c *Config) { c.Security.TLS.Server.Enabled = true },
			"cert_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_DisabledSectionsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ops.Enabled = false
	cfg.Ops.Port = 0
	cfg.Agent.Camera.Enabled = false
	cfg.Agent.Camera.Subject = ""

	assert.NoError(t, cfg.Validate())
}

func TestTransportConfig_Options(t *testing.T) {
	tc := TransportConfig{
		Name: "httprpc",
		HTTPRPC: map[string]any{
			"base_url": "http://thor.local:5000",
			"timeout":  20,
		},
		MQTTPS: map[string]any{
			"broker_url": "tcp://broker:1883",
			"qos":        1,
		},
		Extra: map[string]map[string]any{
			"grpcstream": {"endpoint": "dns:///inference:443"},
		},
	}

	raw, err := tc.Options("httprpc")
	require.NoError(t, err)

	var decoded struct {
		BaseURL string `json:"base_url"`
		Timeout int    `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "http://thor.local:5000", decoded.BaseURL)
	assert.Equal(t, 20, decoded.Timeout)

	raw, err = tc.Options("grpcstream")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "dns:///inference:443")

	raw, err = tc.Options("natsps")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestLoggingConfig_LogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := LoggingConfig{Level: tt.level}
		assert.Equal(t, tt.want, cfg.LogLevel(), "level %q", tt.level)
	}
}

func TestConfig_String_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.Password = "super-secret"
	cfg.NATS.Token = "tok-123"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "tok-123")
	assert.Contains(t, s, "[redacted]")
	assert.Contains(t, s, "robot.audio.utterance")

	// String must not mutate the config itself.
	assert.Equal(t, "super-secret", cfg.NATS.Password)
}

func TestConfig_SaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robobridge.yaml")

	cfg := DefaultConfig()
	cfg.Robot.ID = "saved-robot"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
