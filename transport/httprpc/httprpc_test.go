package httprpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/wire"
)

func quietDeps() transport.Dependencies {
	return transport.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// newTestTransport builds an adapter pointed at the given server URL.
func newTestTransport(t *testing.T, baseURL string) transport.Transport {
	t.Helper()

	rawConfig, err := json.Marshal(Config{BaseURL: baseURL, Timeout: 5})
	require.NoError(t, err)

	tr, err := New(rawConfig, quietDeps())
	require.NoError(t, err)
	return tr
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{BaseURL: "http://localhost:5000", Timeout: 30}, false},
		{"valid https", Config{BaseURL: "https://thor.local:5000", Timeout: 30}, false},
		{"missing base_url", Config{Timeout: 30}, true},
		{"bad scheme", Config{BaseURL: "nats://localhost:4222", Timeout: 30}, true},
		{"negative timeout", Config{BaseURL: "http://localhost:5000", Timeout: -1}, true},
		{"timeout too large", Config{BaseURL: "http://localhost:5000", Timeout: 301}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrorInvalid, errors.Classify(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "http://localhost:5000", config.BaseURL)
	assert.Equal(t, 30, config.Timeout)
	assert.NoError(t, config.Validate())
}

func TestNew_InvalidConfig(t *testing.T) {
	tr, err := New(json.RawMessage(`{"base_url":""}`), quietDeps())
	require.Error(t, err)
	assert.Nil(t, tr)
}

func TestTransport_Send_Success(t *testing.T) {
	var gotPath, gotContentType string
	var gotEnvelope map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnvelope))

		reply := map[string]any{
			"status":      "success",
			"text":        "Hello there!",
			"action":      "wave",
			"action_type": "gesture",
			"emotion":     "happy",
			"confidence":  0.92,
			"id":          gotEnvelope["id"],
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	req := wire.NewRequest("hi", nil)
	resp, err := tr.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/infer", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, req.ID, gotEnvelope["id"])
	assert.Equal(t, "hi", gotEnvelope["text"])

	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "Hello there!", resp.Text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, "wave", resp.Action.Name)
	assert.Equal(t, wire.KindGesture, resp.Action.Kind)
	assert.Equal(t, "happy", resp.Emotion)
	assert.InDelta(t, 0.92, resp.Confidence, 0.001)
}

func TestTransport_Send_CarriesImage(t *testing.T) {
	var gotSize float64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		gotSize, _ = envelope["image_size"].(float64)

		fmt.Fprintf(w, `{"status":"success","text":"I see it"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	image := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02, 0x03}
	resp, err := tr.Send(context.Background(), wire.NewRequest("what do you see", image))
	require.NoError(t, err)
	assert.Equal(t, float64(len(image)), gotSize)
	assert.Equal(t, "I see it", resp.Text)
}

func TestTransport_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Send(ctx, wire.NewRequest("slow question", nil))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.True(t, errors.IsTransient(err))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestTransport_Send_DefaultTimeoutApplies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	rawConfig, err := json.Marshal(Config{BaseURL: server.URL, Timeout: 1})
	require.NoError(t, err)
	tr, err := New(rawConfig, quietDeps())
	require.NoError(t, err)
	defer tr.Close(context.Background())

	// No deadline on the context: the configured 1s ceiling kicks in.
	start := time.Now()
	_, err = tr.Send(context.Background(), wire.NewRequest("slow question", nil))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
}

func TestTransport_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := tr.Send(ctx, wire.NewRequest("interrupted", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCancelled)
}

func TestTransport_Send_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not JSON", `this is not an envelope`},
		{"unknown status", `{"status":"maybe","text":"hmm"}`},
		{"missing status", `{"text":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			tr := newTestTransport(t, server.URL)
			defer tr.Close(context.Background())

			_, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrProtocol)
			assert.Equal(t, errors.ErrorInvalid, errors.Classify(err))
		})
	}
}

func TestTransport_Send_ErrorEnvelopeOnBadStatus(t *testing.T) {
	// The reference inferencer answers handled failures with an error
	// envelope and a 4xx/5xx code. The envelope wins over the code.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"status":"error","message":"model exploded"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	resp, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, "model exploded", resp.Err)
}

func TestTransport_Send_BadStatusWithoutEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	_, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.True(t, errors.IsTransient(err))
}

func TestTransport_Send_ResponseIDMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"success","text":"hello","id":"someone-elses-request"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	_, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
}

func TestTransport_Send_EmptyResponseIDAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"success","text":"hello"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	defer tr.Close(context.Background())

	resp, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
}

func TestTransport_Send_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serverURL := server.URL
	server.Close()

	tr := newTestTransport(t, serverURL)

	_, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.True(t, errors.IsTransient(err))
}

func TestTransport_Send_CustomHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"status":"success","text":"ok"}`)
	}))
	defer server.Close()

	rawConfig, err := json.Marshal(Config{
		BaseURL: server.URL,
		Timeout: 5,
		Headers: map[string]string{"Authorization": "Bearer token123"},
	})
	require.NoError(t, err)

	tr, err := New(rawConfig, quietDeps())
	require.NoError(t, err)
	defer tr.Close(context.Background())

	_, err = tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "Bearer token123", gotAuth)
}

func TestTransport_Probe(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
		errIs      error
	}{
		{"ready", http.StatusOK, `{"status":"healthy","model_loaded":true,"model_path":"/models/vlm"}`, false, nil},
		{"model not loaded", http.StatusOK, `{"status":"healthy","model_loaded":false,"model_path":"/models/vlm"}`, true, errors.ErrTransport},
		{"unhealthy status", http.StatusOK, `{"status":"starting","model_loaded":false}`, true, errors.ErrTransport},
		{"server error", http.StatusInternalServerError, `oops`, true, errors.ErrTransport},
		{"garbled reply", http.StatusOK, `not json at all`, true, errors.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			tr := newTestTransport(t, server.URL)
			defer tr.Close(context.Background())

			err := tr.Probe(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errIs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransport_Probe_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serverURL := server.URL
	server.Close()

	tr := newTestTransport(t, serverURL)

	err := tr.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestTransport_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"success","text":"ok"}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)

	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()), "second close is a no-op")

	_, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)

	err = tr.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestTransport_RegistryIntegration(t *testing.T) {
	reg := transport.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Contains(t, reg.Names(), Name)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"success","text":"via registry"}`)
	}))
	defer server.Close()

	rawConfig, err := json.Marshal(Config{BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	tr, err := reg.New(Name, rawConfig, quietDeps())
	require.NoError(t, err)
	defer tr.Close(context.Background())

	resp, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "via registry", resp.Text)
}
