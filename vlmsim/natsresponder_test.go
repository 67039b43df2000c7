package vlmsim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/natsclient"
	"github.com/c360/robobridge/transport"
	"github.com/c360/robobridge/transport/natsps"
	"github.com/c360/robobridge/wire"
)

// simSubjects returns a unique subject pair so tests sharing the NATS
// server cannot cross-talk.
func simSubjects() (string, string) {
	base := "test.vlmsim." + uuid.NewString()
	return base + ".request", base + ".response"
}

func startNATSResponder(t *testing.T, client *natsclient.Client, reqSubj, respSubj string, opts ...Option) *NATSResponder {
	t.Helper()

	responder := NewNATSResponder(newTestEngine(opts...), client, reqSubj, respSubj, quietLogger())
	require.NoError(t, responder.Initialize())
	require.NoError(t, responder.Start(context.Background()))
	t.Cleanup(func() { _ = responder.Stop(time.Second) })

	return responder
}

func TestNATSResponder_Initialize_Validation(t *testing.T) {
	engine := newTestEngine()

	err := NewNATSResponder(nil, nil, "a.request", "a.response", nil).Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	err = NewNATSResponder(engine, nil, "a.request", "a.response", nil).Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestNATSResponder_Meta(t *testing.T) {
	responder := NewNATSResponder(newTestEngine(), nil, "a.request", "a.response", nil)

	meta := responder.Meta()
	assert.Equal(t, "vlmsim-nats", meta.Name)
	assert.Equal(t, "server", meta.Type)
}

func TestNATSResponder_ServesNATSTransport(t *testing.T) {
	tc := requireSharedNATS(t)
	reqSubj, respSubj := simSubjects()

	responder := startNATSResponder(t, tc.Client, reqSubj, respSubj)
	assert.True(t, responder.Health().Healthy)

	rawConfig, err := json.Marshal(natsps.Config{
		RequestSubject:  reqSubj,
		ResponseSubject: respSubj,
		Timeout:         5,
	})
	require.NoError(t, err)

	tr, err := natsps.New(rawConfig, transport.Dependencies{
		NATSClient: tc.Client,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close(context.Background()) })

	resp, err := tr.Send(context.Background(), wire.NewRequest("hi", nil))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "Hello. It's good to see you.", resp.Text)
	require.NotNil(t, resp.Action)
	assert.Equal(t, "wave", resp.Action.Name)

	assert.Equal(t, uint64(1), responder.Served())
}

func TestNATSResponder_DropsUndecodable(t *testing.T) {
	tc := requireSharedNATS(t)
	reqSubj, respSubj := simSubjects()

	responder := startNATSResponder(t, tc.Client, reqSubj, respSubj)

	require.NoError(t, tc.Client.Publish(context.Background(), reqSubj, []byte("{not an envelope")))
	require.NoError(t, tc.Client.Flush())

	require.Eventually(t, func() bool {
		return responder.Health().ErrorCount == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, uint64(0), responder.Served())
}

func TestNATSResponder_Lifecycle(t *testing.T) {
	tc := requireSharedNATS(t)
	reqSubj, respSubj := simSubjects()

	responder := NewNATSResponder(newTestEngine(), tc.Client, reqSubj, respSubj, quietLogger())
	require.NoError(t, responder.Initialize())

	err := responder.Stop(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)

	require.NoError(t, responder.Start(context.Background()))
	assert.True(t, responder.Health().Healthy)

	err = responder.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	require.NoError(t, responder.Stop(time.Second))
	assert.False(t, responder.Health().Healthy)
}
