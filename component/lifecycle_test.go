package component

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateInitialized, "initialized"},
		{StateStarted, "started"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

// staticComponent implements Component without lifecycle support.
type staticComponent struct{}

func (staticComponent) Meta() Metadata {
	return Metadata{Name: "static", Type: "server"}
}

func (staticComponent) Health() HealthStatus {
	return HealthStatus{Healthy: true, LastCheck: time.Now()}
}

// fakeTransport implements the full LifecycleComponent interface.
type fakeTransport struct {
	staticComponent
	initialized bool
	started     bool
	stopped     bool
}

func (f *fakeTransport) Initialize() error {
	f.initialized = true
	return nil
}

func (f *fakeTransport) Start(_ context.Context) error {
	f.started = true
	return nil
}

func (f *fakeTransport) Stop(_ time.Duration) error {
	f.stopped = true
	return nil
}

func TestIsLifecycleComponent(t *testing.T) {
	assert.False(t, IsLifecycleComponent(staticComponent{}))
	assert.True(t, IsLifecycleComponent(&fakeTransport{}))
}

func TestAsLifecycleComponent(t *testing.T) {
	_, ok := AsLifecycleComponent(staticComponent{})
	assert.False(t, ok)

	ft := &fakeTransport{}
	lc, ok := AsLifecycleComponent(ft)
	assert.True(t, ok)

	assert.NoError(t, lc.Initialize())
	assert.NoError(t, lc.Start(context.Background()))
	assert.NoError(t, lc.Stop(time.Second))
	assert.True(t, ft.initialized)
	assert.True(t, ft.started)
	assert.True(t, ft.stopped)
}

func TestManagedComponent_Tracking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := ManagedComponent{
		Component:  &fakeTransport{},
		State:      StateCreated,
		Context:    ctx,
		Cancel:     cancel,
		StartOrder: 2,
	}

	assert.Equal(t, StateCreated, mc.State)
	assert.Equal(t, 2, mc.StartOrder)
	assert.NoError(t, mc.LastError)

	mc.Cancel()
	select {
	case <-mc.Context.Done():
	default:
		t.Fatal("cancel should propagate to the managed context")
	}
}
