package action

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robobridge/errors"
	"github.com/c360/robobridge/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingActuator appends every performed name so tests can assert
// call order.
type recordingActuator struct {
	calls  []string
	params []map[string]any
	fail   map[string]error
}

func (a *recordingActuator) Perform(_ context.Context, name string, params map[string]any) error {
	a.calls = append(a.calls, name)
	a.params = append(a.params, params)
	if err, ok := a.fail[name]; ok {
		return err
	}
	return nil
}

func newTestSequencer(t *testing.T, opts ...Option) (*Sequencer, *recordingActuator) {
	t.Helper()

	seq := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	rec := &recordingActuator{fail: make(map[string]error)}
	require.NoError(t, seq.RegisterActuator(wire.KindGesture, rec))
	return seq, rec
}

func TestSequencer_Execute(t *testing.T) {
	seq, rec := newTestSequencer(t)

	result := seq.Execute(context.Background(), wire.Directive{
		Kind:   wire.KindGesture,
		Name:   "wave",
		Params: map[string]any{"speed": 0.5},
	})

	require.True(t, result.OK())
	assert.Equal(t, []string{"wave"}, rec.calls)
	assert.Equal(t, map[string]any{"speed": 0.5}, rec.params[0])
}

func TestSequencer_Execute_NormalizesName(t *testing.T) {
	seq, rec := newTestSequencer(t)

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "  WAVE "})

	require.True(t, result.OK())
	assert.Equal(t, []string{"wave"}, rec.calls)
}

func TestSequencer_Execute_UnknownKind(t *testing.T) {
	seq, _ := newTestSequencer(t)

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindMovement, Name: "forward"})

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, errors.ErrUnknownAction)
	assert.Equal(t, errors.ErrorInvalid, errors.Classify(result.Err))
}

func TestSequencer_Execute_UnknownBuiltinName(t *testing.T) {
	seq, rec := newTestSequencer(t)

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "backflip"})

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, errors.ErrUnknownAction)
	assert.Empty(t, rec.calls, "an out-of-vocabulary name must not reach the actuator")
}

func TestSequencer_Execute_EmptyName(t *testing.T) {
	seq, _ := newTestSequencer(t)

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "   "})

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, errors.ErrUnknownAction)
}

func TestSequencer_Execute_CustomKindSkipsVocabulary(t *testing.T) {
	seq := New(WithLogger(quietLogger()))

	var performed string
	require.NoError(t, seq.RegisterActuator(wire.KindCustom,
		ActuatorFunc(func(_ context.Context, name string, _ map[string]any) error {
			performed = name
			return nil
		})))

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindCustom, Name: "dance_macarena"})

	require.True(t, result.OK())
	assert.Equal(t, "dance_macarena", performed)
}

func TestSequencer_Execute_ActuatorError(t *testing.T) {
	seq, rec := newTestSequencer(t)
	motorErr := fmt.Errorf("motor stalled")
	rec.fail["nod"] = motorErr

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "nod"})

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, motorErr)
}

func TestSequencer_Execute_ActuatorPanicContained(t *testing.T) {
	seq := New(WithLogger(quietLogger()))
	require.NoError(t, seq.RegisterActuator(wire.KindGesture,
		ActuatorFunc(func(context.Context, string, map[string]any) error {
			panic("servo driver bug")
		})))

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "wave"})

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, errors.ErrHandler)
	assert.Contains(t, result.Err.Error(), "servo driver bug")
}

func TestSequencer_ExecuteSequence_StrictOrder(t *testing.T) {
	seq, rec := newTestSequencer(t)
	rec.fail["wave"] = fmt.Errorf("arm jammed")

	results := seq.ExecuteSequence(context.Background(), []wire.Directive{
		{Kind: wire.KindGesture, Name: "wave"},
		{Kind: wire.KindGesture, Name: "nod"},
		{Kind: wire.KindGesture, Name: "shrug"},
	})

	// The first step fails and the walk still runs the rest, in order.
	require.Len(t, results, 3)
	assert.Equal(t, []string{"wave", "nod", "shrug"}, rec.calls)
	assert.False(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.True(t, results[2].OK())
}

func TestSequencer_ExecuteSequence_StopOnError(t *testing.T) {
	seq, rec := newTestSequencer(t, WithStopOnError(true))
	rec.fail["wave"] = fmt.Errorf("arm jammed")

	results := seq.ExecuteSequence(context.Background(), []wire.Directive{
		{Kind: wire.KindGesture, Name: "wave"},
		{Kind: wire.KindGesture, Name: "nod"},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
	assert.Equal(t, []string{"wave"}, rec.calls)
}

func TestSequencer_ExecuteSequence_ContextStopsWalk(t *testing.T) {
	seq := New(WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	require.NoError(t, seq.RegisterActuator(wire.KindGesture,
		ActuatorFunc(func(context.Context, string, map[string]any) error {
			calls++
			cancel()
			return nil
		})))

	results := seq.ExecuteSequence(ctx, []wire.Directive{
		{Kind: wire.KindGesture, Name: "wave"},
		{Kind: wire.KindGesture, Name: "nod"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, 1, calls, "remaining steps must not run after cancellation")
}

func TestSequencer_ExecuteSequence_Empty(t *testing.T) {
	seq, _ := newTestSequencer(t)
	assert.Empty(t, seq.ExecuteSequence(context.Background(), nil))
}

func TestSequencer_RegisterActuator_Validation(t *testing.T) {
	seq := New(WithLogger(quietLogger()))

	err := seq.RegisterActuator("", ActuatorFunc(func(context.Context, string, map[string]any) error { return nil }))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorInvalid, errors.Classify(err))

	err = seq.RegisterActuator(wire.KindGesture, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorInvalid, errors.Classify(err))
}

func TestSequencer_RegisterActuator_Overwrites(t *testing.T) {
	seq := New(WithLogger(quietLogger()))

	var hit string
	first := ActuatorFunc(func(context.Context, string, map[string]any) error { hit = "first"; return nil })
	second := ActuatorFunc(func(context.Context, string, map[string]any) error { hit = "second"; return nil })

	require.NoError(t, seq.RegisterActuator(wire.KindGesture, first))
	require.NoError(t, seq.RegisterActuator(wire.KindGesture, second))

	result := seq.Execute(context.Background(), wire.Directive{Kind: wire.KindGesture, Name: "wave"})
	require.True(t, result.OK())
	assert.Equal(t, "second", hit)
}

func TestSequencer_Kinds(t *testing.T) {
	seq := New(WithLogger(quietLogger()))
	noop := ActuatorFunc(func(context.Context, string, map[string]any) error { return nil })

	require.NoError(t, seq.RegisterActuator(wire.KindSystem, noop))
	require.NoError(t, seq.RegisterActuator(wire.KindGesture, noop))
	require.NoError(t, seq.RegisterActuator(wire.KindMovement, noop))

	assert.Equal(t, []wire.Kind{wire.KindGesture, wire.KindMovement, wire.KindSystem}, seq.Kinds())
}

func TestLoggingActuator_Perform(t *testing.T) {
	actuator := NewLoggingActuator(wire.KindGesture, quietLogger())

	assert.NoError(t, actuator.Perform(context.Background(), "wave", nil))
	assert.NoError(t, actuator.Perform(context.Background(), "unlisted", map[string]any{"speed": 1.0}))
}
