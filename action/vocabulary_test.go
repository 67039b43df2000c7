package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robobridge/wire"
)

func TestBuiltinVocabulary(t *testing.T) {
	assert.Subset(t, Names(wire.KindGesture),
		[]string{"wave", "nod", "shake_head", "thumbs_up", "bow", "shrug"})
	assert.Subset(t, Names(wire.KindMovement),
		[]string{"forward", "backward", "left", "right", "turn_left", "turn_right", "walk", "stop"})
	assert.Subset(t, Names(wire.KindSystem),
		[]string{"stand_up", "sit_down", "stop", "reset", "emergency_stop", "power_off", "power_on"})
}

func TestLookup(t *testing.T) {
	meta, ok := Lookup(wire.KindGesture, "wave")
	require.True(t, ok)
	assert.Equal(t, "Waving hand", meta.Description)
	assert.False(t, meta.Critical)

	meta, ok = Lookup(wire.KindSystem, "emergency_stop")
	require.True(t, ok)
	assert.True(t, meta.Critical)

	_, ok = Lookup(wire.KindGesture, "moonwalk")
	assert.False(t, ok)

	// Lookup normalizes before matching.
	assert.True(t, Known(wire.KindGesture, "  WAVE "))
}

func TestRegisterName(t *testing.T) {
	kind := wire.Kind("test_kind")

	RegisterName(kind, "Spin ", WithDescription("Spin in place"))
	meta, ok := Lookup(kind, "spin")
	require.True(t, ok)
	assert.Equal(t, "spin", meta.Name)
	assert.Equal(t, "Spin in place", meta.Description)

	// Re-registration overwrites.
	RegisterName(kind, "spin", WithDescription("Full rotation"), WithCritical())
	meta, ok = Lookup(kind, "spin")
	require.True(t, ok)
	assert.Equal(t, "Full rotation", meta.Description)
	assert.True(t, meta.Critical)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wave", "wave"},
		{"WAVE", "wave"},
		{"  Shake_Head  ", "shake_head"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}
