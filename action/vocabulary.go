package action

import (
	"sort"
	"strings"
	"sync"

	"github.com/c360/robobridge/wire"
)

// Metadata describes one known action name within a directive kind.
type Metadata struct {
	Kind        wire.Kind
	Name        string
	Description string
	Critical    bool
}

// Global action vocabulary. The builtins below cover the stock robot
// capabilities; robots with extra skills register theirs at startup.
var (
	vocabMu    sync.RWMutex
	vocabulary = make(map[wire.Kind]map[string]Metadata)
)

// NameOption is a functional option for action name registration.
type NameOption func(*Metadata)

// WithDescription sets the human-readable description of the action.
func WithDescription(desc string) NameOption {
	return func(m *Metadata) {
		m.Description = desc
	}
}

// WithCritical marks an action that demands operator attention. The
// sequencer logs such performs at error level before they run.
func WithCritical() NameOption {
	return func(m *Metadata) {
		m.Critical = true
	}
}

// RegisterName adds name to kind's vocabulary. Names are normalized to
// lowercase; re-registering a name overwrites its metadata.
func RegisterName(kind wire.Kind, name string, opts ...NameOption) {
	meta := Metadata{Kind: kind, Name: Normalize(name)}
	for _, opt := range opts {
		opt(&meta)
	}

	vocabMu.Lock()
	defer vocabMu.Unlock()

	kindTable, ok := vocabulary[kind]
	if !ok {
		kindTable = make(map[string]Metadata)
		vocabulary[kind] = kindTable
	}
	kindTable[meta.Name] = meta
}

// Lookup returns the metadata registered for a kind/name pair. The name
// is normalized before the lookup.
func Lookup(kind wire.Kind, name string) (Metadata, bool) {
	vocabMu.RLock()
	defer vocabMu.RUnlock()

	meta, ok := vocabulary[kind][Normalize(name)]
	return meta, ok
}

// Known reports whether name is in kind's vocabulary.
func Known(kind wire.Kind, name string) bool {
	_, ok := Lookup(kind, name)
	return ok
}

// Names returns kind's vocabulary in sorted order.
func Names(kind wire.Kind) []string {
	vocabMu.RLock()
	defer vocabMu.RUnlock()

	names := make([]string, 0, len(vocabulary[kind]))
	for name := range vocabulary[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize canonicalizes an action name the way actuators expect it.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func init() {
	RegisterName(wire.KindGesture, "wave", WithDescription("Waving hand"))
	RegisterName(wire.KindGesture, "nod", WithDescription("Nodding head"))
	RegisterName(wire.KindGesture, "shake_head", WithDescription("Shaking head"))
	RegisterName(wire.KindGesture, "thumbs_up", WithDescription("Thumbs up"))
	RegisterName(wire.KindGesture, "bow", WithDescription("Bowing"))
	RegisterName(wire.KindGesture, "shrug", WithDescription("Shrugging"))

	RegisterName(wire.KindMovement, "forward", WithDescription("Move forward"))
	RegisterName(wire.KindMovement, "backward", WithDescription("Move backward"))
	RegisterName(wire.KindMovement, "left", WithDescription("Move left"))
	RegisterName(wire.KindMovement, "right", WithDescription("Move right"))
	RegisterName(wire.KindMovement, "turn_left", WithDescription("Turn left"))
	RegisterName(wire.KindMovement, "turn_right", WithDescription("Turn right"))
	RegisterName(wire.KindMovement, "walk", WithDescription("Start walking"))
	RegisterName(wire.KindMovement, "stop", WithDescription("Stop moving"))

	RegisterName(wire.KindSystem, "stand_up", WithDescription("Stand up from sitting position"))
	RegisterName(wire.KindSystem, "sit_down", WithDescription("Sit down"))
	RegisterName(wire.KindSystem, "stop", WithDescription("Stop all actions"))
	RegisterName(wire.KindSystem, "reset", WithDescription("Reset robot to home position"))
	RegisterName(wire.KindSystem, "emergency_stop", WithDescription("Emergency stop (E-stop)"), WithCritical())
	RegisterName(wire.KindSystem, "power_off", WithDescription("Power off the robot"))
	RegisterName(wire.KindSystem, "power_on", WithDescription("Power on the robot"))
}
