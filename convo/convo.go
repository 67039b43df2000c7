// Package convo keeps the short conversational memory that conditions
// inference replies: the most recent turns, the current scene, and the
// robot's physical state.
package convo

import (
	"sync"
	"time"
)

// DefaultMaxTurns bounds the history when no explicit limit is given.
const DefaultMaxTurns = 15

// Role identifies a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the conversation history.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"time"`
}

// Prompt is the contextual snapshot handed to an inferencer. All fields
// are copies; mutating them does not touch the manager.
type Prompt struct {
	History    []Turn            `json:"history"`
	Scene      map[string]string `json:"scene,omitempty"`
	RobotState map[string]string `json:"robot_state,omitempty"`
}

// LastUser returns the content of the most recent user turn, or "".
func (p Prompt) LastUser() string {
	for i := len(p.History) - 1; i >= 0; i-- {
		if p.History[i].Role == RoleUser {
			return p.History[i].Content
		}
	}
	return ""
}

// Manager holds the rolling conversation state. Safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	maxTurns   int
	history    []Turn
	scene      map[string]string
	robotState map[string]string
}

// New creates a Manager keeping at most maxTurns turns. A non-positive
// limit falls back to DefaultMaxTurns.
func New(maxTurns int) *Manager {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Manager{maxTurns: maxTurns}
}

// AddUser appends a user turn.
func (m *Manager) AddUser(text string) {
	m.add(RoleUser, text)
}

// AddAssistant appends an assistant turn.
func (m *Manager) AddAssistant(text string) {
	m.add(RoleAssistant, text)
}

func (m *Manager) add(role Role, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, Turn{Role: role, Content: text, At: time.Now()})
	if len(m.history) > m.maxTurns {
		// Copy rather than reslice so dropped turns can be collected.
		trimmed := make([]Turn, m.maxTurns)
		copy(trimmed, m.history[len(m.history)-m.maxTurns:])
		m.history = trimmed
	}
}

// SetScene replaces the scene snapshot, typically from the camera or a
// scene-describing inference.
func (m *Manager) SetScene(scene map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene = copyMap(scene)
}

// SetRobotState replaces the robot-state snapshot (posture, gesture in
// progress, battery and the like).
func (m *Manager) SetRobotState(state map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.robotState = copyMap(state)
}

// BuildPrompt snapshots the current context.
func (m *Manager) BuildPrompt() Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]Turn, len(m.history))
	copy(history, m.history)

	return Prompt{
		History:    history,
		Scene:      copyMap(m.scene),
		RobotState: copyMap(m.robotState),
	}
}

// Len returns the number of turns currently held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
