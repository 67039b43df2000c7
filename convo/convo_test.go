package convo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AddAndBuild(t *testing.T) {
	m := New(10)
	m.AddUser("hello")
	m.AddAssistant("hi there")
	m.AddUser("wave please")

	prompt := m.BuildPrompt()
	require.Len(t, prompt.History, 3)
	assert.Equal(t, RoleUser, prompt.History[0].Role)
	assert.Equal(t, "hello", prompt.History[0].Content)
	assert.Equal(t, RoleAssistant, prompt.History[1].Role)
	assert.Equal(t, "wave please", prompt.LastUser())
	assert.False(t, prompt.History[0].At.IsZero())
}

func TestManager_TrimsToMaxTurns(t *testing.T) {
	m := New(3)
	for i := 0; i < 5; i++ {
		m.AddUser(fmt.Sprintf("turn-%d", i))
	}

	prompt := m.BuildPrompt()
	require.Len(t, prompt.History, 3)
	assert.Equal(t, "turn-2", prompt.History[0].Content)
	assert.Equal(t, "turn-4", prompt.History[2].Content)
}

func TestManager_DefaultMaxTurns(t *testing.T) {
	m := New(0)
	for i := 0; i < DefaultMaxTurns+5; i++ {
		m.AddUser("x")
	}
	assert.Equal(t, DefaultMaxTurns, m.Len())
}

func TestManager_SceneAndState(t *testing.T) {
	m := New(5)

	scene := map[string]string{"object": "red cup"}
	m.SetScene(scene)
	m.SetRobotState(map[string]string{"posture": "standing"})

	// Later mutation of the caller's map must not leak in.
	scene["object"] = "blue cup"

	prompt := m.BuildPrompt()
	assert.Equal(t, "red cup", prompt.Scene["object"])
	assert.Equal(t, "standing", prompt.RobotState["posture"])

	// And mutating the snapshot must not touch the manager.
	prompt.Scene["object"] = "green cup"
	assert.Equal(t, "red cup", m.BuildPrompt().Scene["object"])
}

func TestManager_EmptyPrompt(t *testing.T) {
	prompt := New(5).BuildPrompt()
	assert.Empty(t, prompt.History)
	assert.Empty(t, prompt.Scene)
	assert.Empty(t, prompt.RobotState)
	assert.Equal(t, "", prompt.LastUser())
}

func TestManager_Concurrent(t *testing.T) {
	m := New(8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.AddUser(fmt.Sprintf("u-%d-%d", n, j))
				m.AddAssistant("ok")
				_ = m.BuildPrompt()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, m.Len())
}
