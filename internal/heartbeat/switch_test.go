// ABOUTME: Tests for the heartbeat toggle switch
// ABOUTME: Uses temp files for the shared toggle

package heartbeat

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitch_MissingFileIsOff(t *testing.T) {
	s := NewSwitch(filepath.Join(t.TempDir(), ".heartbeat-active"))

	active, err := s.Active()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSwitch_Toggle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared", ".heartbeat-active")
	s := NewSwitch(path)

	active, err := s.Toggle()
	require.NoError(t, err)
	assert.True(t, active)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "on\n", string(data))

	active, err = s.Toggle()
	require.NoError(t, err)
	assert.False(t, active)

	active, err = s.Active()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSwitch_ReadsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".heartbeat-active")
	s := NewSwitch(path)

	for content, want := range map[string]bool{
		"on\n":    true,
		"  ON  ":  true,
		"off\n":   false,
		"garbage": false,
		"":        false,
	} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		active, err := s.Active()
		require.NoError(t, err)
		assert.Equal(t, want, active, "content %q", content)
	}
}

func TestSwitch_Set(t *testing.T) {
	s := NewSwitch(filepath.Join(t.TempDir(), ".heartbeat-active"))

	require.NoError(t, s.Set(true))
	active, _ := s.Active()
	assert.True(t, active)

	require.NoError(t, s.Set(false))
	active, _ = s.Active()
	assert.False(t, active)
}

func TestSwitch_ConcurrentToggles(t *testing.T) {
	s := NewSwitch(filepath.Join(t.TempDir(), ".heartbeat-active"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Toggle()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// An even number of flips from off ends off.
	active, err := s.Active()
	require.NoError(t, err)
	assert.False(t, active)
}
