// ABOUTME: File-backed on/off switch telling agents whether to send heartbeats
// ABOUTME: The file holds "on" or "off"; a missing file reads as off

package heartbeat

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Switch reads and flips the shared heartbeat toggle file.
// The file is shared with agents on the same host, so every call reads it
// afresh rather than caching the state.
type Switch struct {
	mu   sync.Mutex
	path string
}

// NewSwitch returns a switch backed by path. The file need not exist.
func NewSwitch(path string) *Switch {
	return &Switch{path: path}
}

// Path returns the toggle file location.
func (s *Switch) Path() string {
	return s.path
}

// Active reports whether heartbeats are switched on.
func (s *Switch) Active() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Toggle flips the switch and returns the new state.
func (s *Switch) Toggle() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.readLocked()
	if err != nil {
		return false, err
	}
	if err := s.writeLocked(!active); err != nil {
		return active, err
	}
	return !active, nil
}

// Set forces the switch to the given state.
func (s *Switch) Set(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(active)
}

func (s *Switch) readLocked() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading heartbeat toggle: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(string(data))) == "on", nil
}

func (s *Switch) writeLocked(active bool) error {
	state := "off"
	if active {
		state = "on"
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating toggle directory: %w", err)
	}
	// Write to a temp file and rename so agents never read a partial file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(state+"\n"), 0644); err != nil {
		return fmt.Errorf("writing heartbeat toggle: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing heartbeat toggle: %w", err)
	}
	return nil
}
