// ABOUTME: Tests for the liveness evaluator
// ABOUTME: Covers timeout boundaries, declared status fallback, and parsing

package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeout := 60 * time.Second

	tests := []struct {
		name       string
		lastActive time.Time
		declared   string
		want       Status
	}{
		{"fresh online", now.Add(-30 * time.Second), "online", StatusOnline},
		{"fresh busy", now.Add(-time.Second), "busy", StatusBusy},
		{"fresh idle mixed case", now, "Idle", StatusIdle},
		{"fresh error", now.Add(-59 * time.Second), "error", StatusError},
		{"exactly at timeout stays declared", now.Add(-timeout), "online", StatusOnline},
		{"just past timeout", now.Add(-timeout - time.Nanosecond), "online", StatusOffline},
		{"stale busy", now.Add(-90 * time.Second), "busy", StatusOffline},
		{"never declared", now, "", StatusOffline},
		{"unrecognized declared", now, "sleeping", StatusOffline},
		{"never seen", time.Time{}, "online", StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveStatus(tt.lastActive, tt.declared, now, timeout)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveStatus_ZeroTimeoutUsesDefault(t *testing.T) {
	now := time.Now()

	assert.Equal(t, StatusOnline, EffectiveStatus(now.Add(-59*time.Second), "online", now, 0))
	assert.Equal(t, StatusOffline, EffectiveStatus(now.Add(-61*time.Second), "online", now, 0))
}

func TestEffectiveStatus_Deterministic(t *testing.T) {
	now := time.Now()
	last := now.Add(-10 * time.Second)

	first := EffectiveStatus(last, "busy", now, time.Minute)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, EffectiveStatus(last, "busy", now, time.Minute))
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range All {
		got, ok := ParseStatus(string(s))
		assert.True(t, ok, "status %q should parse", s)
		assert.Equal(t, s, got)
	}

	got, ok := ParseStatus("  BUSY ")
	assert.True(t, ok)
	assert.Equal(t, StatusBusy, got)

	got, ok = ParseStatus("napping")
	assert.False(t, ok)
	assert.Equal(t, StatusOffline, got)
}
