package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model/enum"
)

func TestParseKillSwitchState(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		class     enum.SafetyClass
		confirmed bool
	}{
		{
			name:      "active with valid disengage timestamp",
			raw:       `{"state":"ACTIVE","engagedAt":"2026-01-02T10:00:00Z","disengagedAt":"2026-01-02T11:00:00Z"}`,
			class:     enum.SafetyClassSafe,
			confirmed: true,
		},
		{
			name:      "active never changed",
			raw:       `{"state":"ACTIVE"}`,
			class:     enum.SafetyClassSafe,
			confirmed: true,
		},
		{
			name:  "active missing disengage timestamp with prior engage",
			raw:   `{"state":"ACTIVE","engagedAt":"2026-01-02T10:00:00Z"}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:  "active with unparsable timestamp",
			raw:   `{"state":"ACTIVE","disengagedAt":"yesterday-ish"}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:      "engaged",
			raw:       `{"state":"ENGAGED","engagedAt":"2026-01-02T10:00:00Z","reason":"manual halt"}`,
			class:     enum.SafetyClassUnsafe,
			confirmed: true,
		},
		{
			name:  "unknown state value",
			raw:   `{"state":"PAUSED"}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:  "wrong payload type",
			raw:   `{"state":["ACTIVE"]}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:  "not json",
			raw:   `<html>`,
			class: enum.SafetyClassUnsafe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := ParseKillSwitchState([]byte(tt.raw))
			assert.Equal(t, enum.SafetyKindKillSwitch, state.Kind)
			assert.Equal(t, tt.class, state.Class)
			assert.Equal(t, tt.confirmed, state.Confirmed)
			if state.Class != enum.SafetyClassSafe {
				assert.NotEmpty(t, state.Reason)
				assert.True(t, state.Blocking())
			}
		})
	}
}

func TestParseKillSwitchStateTimestamps(t *testing.T) {
	raw := `{"state":"ACTIVE","engagedAt":"2026-01-02T10:00:00Z","disengagedAt":"2026-01-02T11:00:00.5Z"}`
	state := ParseKillSwitchState([]byte(raw))
	require.Equal(t, enum.SafetyClassSafe, state.Class)
	assert.Equal(t, time.Date(2026, 1, 2, 11, 0, 0, 500000000, time.UTC), state.ChangedAt.UTC())
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), state.PriorChangedAt.UTC())
}

func TestParseCircuitBreakerState(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		class enum.SafetyClass
	}{
		{
			name:  "open with valid reset timestamp",
			raw:   `{"state":"OPEN","trippedAt":"2026-01-02T10:00:00Z","resetAt":"2026-01-02T10:05:00Z"}`,
			class: enum.SafetyClassSafe,
		},
		{
			name:  "open never tripped",
			raw:   `{"state":"OPEN"}`,
			class: enum.SafetyClassSafe,
		},
		{
			name:  "open missing reset timestamp with prior trip",
			raw:   `{"state":"OPEN","trippedAt":"2026-01-02T10:00:00Z"}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:  "tripped",
			raw:   `{"state":"TRIPPED","trippedAt":"2026-01-02T10:00:00Z","reason":"volatility"}`,
			class: enum.SafetyClassUnsafe,
		},
		{
			name:  "quiet period blocks like unsafe",
			raw:   `{"state":"QUIET_PERIOD","resetAt":"2026-01-02T10:05:00Z"}`,
			class: enum.SafetyClassTransitional,
		},
		{
			name:  "unknown state value",
			raw:   `{"state":"HALF_OPEN"}`,
			class: enum.SafetyClassUnsafe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := ParseCircuitBreakerState([]byte(tt.raw))
			assert.Equal(t, enum.SafetyKindCircuitBreaker, state.Kind)
			assert.Equal(t, tt.class, state.Class)
			if tt.class != enum.SafetyClassSafe {
				assert.True(t, state.Blocking(), "non-safe classes must block")
			}
		})
	}
}
