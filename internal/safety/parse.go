package safety

import (
	"encoding/json"
	"fmt"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// Wire payloads for the kill_switch:state and circuit_breaker:state channels.
// All timestamps are RFC 3339 strings; an empty string means the upstream
// never recorded the transition.
type killSwitchPayload struct {
	State        string `json:"state"`
	EngagedAt    string `json:"engagedAt"`
	DisengagedAt string `json:"disengagedAt"`
	Reason       string `json:"reason"`
}

type circuitBreakerPayload struct {
	State     string `json:"state"`
	TrippedAt string `json:"trippedAt"`
	ResetAt   string `json:"resetAt"`
	Reason    string `json:"reason"`
}

// ParseKillSwitchState classifies a kill_switch:state payload. It never
// fails: every defect maps to UNSAFE with a diagnostic reason.
func ParseKillSwitchState(raw []byte) model.SafetyState {
	var p killSwitchPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.UnsafeState(enum.SafetyKindKillSwitch, fmt.Sprintf("malformed kill_switch payload: %v", err))
	}

	switch p.State {
	case "ACTIVE":
		// trading active; must prove when the switch was last disengaged
		return classifySafe(enum.SafetyKindKillSwitch, p.DisengagedAt, p.EngagedAt, p.Reason)
	case "ENGAGED":
		s := model.UnsafeState(enum.SafetyKindKillSwitch, confirmedReason("kill switch engaged", p.Reason))
		s.Confirmed = true
		s.ChangedAt, _ = parseTimestamp(p.EngagedAt)
		s.PriorChangedAt, _ = parseTimestamp(p.DisengagedAt)
		return s
	default:
		return model.UnsafeState(enum.SafetyKindKillSwitch, fmt.Sprintf("unknown kill_switch state %q", p.State))
	}
}

// ParseCircuitBreakerState classifies a circuit_breaker:state payload.
func ParseCircuitBreakerState(raw []byte) model.SafetyState {
	var p circuitBreakerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.UnsafeState(enum.SafetyKindCircuitBreaker, fmt.Sprintf("malformed circuit_breaker payload: %v", err))
	}

	switch p.State {
	case "OPEN":
		return classifySafe(enum.SafetyKindCircuitBreaker, p.ResetAt, p.TrippedAt, p.Reason)
	case "TRIPPED":
		s := model.UnsafeState(enum.SafetyKindCircuitBreaker, confirmedReason("circuit breaker tripped", p.Reason))
		s.Confirmed = true
		s.ChangedAt, _ = parseTimestamp(p.TrippedAt)
		s.PriorChangedAt, _ = parseTimestamp(p.ResetAt)
		return s
	case "QUIET_PERIOD":
		s := model.SafetyState{
			Kind:      enum.SafetyKindCircuitBreaker,
			Class:     enum.SafetyClassTransitional,
			Reason:    confirmedReason("circuit breaker in quiet period", p.Reason),
			Confirmed: true,
		}
		s.ChangedAt, _ = parseTimestamp(p.ResetAt)
		s.PriorChangedAt, _ = parseTimestamp(p.TrippedAt)
		return s
	default:
		return model.UnsafeState(enum.SafetyKindCircuitBreaker, fmt.Sprintf("unknown circuit_breaker state %q", p.State))
	}
}

// classifySafe accepts a SAFE claim only when the transition timestamp parses
// validly, or when both timestamps are absent (never-changed initial state).
// Everything else downgrades to UNSAFE.
func classifySafe(kind enum.SafetyKind, changedAt, priorChangedAt, reason string) model.SafetyState {
	if changedAt == "" && priorChangedAt == "" {
		return model.SafetyState{Kind: kind, Class: enum.SafetyClassSafe, Reason: reason, Confirmed: true}
	}

	ts, ok := parseTimestamp(changedAt)
	if !ok {
		return model.UnsafeState(kind, fmt.Sprintf("%s claims safe without a valid transition timestamp %q", kind, changedAt))
	}

	prior, _ := parseTimestamp(priorChangedAt)
	return model.SafetyState{
		Kind:           kind,
		Class:          enum.SafetyClassSafe,
		ChangedAt:      ts,
		PriorChangedAt: prior,
		Reason:         reason,
		Confirmed:      true,
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}

func confirmedReason(base, upstream string) string {
	if upstream == "" {
		return base
	}
	return base + ": " + upstream
}
