package model

import (
	"time"

	"main/internal/model/enum"
)

// SafetyState is the classified view of one safety switch. ChangedAt and
// PriorChangedAt keep their zero value when the upstream payload omitted them.
type SafetyState struct {
	Kind           enum.SafetyKind
	Class          enum.SafetyClass
	ChangedAt      time.Time
	PriorChangedAt time.Time
	Reason         string

	// Confirmed distinguishes an upstream-reported unsafe state from a state
	// that is unsafe only because it could not be verified. Both block, but
	// the operator guidance differs.
	Confirmed bool
}

// Blocking reports whether this state blocks order submission.
// TRANSITIONAL blocks identically to UNSAFE.
func (s SafetyState) Blocking() bool {
	return s.Class.Blocking()
}

// UnsafeState builds an UNSAFE state carrying a diagnostic reason.
func UnsafeState(kind enum.SafetyKind, reason string) SafetyState {
	return SafetyState{Kind: kind, Class: enum.SafetyClassUnsafe, Reason: reason}
}
