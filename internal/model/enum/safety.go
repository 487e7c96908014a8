package enum

// SafetyClass is the classified view of a kill-switch or circuit-breaker payload.
// Anything that is not provably safe classifies as unsafe.
type SafetyClass uint8

const (
	_safety_class_beg SafetyClass = iota
	SafetyClassSafe
	SafetyClassUnsafe
	SafetyClassTransitional
	_safety_class_end
)

func (c SafetyClass) IsAvailable() bool {
	return c > _safety_class_beg && c < _safety_class_end
}

func (c SafetyClass) String() string {
	switch c {
	case SafetyClassSafe:
		return "SAFE"
	case SafetyClassUnsafe:
		return "UNSAFE"
	case SafetyClassTransitional:
		return "TRANSITIONAL"
	default:
		return "UNKNOWN"
	}
}

// Blocking reports whether the class blocks order submission.
// Only a validated SAFE is non-blocking; the zero value blocks.
func (c SafetyClass) Blocking() bool {
	return c != SafetyClassSafe
}

// SafetyKind identifies which safety switch a state belongs to.
type SafetyKind uint8

const (
	_safety_kind_beg SafetyKind = iota
	SafetyKindKillSwitch
	SafetyKindCircuitBreaker
	_safety_kind_end
)

func (k SafetyKind) IsAvailable() bool {
	return k > _safety_kind_beg && k < _safety_kind_end
}

func (k SafetyKind) String() string {
	switch k {
	case SafetyKindKillSwitch:
		return "kill_switch"
	case SafetyKindCircuitBreaker:
		return "circuit_breaker"
	default:
		return "unknown"
	}
}
