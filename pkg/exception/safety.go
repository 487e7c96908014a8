package exception

import "errors"

// Safety blocks. The "unverifiable" variants mean the state could not be
// confirmed in time, as opposed to a confirmed unsafe state; operators retry
// the former and investigate the latter.
var (
	ErrKillSwitchEngaged          = errors.New("safety: kill switch engaged")
	ErrKillSwitchUnverifiable     = errors.New("safety: kill switch state could not be verified")
	ErrCircuitBreakerTripped      = errors.New("safety: circuit breaker tripped")
	ErrCircuitBreakerUnverifiable = errors.New("safety: circuit breaker state could not be verified")
	ErrSafetyNotInitialized       = errors.New("safety: tracker not initialized")
	ErrConnectionNotUsable        = errors.New("safety: connection not usable for order dispatch")
)
