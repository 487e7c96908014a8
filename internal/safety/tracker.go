package safety

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	ierr "main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

const (
	// DefaultSubmitFetchTimeout bounds authoritative reads on the submission path.
	DefaultSubmitFetchTimeout = 500 * time.Millisecond
	// DefaultInitFetchTimeout bounds authoritative reads during session init.
	DefaultInitFetchTimeout = 2 * time.Second
)

// Source is the authoritative read side for safety state, implemented by the
// REST collaborator. It returns raw channel-shaped payloads so push and pull
// share one parser.
type Source interface {
	FetchKillSwitch(ctx context.Context) ([]byte, error)
	FetchCircuitBreaker(ctx context.Context) ([]byte, error)
}

// Tracker maintains the fail-closed view of kill-switch and circuit-breaker
// state. Until Init completes both switches read as UNSAFE.
type Tracker struct {
	source        Source
	submitTimeout time.Duration
	initTimeout   time.Duration

	mu          sync.RWMutex
	killSwitch  model.SafetyState
	circuit     model.SafetyState
	initialized bool
}

// NewTracker creates a tracker whose cached view starts blocked.
func NewTracker(source Source, submitTimeout, initTimeout time.Duration) *Tracker {
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitFetchTimeout
	}
	if initTimeout <= 0 {
		initTimeout = DefaultInitFetchTimeout
	}
	return &Tracker{
		source:        source,
		submitTimeout: submitTimeout,
		initTimeout:   initTimeout,
		killSwitch:    model.UnsafeState(enum.SafetyKindKillSwitch, "kill switch state not yet fetched"),
		circuit:       model.UnsafeState(enum.SafetyKindCircuitBreaker, "circuit breaker state not yet fetched"),
	}
}

// ApplyPush classifies a pushed payload for the given switch and replaces the
// cached state. It never rejects input; defects classify as UNSAFE.
func (t *Tracker) ApplyPush(kind enum.SafetyKind, raw []byte) model.SafetyState {
	var state model.SafetyState
	switch kind {
	case enum.SafetyKindKillSwitch:
		state = ParseKillSwitchState(raw)
	case enum.SafetyKindCircuitBreaker:
		state = ParseCircuitBreakerState(raw)
	default:
		state = model.UnsafeState(kind, "push for unknown safety switch")
	}

	t.mu.Lock()
	t.store(state)
	t.mu.Unlock()

	if state.Blocking() {
		logs.Infof("safety push blocked %s: %s", state.Kind, state.Reason)
	}
	return state
}

// Init performs the session-start authoritative fetch for both switches.
// Consumers stay blocked until it has run; a fetch failure leaves the
// corresponding switch UNSAFE but still marks the tracker initialized.
func (t *Tracker) Init(ctx context.Context) error {
	_, _, err := t.fetch(ctx, t.initTimeout)
	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()
	return err
}

// FetchAuthoritative re-reads both switches from the source of truth under
// the submission-time budget. Any error means the returned states are UNSAFE;
// callers must treat the error as a block, never as "unknown".
func (t *Tracker) FetchAuthoritative(ctx context.Context) (ks, cb model.SafetyState, err error) {
	return t.fetch(ctx, t.submitTimeout)
}

func (t *Tracker) fetch(ctx context.Context, timeout time.Duration) (ks, cb model.SafetyState, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		wg           sync.WaitGroup
		ksErr, cbErr error
		ksRaw, cbRaw []byte
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ksRaw, ksErr = t.source.FetchKillSwitch(ctx)
	}()
	go func() {
		defer wg.Done()
		cbRaw, cbErr = t.source.FetchCircuitBreaker(ctx)
	}()
	wg.Wait()

	if ksErr != nil {
		ks = model.UnsafeState(enum.SafetyKindKillSwitch, "kill switch fetch failed: "+ksErr.Error())
		err = ierr.Transient(exception.ErrKillSwitchUnverifiable, ksErr.Error())
	} else {
		ks = ParseKillSwitchState(ksRaw)
	}
	if cbErr != nil {
		cb = model.UnsafeState(enum.SafetyKindCircuitBreaker, "circuit breaker fetch failed: "+cbErr.Error())
		if err == nil {
			err = ierr.Transient(exception.ErrCircuitBreakerUnverifiable, cbErr.Error())
		}
	} else {
		cb = ParseCircuitBreakerState(cbRaw)
	}

	t.mu.Lock()
	t.store(ks)
	t.store(cb)
	t.mu.Unlock()
	return ks, cb, err
}

// Cached returns the current view without touching the network.
func (t *Tracker) Cached() (ks, cb model.SafetyState, initialized bool) {
	t.mu.RLock()
	ks, cb, initialized = t.killSwitch, t.circuit, t.initialized
	t.mu.RUnlock()
	return ks, cb, initialized
}

// CheckCached validates the cached view for order entry.
func (t *Tracker) CheckCached() error {
	ks, cb, initialized := t.Cached()
	if !initialized {
		return ierr.Blocked(exception.ErrSafetyNotInitialized, "session init fetch has not completed")
	}
	return CheckStates(ks, cb)
}

// CheckStates maps a pair of switch states to a typed block error, or nil
// when both allow trading. The error distinguishes confirmed unsafe states
// from unverifiable ones.
func CheckStates(ks, cb model.SafetyState) error {
	if ks.Blocking() {
		if ks.Confirmed {
			return ierr.Blocked(exception.ErrKillSwitchEngaged, ks.Reason)
		}
		return ierr.Blocked(exception.ErrKillSwitchUnverifiable, ks.Reason)
	}
	if cb.Blocking() {
		if cb.Confirmed {
			return ierr.Blocked(exception.ErrCircuitBreakerTripped, cb.Reason)
		}
		return ierr.Blocked(exception.ErrCircuitBreakerUnverifiable, cb.Reason)
	}
	return nil
}

// caller holds t.mu
func (t *Tracker) store(state model.SafetyState) {
	switch state.Kind {
	case enum.SafetyKindKillSwitch:
		t.killSwitch = state
	case enum.SafetyKindCircuitBreaker:
		t.circuit = state
	}
}
