package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "main/internal/errors"
	"main/internal/model/enum"
	"main/pkg/exception"
)

type fakeSource struct {
	ks, cb       []byte
	ksErr, cbErr error
	delay        time.Duration
}

func (f *fakeSource) FetchKillSwitch(ctx context.Context) ([]byte, error) {
	return f.respond(ctx, f.ks, f.ksErr)
}

func (f *fakeSource) FetchCircuitBreaker(ctx context.Context) ([]byte, error) {
	return f.respond(ctx, f.cb, f.cbErr)
}

func (f *fakeSource) respond(ctx context.Context, raw []byte, err error) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

var (
	rawActive = []byte(`{"state":"ACTIVE"}`)
	rawOpen   = []byte(`{"state":"OPEN"}`)
)

func TestTrackerBlocksBeforeInit(t *testing.T) {
	tracker := NewTracker(&fakeSource{ks: rawActive, cb: rawOpen}, 0, 0)

	ks, cb, initialized := tracker.Cached()
	assert.False(t, initialized)
	assert.True(t, ks.Blocking())
	assert.True(t, cb.Blocking())

	err := tracker.CheckCached()
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrSafetyNotInitialized)
}

func TestTrackerInit(t *testing.T) {
	tracker := NewTracker(&fakeSource{ks: rawActive, cb: rawOpen}, 0, 0)
	require.NoError(t, tracker.Init(context.Background()))

	ks, cb, initialized := tracker.Cached()
	assert.True(t, initialized)
	assert.False(t, ks.Blocking())
	assert.False(t, cb.Blocking())
	assert.NoError(t, tracker.CheckCached())
}

func TestTrackerFetchErrorIsUnsafe(t *testing.T) {
	src := &fakeSource{ks: rawActive, cb: rawOpen, cbErr: errors.New("mesh partition")}
	tracker := NewTracker(src, 0, 0)

	ks, cb, err := tracker.FetchAuthoritative(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrCircuitBreakerUnverifiable)
	assert.Equal(t, ierr.KindTransientIO, ierr.KindOf(err))
	assert.False(t, ks.Blocking())
	assert.True(t, cb.Blocking())
	assert.False(t, cb.Confirmed, "fetch failure is unverifiable, not confirmed unsafe")
}

func TestTrackerFetchTimeout(t *testing.T) {
	src := &fakeSource{ks: rawActive, cb: rawOpen, delay: 200 * time.Millisecond}
	tracker := NewTracker(src, 20*time.Millisecond, 20*time.Millisecond)

	ks, cb, err := tracker.FetchAuthoritative(context.Background())
	require.Error(t, err)
	assert.True(t, ks.Blocking())
	assert.True(t, cb.Blocking())
}

func TestTrackerApplyPush(t *testing.T) {
	tracker := NewTracker(&fakeSource{ks: rawActive, cb: rawOpen}, 0, 0)
	require.NoError(t, tracker.Init(context.Background()))

	state := tracker.ApplyPush(enum.SafetyKindKillSwitch, []byte(`{"state":"ENGAGED","engagedAt":"2026-01-02T10:00:00Z"}`))
	assert.True(t, state.Blocking())

	err := tracker.CheckCached()
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrKillSwitchEngaged)
	assert.Equal(t, ierr.KindSafetyBlocked, ierr.KindOf(err))

	// a structurally broken push downgrades instead of being ignored
	state = tracker.ApplyPush(enum.SafetyKindCircuitBreaker, []byte(`{"state":42}`))
	assert.True(t, state.Blocking())
	assert.False(t, state.Confirmed)
}

func TestCheckStatesOrder(t *testing.T) {
	ks := ParseKillSwitchState(rawActive)
	cb := ParseCircuitBreakerState([]byte(`{"state":"QUIET_PERIOD"}`))
	err := CheckStates(ks, cb)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrCircuitBreakerTripped)
}
