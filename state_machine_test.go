package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// fakeIdentityStates echoes stored states with the version bumped, or
// fails with err.
type fakeIdentityStates struct {
	err    error
	stored []*identity.IdentityState
}

func (f *fakeIdentityStates) Load(context.Context, string, identity.Scope) (*identity.IdentityState, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdentityStates) LoadTx(context.Context, bun.IDB, string, identity.Scope) (*identity.IdentityState, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdentityStates) Store(_ context.Context, state *identity.IdentityState) (*identity.IdentityState, error) {
	f.stored = append(f.stored, state.Clone())
	if f.err != nil {
		return nil, f.err
	}
	out := state.Clone()
	out.Version++
	return out, nil
}

func (f *fakeIdentityStates) StoreTx(ctx context.Context, _ bun.IDB, state *identity.IdentityState) (*identity.IdentityState, error) {
	return f.Store(ctx, state)
}

func TestLockMachineLockSetsUnlockTime(t *testing.T) {
	states := &fakeIdentityStates{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var events []identity.ActivityEvent
	sm := identity.NewAccountLockMachine(states,
		identity.WithLockMachineClock(func() time.Time { return now }),
		identity.WithLockMachineActivitySink(identity.ActivitySinkFunc(func(_ context.Context, e identity.ActivityEvent) error {
			events = append(events, e)
			return nil
		})),
	)

	state := &identity.IdentityState{ID: uuid.New(), Username: "alice", TenantID: 1, Version: 4}

	got, err := sm.Transition(context.Background(), identity.ActorRef{}, state, identity.LockStatusLocked,
		identity.WithUnlockAfter(15*time.Minute),
		identity.WithTransitionReason("too many attempts"),
	)
	require.NoError(t, err)
	assert.Same(t, state, got)
	assert.True(t, state.Locked)
	assert.Equal(t, now.Add(15*time.Minute), state.UnlockTime)
	assert.Equal(t, int64(5), state.Version)
	assert.Equal(t, identity.LockStatusLocked, sm.CurrentStatus(state))
	require.Len(t, states.stored, 1)

	require.Len(t, events, 1)
	assert.Equal(t, identity.ActivityEventAccountLocked, events[0].EventType)
	assert.Equal(t, identity.LockStatusUnlocked, events[0].FromStatus)
	assert.Equal(t, identity.LockStatusLocked, events[0].ToStatus)
	assert.Equal(t, "system", events[0].Actor.Type)
	assert.Equal(t, now, events[0].OccurredAt)
	assert.Equal(t, "too many attempts", events[0].Metadata["reason"])
	assert.Equal(t, now.Add(15*time.Minute), events[0].Metadata["unlock_time"])
}

func TestLockMachineLockAgainRefreshesUnlockTime(t *testing.T) {
	states := &fakeIdentityStates{}
	sm := identity.NewAccountLockMachine(states)

	until := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	state := &identity.IdentityState{Username: "alice", Locked: true}

	_, err := sm.Transition(context.Background(), identity.ActorRef{}, state, identity.LockStatusLocked, identity.WithUnlockTime(until))
	require.NoError(t, err)
	require.Len(t, states.stored, 1)
	assert.Equal(t, until, state.UnlockTime)
}

func TestLockMachineUnlockClearsUnlockTime(t *testing.T) {
	states := &fakeIdentityStates{}
	sm := identity.NewAccountLockMachine(states)

	state := &identity.IdentityState{
		ID:         uuid.New(),
		Username:   "alice",
		Locked:     true,
		UnlockTime: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}

	_, err := sm.Transition(context.Background(), identity.ActorRef{ID: "admin", Type: "user"}, state, identity.LockStatusUnlocked)
	require.NoError(t, err)
	assert.False(t, state.Locked)
	assert.True(t, state.UnlockTime.IsZero())
	assert.Equal(t, identity.LockStatusUnlocked, sm.CurrentStatus(state))
}

func TestLockMachineRejectsInvalidTargets(t *testing.T) {
	tests := []struct {
		name   string
		state  *identity.IdentityState
		target identity.LockStatus
	}{
		{name: "nil state", state: nil, target: identity.LockStatusLocked},
		{name: "unknown target", state: &identity.IdentityState{Username: "alice"}, target: "frozen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := &fakeIdentityStates{}
			sm := identity.NewAccountLockMachine(states)

			_, err := sm.Transition(context.Background(), identity.ActorRef{}, tt.state, tt.target)
			require.Error(t, err)
			assert.True(t, identity.IsKind(err, identity.ErrInvalidTransition))
			assert.Empty(t, states.stored)
		})
	}
}

func TestLockMachineBeforeHookAborts(t *testing.T) {
	states := &fakeIdentityStates{}
	sm := identity.NewAccountLockMachine(states)
	state := &identity.IdentityState{Username: "alice"}
	hookErr := errors.New("policy says no")

	_, err := sm.Transition(context.Background(), identity.ActorRef{}, state, identity.LockStatusLocked,
		identity.WithBeforeTransitionHook(func(_ context.Context, tc identity.TransitionContext) error {
			assert.Equal(t, identity.LockStatusUnlocked, tc.From)
			assert.Equal(t, identity.LockStatusLocked, tc.To)
			return hookErr
		}),
	)
	require.ErrorIs(t, err, hookErr)
	assert.False(t, state.Locked)
	assert.Empty(t, states.stored)
}

func TestLockMachineStoreFailureLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		kind     *goerrors.Error
	}{
		{name: "opaque failure", storeErr: errors.New("disk full"), kind: identity.ErrUpstreamStore},
		{name: "conflict passes through", storeErr: identity.ErrConcurrentModification, kind: identity.ErrConcurrentModification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := &fakeIdentityStates{err: tt.storeErr}
			logger := &captureLogger{}
			sm := identity.NewAccountLockMachine(states, identity.WithLockMachineLogger(logger))
			state := &identity.IdentityState{Username: "alice", Version: 2}

			afterCalled := false
			_, err := sm.Transition(context.Background(), identity.ActorRef{}, state, identity.LockStatusLocked,
				identity.WithAfterTransitionHook(func(context.Context, identity.TransitionContext) error {
					afterCalled = true
					return nil
				}),
			)
			require.Error(t, err)
			assert.True(t, identity.IsKind(err, tt.kind))
			assert.False(t, state.Locked)
			assert.Equal(t, int64(2), state.Version)
			assert.False(t, afterCalled)
		})
	}
}

func TestLockMachineSinkFailureIsLogged(t *testing.T) {
	logger := &captureLogger{}
	sm := identity.NewAccountLockMachine(&fakeIdentityStates{},
		identity.WithLockMachineLogger(logger),
		identity.WithLockMachineActivitySink(identity.ActivitySinkFunc(func(context.Context, identity.ActivityEvent) error {
			return errors.New("sink down")
		})),
	)

	state := &identity.IdentityState{Username: "alice"}
	_, err := sm.Transition(context.Background(), identity.ActorRef{}, state, identity.LockStatusLocked)
	require.NoError(t, err)
	assert.Contains(t, logger.levels(), "warn")
}
