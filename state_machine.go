package identity

import (
	"context"
	"time"
)

// LockStatus is the lock state an account can be moved to.
type LockStatus string

const (
	LockStatusLocked   LockStatus = "locked"
	LockStatusUnlocked LockStatus = "unlocked"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	State *IdentityState
	From  LockStatus
	To    LockStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition. A failing before
// hook aborts the transition with nothing persisted.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountLockMachine moves identity states between locked and unlocked.
type AccountLockMachine interface {
	Transition(ctx context.Context, actor ActorRef, state *IdentityState, target LockStatus, opts ...TransitionOption) (*IdentityState, error)
	CurrentStatus(state *IdentityState) LockStatus
}

// LockMachineOption customizes lock machine construction.
type LockMachineOption func(*accountLockMachine)

// WithLockMachineClock injects a custom clock (useful for tests).
func WithLockMachineClock(clock func() time.Time) LockMachineOption {
	return func(sm *accountLockMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithLockMachineActivitySink sets the ActivitySink used to publish lock events.
func WithLockMachineActivitySink(sink ActivitySink) LockMachineOption {
	return func(sm *accountLockMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithLockMachineLogger overrides the logger used for sink failures.
func WithLockMachineLogger(logger Logger) LockMachineOption {
	return func(sm *accountLockMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the state is stored.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the state was stored.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithUnlockAfter schedules an automatic unlock d after the lock.
func WithUnlockAfter(d time.Duration) TransitionOption {
	return func(opts *transitionOptions) {
		if d > 0 {
			opts.unlockAfter = d
		}
	}
}

// WithUnlockTime schedules an automatic unlock at t.
func WithUnlockTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.unlockTime = t
	}
}

// NewAccountLockMachine returns the default lock machine persisting through states.
func NewAccountLockMachine(states IdentityStates, opts ...LockMachineOption) AccountLockMachine {
	sm := &accountLockMachine{
		states:       states,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountLockMachine struct {
	states       IdentityStates
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
	unlockAfter time.Duration
	unlockTime  time.Time
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// Transition sets the lock flag to target and stores the record. Locking an
// already locked account is not a no-op: it is stored again so the unlock
// time can be refreshed. On failure state is left untouched.
func (sm *accountLockMachine) Transition(ctx context.Context, actor ActorRef, state *IdentityState, target LockStatus, opts ...TransitionOption) (*IdentityState, error) {
	if state == nil {
		return nil, newError(ErrInvalidTransition, nil, map[string]any{
			"target": target,
			"reason": "identity state is nil",
		})
	}

	if target != LockStatusLocked && target != LockStatusUnlocked {
		return nil, newError(ErrInvalidTransition, nil, map[string]any{
			"target": target,
			"reason": "unknown lock status",
		})
	}

	options := sm.buildTransitionOptions(opts...)
	from := sm.CurrentStatus(state)

	working := state.Clone()
	ctxData := TransitionContext{
		Actor: actor,
		State: working,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData); err != nil {
		return nil, err
	}

	if target == LockStatusLocked {
		working.Lock(sm.unlockTime(options))
	} else {
		working.Unlock()
	}

	stored, err := sm.states.Store(ctx, working)
	if err != nil {
		if isTaxonomyError(err) {
			return nil, err
		}
		sm.logger.Error("storing identity state failed", "username", state.Username, "tenant", state.TenantID, "error", err)
		return nil, newError(ErrUpstreamStore, err, map[string]any{
			"username":  state.Username,
			"tenant_id": state.TenantID,
		})
	}

	*state = *stored.Clone()
	ctxData.State = state

	if err := sm.runHooks(ctx, options.afterHooks, ctxData); err != nil {
		return state, err
	}

	eventType := ActivityEventAccountLocked
	if target == LockStatusUnlocked {
		eventType = ActivityEventAccountUnlocked
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		Username:   state.Username,
		TenantID:   state.TenantID,
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta, state),
	})

	return state, nil
}

// CurrentStatus reports the stored flag; scheduled unlocks are not applied here.
func (sm *accountLockMachine) CurrentStatus(state *IdentityState) LockStatus {
	if state == nil {
		return ""
	}
	if state.Locked {
		return LockStatusLocked
	}
	return LockStatusUnlocked
}

func (sm *accountLockMachine) unlockTime(opts *transitionOptions) time.Time {
	if !opts.unlockTime.IsZero() {
		return opts.unlockTime
	}
	if opts.unlockAfter > 0 {
		return sm.now().Add(opts.unlockAfter)
	}
	return time.Time{}
}

func (sm *accountLockMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

func (sm *accountLockMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountLockMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	event.Actor = event.Actor.orSystem()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("lock machine activity sink error", "error", err)
	}
}

func (sm *accountLockMachine) transitionMetadata(meta TransitionMetadata, state *IdentityState) map[string]any {
	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	if !state.UnlockTime.IsZero() {
		result["unlock_time"] = state.UnlockTime
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
