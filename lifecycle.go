package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/workflow"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const engineLoggerName = "identity.engine"

// DefaultTenantID is used when the context carries no tenant.
const DefaultTenantID = -1234

// Workflow event types submitted by the engine.
const (
	EventTypeAccountLock   = "ACCOUNT_LOCK"
	EventTypeAccountUnlock = "ACCOUNT_UNLOCK"
)

// WorkflowDispatcher accepts lifecycle requests for external processing.
type WorkflowDispatcher interface {
	Dispatch(ctx context.Context, req *workflow.Request) error
}

// Engine orchestrates identity lifecycle operations over the identity
// state and recovery data stores.
type Engine struct {
	repo           RepositoryManager
	featureGate    gate.FeatureGate
	realms         RealmService
	passwords      PasswordGenerator
	limiter        IssueLimiter
	metrics        *Metrics
	activitySink   ActivitySink
	logger         Logger
	loggerProvider LoggerProvider
	hashCost       int
	now            func() time.Time
	dispatcher     WorkflowDispatcher
	lockMachine    AccountLockMachine
	resolver       *ClaimResolver
	locks          *keyLocks
}

// Option customizes the Engine.
type Option func(*Engine)

// WithFeatureGate sets the gate consulted before lock and unlock.
func WithFeatureGate(fg gate.FeatureGate) Option {
	return func(e *Engine) {
		e.featureGate = fg
	}
}

// WithRealmService sets the tenant user store lookup.
func WithRealmService(realms RealmService) Option {
	return func(e *Engine) {
		e.realms = realms
	}
}

// WithPasswordGenerator sets the generator for temporary passwords and codes.
func WithPasswordGenerator(g PasswordGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.passwords = g
		}
	}
}

// WithIssueLimiter throttles issuance of recovery material.
func WithIssueLimiter(l IssueLimiter) Option {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithActivitySink publishes lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(e *Engine) {
		e.activitySink = normalizeActivitySink(sink)
	}
}

// WithLogger sets the engine logger. It replaces any logger provider set before.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		e.loggerProvider, e.logger = ResolveLogger(engineLoggerName, nil, logger)
	}
}

// WithLoggerProvider resolves the engine logger from provider.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(e *Engine) {
		e.loggerProvider, e.logger = ResolveLogger(engineLoggerName, provider, e.logger)
	}
}

// WithHashCost sets the bcrypt cost for temporary passwords.
func WithHashCost(cost int) Option {
	return func(e *Engine) {
		e.hashCost = cost
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithWorkflowDispatcher sets the dispatcher used by SubmitLockRequest.
func WithWorkflowDispatcher(d WorkflowDispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// NewEngine returns an engine persisting through repo.
func NewEngine(repo RepositoryManager, opts ...Option) *Engine {
	provider, logger := ResolveLogger(engineLoggerName, nil, nil)
	generator, _ := NewRandomPasswordGenerator(DefaultPasswordPolicy())

	e := &Engine{
		repo:           repo,
		passwords:      generator,
		activitySink:   noopActivitySink{},
		logger:         logger,
		loggerProvider: provider,
		now:            time.Now,
		locks:          newKeyLocks(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.lockMachine = NewAccountLockMachine(repo.IdentityStates(),
		WithLockMachineClock(e.now),
		WithLockMachineActivitySink(e.activitySink),
		WithLockMachineLogger(e.loggerProvider.GetLogger("identity.lock_machine")),
	)
	e.resolver = NewClaimResolver(e.realms, e.logger)

	return e
}

// LockAccount locks username in the user store domain of users.
func (e *Engine) LockAccount(ctx context.Context, username string, users UserStore, opts ...TransitionOption) (*IdentityState, error) {
	state, err := e.transitionLock(ctx, username, users, LockStatusLocked, opts...)
	e.metrics.observe("lock_account", err)
	return state, err
}

// UnlockAccount unlocks username in the user store domain of users.
func (e *Engine) UnlockAccount(ctx context.Context, username string, users UserStore, opts ...TransitionOption) (*IdentityState, error) {
	state, err := e.transitionLock(ctx, username, users, LockStatusUnlocked, opts...)
	e.metrics.observe("unlock_account", err)
	return state, err
}

func (e *Engine) transitionLock(ctx context.Context, username string, users UserStore, target LockStatus, opts ...TransitionOption) (*IdentityState, error) {
	if err := e.requireListener(ctx, username); err != nil {
		return nil, err
	}

	name, scope, err := e.existingUser(ctx, username, users)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(stateKey(name, scope))
	defer unlock()

	state, err := e.loadState(ctx, name, scope)
	if err != nil {
		return nil, err
	}

	state, err = e.lockMachine.Transition(ctx, ActorFromContext(ctx), state, target, opts...)
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).Info("account lock status changed",
		"username", name,
		"tenant", scope.TenantID,
		"status", target,
	)
	return state, nil
}

// StoreUserIdentityState creates the identity state of a user, or
// overwrites the existing one.
func (e *Engine) StoreUserIdentityState(ctx context.Context, state *IdentityState, users UserStore) (*IdentityState, error) {
	stored, err := e.storeUserIdentityState(ctx, state, users)
	e.metrics.observe("store_identity_state", err)
	return stored, err
}

func (e *Engine) storeUserIdentityState(ctx context.Context, state *IdentityState, users UserStore) (*IdentityState, error) {
	if state == nil {
		return nil, newError(ErrNoIdentityRecord, nil, map[string]any{"reason": "state is nil"})
	}
	if users == nil {
		return nil, newError(ErrUpstreamStore, nil, map[string]any{"reason": "user store is nil"})
	}

	scope := userStoreScope(users)
	name := RemoveDomainFromName(state.Username)

	unlock := e.locks.lock(stateKey(name, scope))
	defer unlock()

	working := state.Clone()
	working.Username = name
	working.TenantID = scope.TenantID
	working.UserStoreDomain = scope.Domain

	existing, err := e.repo.IdentityStates().Load(ctx, name, scope)
	switch {
	case err == nil:
		working.ID = existing.ID
		working.Version = existing.Version
		working.CreatedAt = existing.CreatedAt
	case repository.IsRecordNotFound(err):
		working.ID = uuid.Nil
	default:
		return nil, e.storeError(ctx, err, name, scope)
	}

	stored, err := e.repo.IdentityStates().Store(ctx, working)
	if err != nil {
		return nil, e.storeError(ctx, err, name, scope)
	}
	return stored, nil
}

// GetAllUserIdentityClaims returns the claims of username in the default
// claim dialect, read from the user store of the context tenant.
func (e *Engine) GetAllUserIdentityClaims(ctx context.Context, username string) ([]Claim, error) {
	claims, err := e.getAllUserIdentityClaims(ctx, username)
	e.metrics.observe("get_all_identity_claims", err)
	return claims, err
}

func (e *Engine) getAllUserIdentityClaims(ctx context.Context, username string) ([]Claim, error) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		tenantID = DefaultTenantID
	}

	users, err := e.resolver.userStore(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	all, err := users.GetUserClaimValues(ctx, username, nil)
	if err != nil {
		e.logger.WithContext(ctx).Error("reading user claims failed", "username", username, "tenant", tenantID, "error", err)
		return nil, e.upstreamError(err, username, tenantID)
	}

	out := make([]Claim, 0, len(all))
	for _, c := range all {
		if strings.Contains(c.URI, DefaultClaimDialect) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ResolveUserByClaims finds the single user of tenantID matching claims.
func (e *Engine) ResolveUserByClaims(ctx context.Context, claims []Claim, tenantID int) (string, error) {
	username, err := e.resolver.ResolveByClaims(ctx, claims, tenantID)
	e.metrics.observe("resolve_by_claims", err)
	return username, err
}

// SubmitLockRequest hands a lock or unlock of username to the workflow
// dispatcher and returns the request identifier. Acceptance does not mean
// the transition happened.
func (e *Engine) SubmitLockRequest(ctx context.Context, username string, users UserStore, target LockStatus) (string, error) {
	id, err := e.submitLockRequest(ctx, username, users, target)
	e.metrics.observe("submit_lock_request", err)
	return id, err
}

func (e *Engine) submitLockRequest(ctx context.Context, username string, users UserStore, target LockStatus) (string, error) {
	if err := e.requireListener(ctx, username); err != nil {
		return "", err
	}

	eventType := EventTypeAccountLock
	switch target {
	case LockStatusLocked:
	case LockStatusUnlocked:
		eventType = EventTypeAccountUnlock
	default:
		return "", newError(ErrInvalidTransition, nil, map[string]any{"target": target})
	}

	name, scope, err := e.existingUser(ctx, username, users)
	if err != nil {
		return "", err
	}

	req := workflow.NewRequest(eventType, map[string]any{
		"Username":        name,
		"TenantID":        scope.TenantID,
		"UserStoreDomain": scope.Domain,
	})

	if e.dispatcher == nil {
		return "", newError(workflow.ErrNoExecutorFound, nil, map[string]any{
			"request_id": req.ID(),
			"reason":     "workflow dispatcher not configured",
		})
	}

	if err := e.dispatcher.Dispatch(ctx, req); err != nil {
		return "", err
	}

	e.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLockRequestSubmitted,
		Username:  name,
		TenantID:  scope.TenantID,
		ToStatus:  target,
		Metadata:  map[string]any{"request_id": req.ID()},
	})
	return req.ID(), nil
}

func (e *Engine) requireListener(ctx context.Context, username string) error {
	err := requireFeatureGate(ctx, e.featureGate, FeatureIdentityListener, ErrFeatureDisabled)
	if err == nil {
		return nil
	}
	if IsKind(err, ErrFeatureDisabled) {
		return newError(ErrFeatureDisabled, nil, map[string]any{"username": username})
	}
	return err
}

// existingUser qualifies username with the store domain, checks the user
// exists and returns the unqualified name with the store scope.
func (e *Engine) existingUser(ctx context.Context, username string, users UserStore) (string, Scope, error) {
	if users == nil {
		return "", Scope{}, newError(ErrUpstreamStore, nil, map[string]any{
			"username": username,
			"reason":   "user store is nil",
		})
	}

	scope := userStoreScope(users)
	qualified := AddDomainToName(username, users.DomainName())

	exists, err := users.IsExistingUser(ctx, qualified)
	if err != nil {
		e.logger.WithContext(ctx).Error("user existence check failed", "username", qualified, "tenant", scope.TenantID, "error", err)
		return "", scope, e.upstreamError(err, qualified, scope.TenantID)
	}
	if !exists {
		return "", scope, newError(ErrUserNotFound, nil, map[string]any{
			"username":  qualified,
			"tenant_id": scope.TenantID,
		})
	}

	return RemoveDomainFromName(qualified), scope, nil
}

func (e *Engine) loadState(ctx context.Context, name string, scope Scope) (*IdentityState, error) {
	state, err := e.repo.IdentityStates().Load(ctx, name, scope)
	if err == nil {
		return state, nil
	}
	if repository.IsRecordNotFound(err) {
		return nil, newError(ErrNoIdentityRecord, nil, map[string]any{
			"username":  name,
			"tenant_id": scope.TenantID,
			"domain":    scope.Domain,
		})
	}
	return nil, e.storeError(ctx, err, name, scope)
}

// storeError passes taxonomy errors through and wraps anything else as an
// upstream store failure.
func (e *Engine) storeError(ctx context.Context, err error, name string, scope Scope) error {
	if isTaxonomyError(err) {
		return err
	}
	e.logger.WithContext(ctx).Error("identity store failure", "username", name, "tenant", scope.TenantID, "error", err)
	return newError(ErrUpstreamStore, err, map[string]any{
		"username":  name,
		"tenant_id": scope.TenantID,
	})
}

func (e *Engine) upstreamError(err error, username string, tenantID int) error {
	classification := ClassifyUpstreamError(err, username)
	return newError(ErrUpstreamStore, err, map[string]any{
		"username":       username,
		"tenant_id":      tenantID,
		"classification": classification.Kind,
	})
}

func (e *Engine) recordActivity(ctx context.Context, event ActivityEvent) {
	event.Actor = ActorFromContext(ctx)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	if err := e.activitySink.Record(ctx, event); err != nil {
		e.logger.Warn("engine activity sink error", "error", err)
	}
}
