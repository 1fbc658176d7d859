package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const commandTimeout = 10 * time.Second

// AccountLockMessage asks for a lock status change of one user.
type AccountLockMessage struct {
	Username    string
	Target      LockStatus
	Reason      string
	UnlockAfter time.Duration
	OnResponse  func(state *IdentityState)
}

func (m AccountLockMessage) Type() string { return "identity.account.lock" }

// AccountLockHandler applies AccountLockMessage through the engine.
type AccountLockHandler struct {
	engine *Engine
	users  UserStore
	logger Logger
}

// NewAccountLockHandler returns a handler acting on the users of one store.
func NewAccountLockHandler(engine *Engine, users UserStore) *AccountLockHandler {
	return &AccountLockHandler{
		engine: engine,
		users:  users,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *AccountLockHandler) WithLogger(logger Logger) *AccountLockHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountLockHandler) Execute(ctx context.Context, msg AccountLockMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before account lock change")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *AccountLockHandler) execute(ctx context.Context, msg AccountLockMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var opts []TransitionOption
	if msg.Reason != "" {
		opts = append(opts, WithTransitionReason(msg.Reason))
	}

	var (
		state *IdentityState
		err   error
	)
	switch msg.Target {
	case LockStatusLocked:
		opts = append(opts, WithUnlockAfter(msg.UnlockAfter))
		state, err = h.engine.LockAccount(ctx, msg.Username, h.users, opts...)
	case LockStatusUnlocked:
		state, err = h.engine.UnlockAccount(ctx, msg.Username, h.users, opts...)
	default:
		err = newError(ErrInvalidTransition, nil, map[string]any{"target": msg.Target})
	}

	if err != nil {
		h.logger.Debug("account lock command failed", "username", msg.Username, "target", msg.Target, "error", err)
		return commandError(err, "failed to change account lock status")
	}

	if msg.OnResponse != nil {
		msg.OnResponse(state)
	}
	return nil
}

// commandError keeps rich errors as they are and wraps anything else.
func commandError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
