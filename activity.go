package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountLocked             ActivityEventType = "identity.account.locked"
	ActivityEventAccountUnlocked           ActivityEventType = "identity.account.unlocked"
	ActivityEventRecoveryInvalidated       ActivityEventType = "identity.recovery.invalidated"
	ActivityEventTemporaryPasswordIssued   ActivityEventType = "identity.recovery.temporary_password.issued"
	ActivityEventTemporaryPasswordConsumed ActivityEventType = "identity.recovery.temporary_password.consumed"
	ActivityEventConfirmationCodeIssued    ActivityEventType = "identity.recovery.confirmation_code.issued"
	ActivityEventConfirmationCodeConsumed  ActivityEventType = "identity.recovery.confirmation_code.consumed"
	ActivityEventLockRequestSubmitted      ActivityEventType = "identity.workflow.lock_request.submitted"
)

// ActivityEvent captures audit friendly information about a lifecycle action.
// Secrets (codes, passwords) are never part of an event.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	Username   string
	TenantID   int
	FromStatus LockStatus
	ToStatus   LockStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
