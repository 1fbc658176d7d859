// Package identity manages the identity lifecycle of user store accounts:
// account locking, recovery material and claim based user lookup.
//
// Identity state:
//   - IdentityState is the persisted lock and recovery claims record of one
//     user in one tenant and user store domain. It is created only through
//     Engine.StoreUserIdentityState; lock and unlock never create it.
//   - Writes are serialized per user inside the engine and guarded by an
//     optimistic version stamp in the store, so a stale write fails with
//     ErrConcurrentModification.
//
// Recovery material:
//   - RecoveryMetadata entries (security questions, confirmation codes,
//     temporary passwords) are never deleted. Consumption and revocation
//     flip the valid flag, and at most one confirmation code or temporary
//     password is valid per subject.
//
// Workflows:
//   - Engine.SubmitLockRequest hands lock changes to a workflow dispatcher
//     (see the workflow package) instead of applying them directly.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events best-effort (errors are logged)
//     so audit forwarding never blocks an operation.
package identity
