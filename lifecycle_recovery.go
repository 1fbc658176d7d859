package identity

import (
	"context"
	"crypto/subtle"

	"github.com/uptrace/bun"
)

// InvalidateUserIdentityMetadata marks matching recovery entries invalid.
// An empty value matches every entry of metadataType. Invalidating
// entries that are already invalid, or absent, succeeds.
func (e *Engine) InvalidateUserIdentityMetadata(ctx context.Context, username string, tenantID int, metadataType MetadataType, value string) error {
	err := e.invalidateUserIdentityMetadata(ctx, username, tenantID, metadataType, value)
	e.metrics.observe("invalidate_identity_metadata", err)
	return err
}

func (e *Engine) invalidateUserIdentityMetadata(ctx context.Context, username string, tenantID int, metadataType MetadataType, value string) error {
	selector := MetadataSelector{
		Subject:  username,
		TenantID: tenantID,
		Type:     metadataType,
		Value:    value,
	}

	if err := e.repo.RecoveryData().Invalidate(ctx, selector); err != nil {
		return e.recoveryStoreError(ctx, err, username, tenantID)
	}

	e.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRecoveryInvalidated,
		Username:  username,
		TenantID:  tenantID,
		Metadata:  map[string]any{"metadata_type": metadataType},
	})
	return nil
}

// StoreUserIdentityMetadata persists recovery entries. New entries are
// always issued valid.
func (e *Engine) StoreUserIdentityMetadata(ctx context.Context, metadata ...*RecoveryMetadata) error {
	err := e.storeUserIdentityMetadata(ctx, metadata...)
	e.metrics.observe("store_identity_metadata", err)
	return err
}

func (e *Engine) storeUserIdentityMetadata(ctx context.Context, metadata ...*RecoveryMetadata) error {
	if len(metadata) == 0 {
		return nil
	}

	for _, m := range metadata {
		if m != nil {
			m.Valid = true
		}
	}

	if err := e.repo.RecoveryData().Store(ctx, metadata...); err != nil {
		var (
			subject  string
			tenantID int
		)
		if first := metadata[0]; first != nil {
			subject, tenantID = first.Subject, first.TenantID
		}
		return e.recoveryStoreError(ctx, err, subject, tenantID)
	}
	return nil
}

// GetUserIdentityMetadata returns the valid entries of metadataType for username.
func (e *Engine) GetUserIdentityMetadata(ctx context.Context, username string, tenantID int, metadataType MetadataType) ([]*RecoveryMetadata, error) {
	entries, err := e.repo.RecoveryData().Load(ctx, username, tenantID, WithMetadataType(metadataType))
	if err != nil {
		err = e.recoveryStoreError(ctx, err, username, tenantID)
	}
	e.metrics.observe("get_identity_metadata", err)
	return entries, err
}

// IsValidIdentityMetadata reports whether a valid entry with value exists.
func (e *Engine) IsValidIdentityMetadata(ctx context.Context, username string, tenantID int, metadataType MetadataType, value string) (bool, error) {
	entries, err := e.GetUserIdentityMetadata(ctx, username, tenantID, metadataType)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if subtle.ConstantTimeCompare([]byte(entry.Value), []byte(value)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// GenerateTemporaryPassword returns a new random temporary password.
func (e *Engine) GenerateTemporaryPassword() ([]byte, error) {
	return e.passwords.Generate()
}

// GenerateConfirmationCode returns a new random confirmation code.
func (e *Engine) GenerateConfirmationCode() (string, error) {
	code, err := e.passwords.Generate()
	if err != nil {
		return "", err
	}
	return string(code), nil
}

// IssueConfirmationCode generates and stores a confirmation code for
// username, replacing any previous valid one. The code is returned once.
func (e *Engine) IssueConfirmationCode(ctx context.Context, username string, tenantID int) (string, error) {
	code, err := e.issueConfirmationCode(ctx, username, tenantID)
	e.metrics.observe("issue_confirmation_code", err)
	return code, err
}

func (e *Engine) issueConfirmationCode(ctx context.Context, username string, tenantID int) (string, error) {
	if err := e.allowIssue(username, tenantID, MetadataConfirmationCode); err != nil {
		return "", err
	}

	code, err := e.GenerateConfirmationCode()
	if err != nil {
		return "", err
	}

	record := &RecoveryMetadata{
		Subject:  username,
		TenantID: tenantID,
		Type:     MetadataConfirmationCode,
		Value:    code,
		Valid:    true,
	}
	if err := e.repo.RecoveryData().Store(ctx, record); err != nil {
		return "", e.recoveryStoreError(ctx, err, username, tenantID)
	}

	e.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventConfirmationCodeIssued,
		Username:  username,
		TenantID:  tenantID,
	})
	return code, nil
}

// VerifyConfirmationCode consumes code when it matches the valid
// confirmation code of username.
func (e *Engine) VerifyConfirmationCode(ctx context.Context, username string, tenantID int, code string) error {
	err := e.consume(ctx, username, tenantID, MetadataConfirmationCode, func(entry *RecoveryMetadata) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(entry.Value), []byte(code)) == 1, nil
	})
	if err == nil {
		e.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventConfirmationCodeConsumed,
			Username:  username,
			TenantID:  tenantID,
		})
	}
	e.metrics.observe("verify_confirmation_code", err)
	return err
}

// IssueTemporaryPassword generates a temporary password for username and
// stores its hash, replacing any previous valid one. The plaintext is
// returned once.
func (e *Engine) IssueTemporaryPassword(ctx context.Context, username string, tenantID int) ([]byte, error) {
	password, err := e.issueTemporaryPassword(ctx, username, tenantID)
	e.metrics.observe("issue_temporary_password", err)
	return password, err
}

func (e *Engine) issueTemporaryPassword(ctx context.Context, username string, tenantID int) ([]byte, error) {
	if err := e.allowIssue(username, tenantID, MetadataTemporaryPassword); err != nil {
		return nil, err
	}

	password, err := e.GenerateTemporaryPassword()
	if err != nil {
		return nil, err
	}

	hash, err := HashSecret(password, e.hashCost)
	if err != nil {
		return nil, err
	}

	record := &RecoveryMetadata{
		Subject:  username,
		TenantID: tenantID,
		Type:     MetadataTemporaryPassword,
		Value:    hash,
		Valid:    true,
	}
	if err := e.repo.RecoveryData().Store(ctx, record); err != nil {
		return nil, e.recoveryStoreError(ctx, err, username, tenantID)
	}

	e.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTemporaryPasswordIssued,
		Username:  username,
		TenantID:  tenantID,
	})
	return password, nil
}

// VerifyTemporaryPassword consumes the temporary password of username when
// password matches it.
func (e *Engine) VerifyTemporaryPassword(ctx context.Context, username string, tenantID int, password []byte) error {
	err := e.consume(ctx, username, tenantID, MetadataTemporaryPassword, func(entry *RecoveryMetadata) (bool, error) {
		return CompareSecretAndHash(password, entry.Value)
	})
	if err == nil {
		e.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventTemporaryPasswordConsumed,
			Username:  username,
			TenantID:  tenantID,
		})
	}
	e.metrics.observe("verify_temporary_password", err)
	return err
}

// consume invalidates the first valid entry accepted by match inside one
// transaction, so a secret can be redeemed only once.
func (e *Engine) consume(ctx context.Context, username string, tenantID int, metadataType MetadataType, match func(*RecoveryMetadata) (bool, error)) error {
	unlock := e.locks.lock(stateKey(username, Scope{TenantID: tenantID, Domain: metadataType}))
	defer unlock()

	return e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		data := e.repo.RecoveryData()
		entries, err := data.LoadTx(ctx, tx, username, tenantID, WithMetadataType(metadataType))
		if err != nil {
			return e.recoveryStoreError(ctx, err, username, tenantID)
		}

		for _, entry := range entries {
			ok, err := match(entry)
			if err != nil {
				return e.recoveryStoreError(ctx, err, username, tenantID)
			}
			if !ok {
				continue
			}
			if err := data.InvalidateTx(ctx, tx, entry.Selector()); err != nil {
				return e.recoveryStoreError(ctx, err, username, tenantID)
			}
			return nil
		}

		base := ErrInvalidConfirmationCode
		if metadataType == MetadataTemporaryPassword {
			base = ErrInvalidTemporaryPassword
		}
		return newError(base, nil, map[string]any{
			"username":  username,
			"tenant_id": tenantID,
		})
	})
}

func (e *Engine) allowIssue(username string, tenantID int, metadataType MetadataType) error {
	if e.limiter == nil || e.limiter.Allow(issueKey(tenantID, username, metadataType), e.now()) {
		return nil
	}
	return newError(ErrRecoveryRateLimited, nil, map[string]any{
		"username":      username,
		"tenant_id":     tenantID,
		"metadata_type": metadataType,
	})
}

func (e *Engine) recoveryStoreError(ctx context.Context, err error, subject string, tenantID int) error {
	if isTaxonomyError(err) {
		return err
	}
	e.logger.WithContext(ctx).Error("recovery data store failure", "subject", subject, "tenant", tenantID, "error", err)
	return newError(ErrUpstreamStore, err, map[string]any{
		"username":  subject,
		"tenant_id": tenantID,
	})
}
