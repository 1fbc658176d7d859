package identity

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// GetPrimaryQuestions returns the tenant wide primary security questions.
// No questions is an empty list, not an error.
func (e *Engine) GetPrimaryQuestions(ctx context.Context, tenantID int) ([]string, error) {
	questions, err := e.getPrimaryQuestions(ctx, e.repo.RecoveryData(), nil, tenantID)
	e.metrics.observe("get_primary_questions", err)
	return questions, err
}

func (e *Engine) getPrimaryQuestions(ctx context.Context, data RecoveryData, tx bun.IDB, tenantID int) ([]string, error) {
	var (
		entries []*RecoveryMetadata
		err     error
	)
	if tx != nil {
		entries, err = data.LoadTx(ctx, tx, TenantScope, tenantID, WithMetadataType(MetadataPrimarySecurityQuestion))
	} else {
		entries, err = data.Load(ctx, TenantScope, tenantID, WithMetadataType(MetadataPrimarySecurityQuestion))
	}
	if err != nil {
		e.logger.WithContext(ctx).Error("loading primary questions failed", "tenant", tenantID, "error", err)
		return nil, newError(ErrUpstreamStore, err, map[string]any{"tenant_id": tenantID})
	}

	questions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(entry.Value, ChallengeQuestionURI) {
			questions = append(questions, entry.Value)
		}
	}
	return questions, nil
}

// AddPrimaryQuestions stores questions as tenant wide primary questions.
// Every question is checked before anything is written; questions already
// present are skipped.
func (e *Engine) AddPrimaryQuestions(ctx context.Context, questions []string, tenantID int) error {
	err := e.addPrimaryQuestions(ctx, questions, tenantID)
	e.metrics.observe("add_primary_questions", err)
	return err
}

func (e *Engine) addPrimaryQuestions(ctx context.Context, questions []string, tenantID int) error {
	if err := validateQuestions(questions, tenantID); err != nil {
		return err
	}

	unlock := e.locks.lock(stateKey(TenantScope, Scope{TenantID: tenantID}))
	defer unlock()

	return e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := e.getPrimaryQuestions(ctx, e.repo.RecoveryData(), tx, tenantID)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(existing)+len(questions))
		for _, q := range existing {
			seen[q] = struct{}{}
		}

		records := make([]*RecoveryMetadata, 0, len(questions))
		for _, q := range questions {
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			records = append(records, &RecoveryMetadata{
				Subject:  TenantScope,
				TenantID: tenantID,
				Type:     MetadataPrimarySecurityQuestion,
				Value:    q,
				Valid:    true,
			})
		}

		if len(records) == 0 {
			return nil
		}

		if err := e.repo.RecoveryData().StoreTx(ctx, tx, records...); err != nil {
			return e.recoveryStoreError(ctx, err, TenantScope, tenantID)
		}
		return nil
	})
}

// RemovePrimaryQuestions invalidates the given tenant wide primary
// questions. The batch is checked like AddPrimaryQuestions.
func (e *Engine) RemovePrimaryQuestions(ctx context.Context, questions []string, tenantID int) error {
	err := e.removePrimaryQuestions(ctx, questions, tenantID)
	e.metrics.observe("remove_primary_questions", err)
	return err
}

func (e *Engine) removePrimaryQuestions(ctx context.Context, questions []string, tenantID int) error {
	if err := validateQuestions(questions, tenantID); err != nil {
		return err
	}

	unlock := e.locks.lock(stateKey(TenantScope, Scope{TenantID: tenantID}))
	defer unlock()

	return e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, q := range questions {
			err := e.repo.RecoveryData().InvalidateTx(ctx, tx, MetadataSelector{
				Subject:  TenantScope,
				TenantID: tenantID,
				Type:     MetadataPrimarySecurityQuestion,
				Value:    q,
			})
			if err != nil {
				return e.recoveryStoreError(ctx, err, TenantScope, tenantID)
			}
		}
		return nil
	})
}

// UpdateUserSecurityQuestions merges questions into the identity state of
// username. Every claim URI must contain ChallengeQuestionURI, otherwise
// nothing is stored and ErrInvalidSecurityQuestionFormat is returned.
func (e *Engine) UpdateUserSecurityQuestions(ctx context.Context, username string, questions []Claim, users UserStore) error {
	err := e.updateUserSecurityQuestions(ctx, username, questions, users)
	e.metrics.observe("update_security_questions", err)
	return err
}

func (e *Engine) updateUserSecurityQuestions(ctx context.Context, username string, questions []Claim, users UserStore) error {
	for i, q := range questions {
		if !strings.Contains(q.URI, ChallengeQuestionURI) {
			return newError(ErrInvalidSecurityQuestionFormat, nil, map[string]any{
				"username": username,
				"index":    i,
				"claim":    q.URI,
			})
		}
	}

	return e.mutateState(ctx, username, users, func(state *IdentityState) {
		state.UpdateSecurityQuestions(questions)
	})
}

// GetUserSecurityQuestions returns the security questions of username.
func (e *Engine) GetUserSecurityQuestions(ctx context.Context, username string, users UserStore) ([]Claim, error) {
	state, err := e.readState(ctx, username, users)
	e.metrics.observe("get_security_questions", err)
	if err != nil {
		return nil, err
	}
	out := make([]Claim, len(state.SecurityQuestions))
	copy(out, state.SecurityQuestions)
	return out, nil
}

// UpdateUserIdentityClaims merges claims into the recovery claims of username.
func (e *Engine) UpdateUserIdentityClaims(ctx context.Context, username string, claims []Claim, users UserStore) error {
	err := e.mutateState(ctx, username, users, func(state *IdentityState) {
		state.UpdateRecoveryClaims(claims)
	})
	e.metrics.observe("update_identity_claims", err)
	return err
}

// GetUserIdentityClaims returns the recovery claims of username ordered by URI.
func (e *Engine) GetUserIdentityClaims(ctx context.Context, username string, users UserStore) ([]Claim, error) {
	state, err := e.readState(ctx, username, users)
	e.metrics.observe("get_identity_claims", err)
	if err != nil {
		return nil, err
	}
	return state.RecoveryClaimList(), nil
}

func (e *Engine) readState(ctx context.Context, username string, users UserStore) (*IdentityState, error) {
	if users == nil {
		return nil, newError(ErrUpstreamStore, nil, map[string]any{"username": username, "reason": "user store is nil"})
	}
	return e.loadState(ctx, RemoveDomainFromName(username), userStoreScope(users))
}

// mutateState runs a serialized load, mutate and store of the identity
// state. A missing state fails with ErrNoIdentityRecord.
func (e *Engine) mutateState(ctx context.Context, username string, users UserStore, mutate func(*IdentityState)) error {
	if users == nil {
		return newError(ErrUpstreamStore, nil, map[string]any{"username": username, "reason": "user store is nil"})
	}

	name := RemoveDomainFromName(username)
	scope := userStoreScope(users)

	unlock := e.locks.lock(stateKey(name, scope))
	defer unlock()

	state, err := e.loadState(ctx, name, scope)
	if err != nil {
		return err
	}

	working := state.Clone()
	mutate(working)

	if _, err := e.repo.IdentityStates().Store(ctx, working); err != nil {
		return e.storeError(ctx, err, name, scope)
	}
	return nil
}

func validateQuestions(questions []string, tenantID int) error {
	for i, q := range questions {
		if !strings.Contains(q, ChallengeQuestionURI) {
			return newError(ErrInvalidSecurityQuestionFormat, nil, map[string]any{
				"tenant_id": tenantID,
				"index":     i,
				"question":  q,
			})
		}
	}
	return nil
}
