package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdentityStates persists identity state records. Updates are guarded by an
// optimistic version stamp: a write based on a stale read fails with
// ErrConcurrentModification instead of silently overwriting.
type IdentityStates interface {
	Load(ctx context.Context, username string, scope Scope) (*IdentityState, error)
	LoadTx(ctx context.Context, tx bun.IDB, username string, scope Scope) (*IdentityState, error)
	Store(ctx context.Context, state *IdentityState) (*IdentityState, error)
	StoreTx(ctx context.Context, tx bun.IDB, state *IdentityState) (*IdentityState, error)
}

type identityStates struct {
	repository.Repository[*IdentityState]
	db  *bun.DB
	now func() time.Time
}

var _ IdentityStates = (*identityStates)(nil)

// NewIdentityStatesRepository returns the bun backed identity state store.
func NewIdentityStatesRepository(db *bun.DB) IdentityStates {
	repo := repository.NewRepository[*IdentityState](db, repository.ModelHandlers[*IdentityState]{
		NewRecord: func() *IdentityState { return &IdentityState{} },
		GetID: func(s *IdentityState) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *IdentityState, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &identityStates{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *identityStates) Load(ctx context.Context, username string, scope Scope) (*IdentityState, error) {
	return r.LoadTx(ctx, r.db, username, scope)
}

func (r *identityStates) LoadTx(ctx context.Context, tx bun.IDB, username string, scope Scope) (*IdentityState, error) {
	record := &IdentityState{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Where("?TableAlias.tenant_id = ?", scope.TenantID).
		Where("?TableAlias.user_store_domain = ?", scope.Domain).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"username": username,
					"tenant":   scope.TenantID,
					"domain":   scope.Domain,
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *identityStates) Store(ctx context.Context, state *IdentityState) (*IdentityState, error) {
	return r.StoreTx(ctx, r.db, state)
}

func (r *identityStates) StoreTx(ctx context.Context, tx bun.IDB, state *IdentityState) (*IdentityState, error) {
	if state == nil {
		return nil, newError(ErrNoIdentityRecord, nil, map[string]any{"reason": "state is nil"})
	}

	state.Normalize()

	if state.ID == uuid.Nil {
		state.ID = stateID(state)
		state.Version = 1
		return r.Repository.CreateTx(ctx, tx, state)
	}

	previous := state.Version
	now := r.now()
	state.Version = previous + 1
	state.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(state).
		Column("account_locked", "unlock_time", "security_questions", "recovery_claims", "version", "updated_at").
		WherePK().
		Where("?TableAlias.version = ?", previous).
		Exec(ctx)
	if err != nil {
		state.Version = previous
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		state.Version = previous
		return nil, err
	}

	if affected == 0 {
		state.Version = previous
		return nil, newError(ErrConcurrentModification, nil, map[string]any{
			"username": state.Username,
			"tenant":   state.TenantID,
			"version":  previous,
		})
	}

	return state, nil
}

// stateID derives a stable identifier from the scoped username, so a
// record recreated for the same user keeps its id.
func stateID(state *IdentityState) uuid.UUID {
	if id, err := hashid.NewUUID(stateKey(state.Username, state.Scope())); err == nil {
		return id
	}
	return uuid.New()
}
