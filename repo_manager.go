package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	IdentityStates() IdentityStates
	RecoveryData() RecoveryData
}

type mngr struct {
	db             *bun.DB
	identityStates IdentityStates
	recoveryData   RecoveryData
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		identityStates: NewIdentityStatesRepository(db),
		recoveryData:   NewRecoveryDataRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.identityStates == nil {
		return errors.New("repository identityStates should be initialized")
	}

	if m.recoveryData == nil {
		return errors.New("repository recoveryData should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) IdentityStates() IdentityStates {
	return m.identityStates
}

func (m mngr) RecoveryData() RecoveryData {
	return m.recoveryData
}
