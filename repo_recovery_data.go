package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecoveryData persists recovery metadata. Entries are never deleted;
// consumption and revocation flip the valid flag.
type RecoveryData interface {
	Load(ctx context.Context, subject string, tenantID int, opts ...LoadOption) ([]*RecoveryMetadata, error)
	LoadTx(ctx context.Context, tx bun.IDB, subject string, tenantID int, opts ...LoadOption) ([]*RecoveryMetadata, error)
	Store(ctx context.Context, records ...*RecoveryMetadata) error
	StoreTx(ctx context.Context, tx bun.IDB, records ...*RecoveryMetadata) error
	Invalidate(ctx context.Context, selector MetadataSelector) error
	InvalidateTx(ctx context.Context, tx bun.IDB, selector MetadataSelector) error
}

// LoadOption narrows a recovery data lookup.
type LoadOption func(*loadOptions)

type loadOptions struct {
	includeInvalid bool
	metadataType   MetadataType
}

// WithInvalidated includes invalidated entries in the result.
func WithInvalidated() LoadOption {
	return func(o *loadOptions) {
		o.includeInvalid = true
	}
}

// WithMetadataType restricts the lookup to a single metadata type.
func WithMetadataType(t MetadataType) LoadOption {
	return func(o *loadOptions) {
		o.metadataType = t
	}
}

type recoveryData struct {
	repository.Repository[*RecoveryMetadata]
	db  *bun.DB
	now func() time.Time
}

var _ RecoveryData = (*recoveryData)(nil)

// NewRecoveryDataRepository returns the bun backed recovery data store.
func NewRecoveryDataRepository(db *bun.DB) RecoveryData {
	repo := repository.NewRepository[*RecoveryMetadata](db, repository.ModelHandlers[*RecoveryMetadata]{
		NewRecord: func() *RecoveryMetadata { return &RecoveryMetadata{} },
		GetID: func(m *RecoveryMetadata) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *RecoveryMetadata, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string {
			return "subject"
		},
	})

	return &recoveryData{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *recoveryData) Load(ctx context.Context, subject string, tenantID int, opts ...LoadOption) ([]*RecoveryMetadata, error) {
	return r.LoadTx(ctx, r.db, subject, tenantID, opts...)
}

func (r *recoveryData) LoadTx(ctx context.Context, tx bun.IDB, subject string, tenantID int, opts ...LoadOption) ([]*RecoveryMetadata, error) {
	options := loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	records := []*RecoveryMetadata{}
	q := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.subject = ?", subject).
		Where("?TableAlias.tenant_id = ?", tenantID)

	if options.metadataType != "" {
		q = q.Where("?TableAlias.metadata_type = ?", options.metadataType)
	}

	if !options.includeInvalid {
		q = q.Where("?TableAlias.valid = ?", true)
	}

	if err := q.OrderExpr("?TableAlias.issued_at ASC, ?TableAlias.ordinal ASC").Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *recoveryData) Store(ctx context.Context, records ...*RecoveryMetadata) error {
	if err := validateRecoveryRecords(records); err != nil {
		return err
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.StoreTx(ctx, tx, records...)
	})
}

// StoreTx inserts records. For single use types any valid entry of the same
// subject and type is invalidated first, so at most one stays valid.
func (r *recoveryData) StoreTx(ctx context.Context, tx bun.IDB, records ...*RecoveryMetadata) error {
	if err := validateRecoveryRecords(records); err != nil {
		return err
	}

	issuedAt := r.now()
	for i, record := range records {
		if IsSingleUse(record.Type) {
			err := r.InvalidateTx(ctx, tx, MetadataSelector{
				Subject:  record.Subject,
				TenantID: record.TenantID,
				Type:     record.Type,
			})
			if err != nil {
				return err
			}
		}

		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		if record.IssuedAt.IsZero() {
			record.IssuedAt = issuedAt
			record.Ordinal = i
		}

		if _, err := r.Repository.CreateTx(ctx, tx, record); err != nil {
			return err
		}
	}

	return nil
}

func (r *recoveryData) Invalidate(ctx context.Context, selector MetadataSelector) error {
	return r.InvalidateTx(ctx, r.db, selector)
}

// InvalidateTx marks matching valid entries invalid. Matching nothing is not an error.
func (r *recoveryData) InvalidateTx(ctx context.Context, tx bun.IDB, selector MetadataSelector) error {
	q := tx.NewUpdate().
		Model((*RecoveryMetadata)(nil)).
		Set("valid = ?", false).
		Set("updated_at = ?", r.now()).
		Where("?TableAlias.subject = ?", selector.Subject).
		Where("?TableAlias.tenant_id = ?", selector.TenantID).
		Where("?TableAlias.valid = ?", true)

	if selector.Type != "" {
		q = q.Where("?TableAlias.metadata_type = ?", selector.Type)
	}

	if selector.Value != "" {
		q = q.Where("?TableAlias.metadata = ?", selector.Value)
	}

	_, err := q.Exec(ctx)
	return err
}

func validateRecoveryRecords(records []*RecoveryMetadata) error {
	for i, record := range records {
		if record == nil {
			return newError(ErrInvalidRecoveryMetadata, nil, map[string]any{"index": i, "reason": "record is nil"})
		}
		if err := record.Validate(); err != nil {
			return newError(ErrInvalidRecoveryMetadata, err, map[string]any{"index": i, "subject": record.Subject})
		}
	}
	return nil
}
