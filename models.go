package identity

import (
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultClaimDialect is the namespace shared by every default identity claim.
	DefaultClaimDialect = "http://wso2.org/claims"
	// ChallengeQuestionURI prefixes every security question claim.
	ChallengeQuestionURI = "http://wso2.org/claims/challengeQuestion"
	// TenantScope is the recovery subject used for tenant wide entries.
	TenantScope = "TENANT"
	// DefaultUserStoreDomain is used when a user store reports no domain.
	DefaultUserStoreDomain = "PRIMARY"
)

// MetadataType classifies recovery metadata entries.
type MetadataType = string

const (
	MetadataTemporaryPassword       MetadataType = "TEMPORARY_PASSWORD"
	MetadataConfirmationCode        MetadataType = "CONFIRMATION_CODE"
	MetadataPrimarySecurityQuestion MetadataType = "PRIMARY_SEC_QUESTION"
	MetadataSecurityQuestion        MetadataType = "SECURITY_QUESTION"
)

// IsSingleUse reports whether at most one valid entry may exist per subject for t.
func IsSingleUse(t MetadataType) bool {
	switch t {
	case MetadataTemporaryPassword, MetadataConfirmationCode:
		return true
	default:
		return false
	}
}

// Claim is a (URI, value) attribute pair.
type Claim struct {
	URI   string `json:"claim_uri"`
	Value string `json:"claim_value"`
}

// Scope identifies the tenant and user store domain an identity state lives in.
type Scope struct {
	TenantID int
	Domain   string
}

// IdentityState is the persisted lock and recovery claims record of one user.
type IdentityState struct {
	bun.BaseModel     `bun:"table:identity_states,alias:ids"`
	ID                uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username          string            `bun:"username,notnull" json:"username"`
	TenantID          int               `bun:"tenant_id,notnull" json:"tenant_id"`
	UserStoreDomain   string            `bun:"user_store_domain,notnull" json:"user_store_domain"`
	Locked            bool              `bun:"account_locked,notnull" json:"account_locked"`
	UnlockTime        time.Time         `bun:"unlock_time,nullzero" json:"unlock_time,omitempty"`
	SecurityQuestions []Claim           `bun:"security_questions" json:"security_questions,omitempty"`
	RecoveryClaims    map[string]string `bun:"recovery_claims" json:"recovery_claims,omitempty"`
	Version           int64             `bun:"version,notnull" json:"version"`
	CreatedAt         *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Scope returns the tenant/domain pair of the record.
func (s *IdentityState) Scope() Scope {
	return Scope{TenantID: s.TenantID, Domain: s.UserStoreDomain}
}

// Lock marks the account locked. A zero unlockAt means locked until an
// explicit unlock.
func (s *IdentityState) Lock(unlockAt time.Time) {
	s.Locked = true
	s.UnlockTime = unlockAt
}

// Unlock clears the lock and any scheduled unlock time.
func (s *IdentityState) Unlock() {
	s.Locked = false
	s.UnlockTime = time.Time{}
}

// IsEffectivelyLocked treats a lock whose unlock time has passed as released.
func (s *IdentityState) IsEffectivelyLocked(now time.Time) bool {
	if s == nil || !s.Locked {
		return false
	}
	if s.UnlockTime.IsZero() {
		return true
	}
	return now.Before(s.UnlockTime)
}

// Normalize enforces that an unlocked record never carries an unlock time.
func (s *IdentityState) Normalize() {
	if !s.Locked {
		s.UnlockTime = time.Time{}
	}
}

// UpdateSecurityQuestions merges questions by claim URI, keeping the
// original position of replaced entries and appending new ones.
func (s *IdentityState) UpdateSecurityQuestions(questions []Claim) {
	for _, q := range questions {
		replaced := false
		for i := range s.SecurityQuestions {
			if s.SecurityQuestions[i].URI == q.URI {
				s.SecurityQuestions[i].Value = q.Value
				replaced = true
				break
			}
		}
		if !replaced {
			s.SecurityQuestions = append(s.SecurityQuestions, q)
		}
	}
}

// UpdateRecoveryClaims merges claims into the recovery claim set.
func (s *IdentityState) UpdateRecoveryClaims(claims []Claim) {
	if s.RecoveryClaims == nil {
		s.RecoveryClaims = make(map[string]string, len(claims))
	}
	for _, c := range claims {
		s.RecoveryClaims[c.URI] = c.Value
	}
}

// RecoveryClaimList returns the recovery claims ordered by URI.
func (s *IdentityState) RecoveryClaimList() []Claim {
	out := make([]Claim, 0, len(s.RecoveryClaims))
	for uri, value := range s.RecoveryClaims {
		out = append(out, Claim{URI: uri, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Clone returns a deep copy so mutations can be discarded on failure.
func (s *IdentityState) Clone() *IdentityState {
	if s == nil {
		return nil
	}
	out := *s
	if s.SecurityQuestions != nil {
		out.SecurityQuestions = append([]Claim(nil), s.SecurityQuestions...)
	}
	if s.RecoveryClaims != nil {
		out.RecoveryClaims = make(map[string]string, len(s.RecoveryClaims))
		for k, v := range s.RecoveryClaims {
			out.RecoveryClaims[k] = v
		}
	}
	return &out
}

// RecoveryMetadata is issued recovery material (questions, codes, temporary passwords).
type RecoveryMetadata struct {
	bun.BaseModel `bun:"table:recovery_data,alias:rcd"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Subject       string       `bun:"subject,notnull" json:"subject"`
	TenantID      int          `bun:"tenant_id,notnull" json:"tenant_id"`
	Type          MetadataType `bun:"metadata_type,notnull" json:"metadata_type"`
	Value         string       `bun:"metadata,notnull" json:"metadata"`
	Valid         bool         `bun:"valid,notnull" json:"valid"`
	IssuedAt      time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	Ordinal       int          `bun:"ordinal,notnull" json:"ordinal"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Validate checks the fields every stored entry needs.
func (m *RecoveryMetadata) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Subject, validation.Required),
		validation.Field(&m.Type, validation.Required, validation.In(
			MetadataTemporaryPassword,
			MetadataConfirmationCode,
			MetadataPrimarySecurityQuestion,
			MetadataSecurityQuestion,
		)),
		validation.Field(&m.Value, validation.Required),
	)
}

// Selector returns the selector matching exactly this entry's value.
func (m *RecoveryMetadata) Selector() MetadataSelector {
	return MetadataSelector{
		Subject:  m.Subject,
		TenantID: m.TenantID,
		Type:     m.Type,
		Value:    m.Value,
	}
}

// MetadataSelector picks recovery entries for invalidation. An empty Value
// matches every value of the given type.
type MetadataSelector struct {
	Subject  string
	TenantID int
	Type     MetadataType
	Value    string
}
