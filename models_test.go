package identity_test

import (
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityStateIsEffectivelyLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		state    *identity.IdentityState
		expected bool
	}{
		{name: "nil", state: nil, expected: false},
		{name: "unlocked", state: &identity.IdentityState{}, expected: false},
		{name: "locked indefinitely", state: &identity.IdentityState{Locked: true}, expected: true},
		{name: "scheduled unlock ahead", state: &identity.IdentityState{Locked: true, UnlockTime: now.Add(time.Minute)}, expected: true},
		{name: "scheduled unlock passed", state: &identity.IdentityState{Locked: true, UnlockTime: now.Add(-time.Minute)}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsEffectivelyLocked(now))
		})
	}
}

func TestIdentityStateNormalize(t *testing.T) {
	state := &identity.IdentityState{UnlockTime: time.Now()}
	state.Normalize()
	assert.True(t, state.UnlockTime.IsZero())
}

func TestIdentityStateCloneIsDeep(t *testing.T) {
	state := &identity.IdentityState{
		Username:          "alice",
		SecurityQuestions: []identity.Claim{{URI: "q1", Value: "a"}},
		RecoveryClaims:    map[string]string{"c1": "v1"},
	}

	clone := state.Clone()
	clone.SecurityQuestions[0].Value = "changed"
	clone.RecoveryClaims["c1"] = "changed"

	assert.Equal(t, "a", state.SecurityQuestions[0].Value)
	assert.Equal(t, "v1", state.RecoveryClaims["c1"])
	assert.Nil(t, (*identity.IdentityState)(nil).Clone())
}

func TestUpdateSecurityQuestionsKeepsOrder(t *testing.T) {
	state := &identity.IdentityState{}
	state.UpdateSecurityQuestions([]identity.Claim{{URI: "q1", Value: "a"}, {URI: "q2", Value: "b"}})
	state.UpdateSecurityQuestions([]identity.Claim{{URI: "q3", Value: "c"}, {URI: "q1", Value: "z"}})

	assert.Equal(t, []identity.Claim{
		{URI: "q1", Value: "z"},
		{URI: "q2", Value: "b"},
		{URI: "q3", Value: "c"},
	}, state.SecurityQuestions)
}

func TestRecoveryMetadataValidate(t *testing.T) {
	valid := &identity.RecoveryMetadata{Subject: "alice", Type: identity.MetadataConfirmationCode, Value: "123"}
	require.NoError(t, valid.Validate())

	assert.Error(t, (&identity.RecoveryMetadata{Type: identity.MetadataConfirmationCode, Value: "1"}).Validate())
	assert.Error(t, (&identity.RecoveryMetadata{Subject: "alice", Type: "OTHER", Value: "1"}).Validate())
	assert.Error(t, (&identity.RecoveryMetadata{Subject: "alice", Type: identity.MetadataConfirmationCode}).Validate())

	assert.Equal(t, identity.MetadataSelector{
		Subject: "alice",
		Type:    identity.MetadataConfirmationCode,
		Value:   "123",
	}, valid.Selector())
}

func TestDomainQualifiedNames(t *testing.T) {
	tests := []struct {
		username, domain, qualified, bare string
	}{
		{"alice", "primary", "PRIMARY/alice", "alice"},
		{"LDAP/bob", "primary", "LDAP/bob", "bob"},
		{"carol", "  ", "carol", "carol"},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			qualified := identity.AddDomainToName(tt.username, tt.domain)
			assert.Equal(t, tt.qualified, qualified)
			assert.Equal(t, tt.bare, identity.RemoveDomainFromName(qualified))
		})
	}

	assert.True(t, identity.IsSingleUse(identity.MetadataTemporaryPassword))
	assert.False(t, identity.IsSingleUse(identity.MetadataPrimarySecurityQuestion))
}
