package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestTenantIDFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected int
		ok       bool
	}{
		{name: "present", ctx: identity.WithTenantID(context.Background(), 42), expected: 42, ok: true},
		{name: "super tenant", ctx: identity.WithTenantID(context.Background(), identity.DefaultTenantID), expected: -1234, ok: true},
		{name: "absent", ctx: context.Background(), expected: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := identity.TenantIDFromContext(tt.ctx)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestActorFromContext(t *testing.T) {
	assert.Equal(t, identity.ActorRef{Type: "system"}, identity.ActorFromContext(context.Background()))

	actor := identity.ActorRef{ID: "admin-1", Type: "user"}
	ctx := identity.WithActor(context.Background(), actor)
	assert.Equal(t, actor, identity.ActorFromContext(ctx))
}
