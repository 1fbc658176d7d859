package identity_test

import (
	"context"
	"errors"
	"testing"

	identity "github.com/goliatone/go-identity"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	claimEmail = "http://wso2.org/claims/emailaddress"
	claimCity  = "http://wso2.org/claims/locality"
	claimPhone = "http://wso2.org/claims/mobile"
)

func realmsFor(users identity.UserStore) identity.RealmService {
	return identity.RealmServiceFunc(func(context.Context, int) (identity.UserStore, error) {
		return users, nil
	})
}

func TestResolveByClaims(t *testing.T) {
	email := identity.Claim{URI: claimEmail, Value: "a@example.com"}
	city := identity.Claim{URI: claimCity, Value: "Lisbon"}
	phone := identity.Claim{URI: claimPhone, Value: "+351"}

	tests := []struct {
		name    string
		claims  []identity.Claim
		lookups map[string][]string
		want    string
		wantErr *goerrors.Error
	}{
		{
			name:    "single match on first claim",
			claims:  []identity.Claim{email, city},
			lookups: map[string][]string{claimEmail: {"u1"}},
			want:    "u1",
		},
		{
			name:   "intersection of multi matches",
			claims: []identity.Claim{email, city},
			lookups: map[string][]string{
				claimEmail: {"u1", "u2"},
				claimCity:  {"u2", "u3"},
			},
			want: "u2",
		},
		{
			name:   "only adjacent sets are intersected",
			claims: []identity.Claim{email, city, phone},
			lookups: map[string][]string{
				claimEmail: {"u1", "u2"},
				claimCity:  {"u3", "u4"},
				claimPhone: {"u4", "u5"},
			},
			want: "u4",
		},
		{
			name:   "disjoint multi matches",
			claims: []identity.Claim{email, city},
			lookups: map[string][]string{
				claimEmail: {"u1", "u2"},
				claimCity:  {"u3", "u4"},
			},
			wantErr: identity.ErrAmbiguousOrNoMatch,
		},
		{
			name:    "no match",
			claims:  []identity.Claim{email, city},
			lookups: map[string][]string{claimEmail: {}},
			wantErr: identity.ErrNoUserMatchesClaims,
		},
		{
			name: "claims with empty uri or value are skipped",
			claims: []identity.Claim{
				{URI: claimCity, Value: ""},
				{URI: "", Value: "Lisbon"},
				email,
			},
			lookups: map[string][]string{claimEmail: {"u1"}},
			want:    "u1",
		},
		{
			name:    "only empty claims",
			claims:  []identity.Claim{{URI: claimCity}, {Value: "Lisbon"}},
			wantErr: identity.ErrNoUserMatchesClaims,
		},
		{
			name:    "no claims",
			wantErr: identity.ErrNoUserMatchesClaims,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newUserStore()
			for uri, matches := range tt.lookups {
				var value string
				for _, c := range tt.claims {
					if c.URI == uri {
						value = c.Value
					}
				}
				users.On("ListUsersByClaim", mock.Anything, uri, value).Return(matches, nil).Once()
			}

			resolver := identity.NewClaimResolver(realmsFor(users), &captureLogger{})
			got, err := resolver.ResolveByClaims(context.Background(), tt.claims, 1)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, identity.IsKind(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			users.AssertExpectations(t)
		})
	}
}

func TestResolveByClaimsUpstreamFailures(t *testing.T) {
	claims := []identity.Claim{{URI: claimEmail, Value: "a@example.com"}}

	t.Run("lookup error", func(t *testing.T) {
		users := newUserStore()
		users.On("ListUsersByClaim", mock.Anything, claimEmail, "a@example.com").Return(nil, errors.New("ldap timeout"))

		resolver := identity.NewClaimResolver(realmsFor(users), &captureLogger{})
		_, err := resolver.ResolveByClaims(context.Background(), claims, 1)
		require.Error(t, err)
		assert.True(t, identity.IsKind(err, identity.ErrUpstreamStore))
	})

	t.Run("no realm service", func(t *testing.T) {
		resolver := identity.NewClaimResolver(nil, nil)
		_, err := resolver.ResolveByClaims(context.Background(), claims, 1)
		require.Error(t, err)
		assert.True(t, identity.IsKind(err, identity.ErrUpstreamStore))
	})

	t.Run("tenant without store", func(t *testing.T) {
		realms := identity.RealmServiceFunc(func(context.Context, int) (identity.UserStore, error) {
			return nil, nil
		})
		resolver := identity.NewClaimResolver(realms, nil)
		_, err := resolver.ResolveByClaims(context.Background(), claims, 7)
		require.Error(t, err)
		assert.True(t, identity.IsKind(err, identity.ErrUpstreamStore))
	})
}

func TestEngineResolveUserByClaims(t *testing.T) {
	users := newUserStore()
	users.On("ListUsersByClaim", mock.Anything, claimEmail, "a@example.com").Return([]string{"alice"}, nil)

	engine, _ := newTestEngine(t, identity.WithRealmService(realmsFor(users)))
	got, err := engine.ResolveUserByClaims(context.Background(), []identity.Claim{{URI: claimEmail, Value: "a@example.com"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}
