package main

import (
	"context"
	"strings"

	identity "github.com/goliatone/go-identity"
)

// localUserStore knows a fixed set of users and no claims. It stands in for
// the tenant directory when operating on the identity database directly.
type localUserStore struct {
	tenantID int
	domain   string
	users    map[string]struct{}
}

func newLocalUserStore(tenantID int, domain string, users []string) *localUserStore {
	s := &localUserStore{
		tenantID: tenantID,
		domain:   domain,
		users:    make(map[string]struct{}, len(users)),
	}
	for _, u := range users {
		if u = strings.TrimSpace(u); u != "" {
			s.users[identity.RemoveDomainFromName(u)] = struct{}{}
		}
	}
	return s
}

func (s *localUserStore) TenantID() int      { return s.tenantID }
func (s *localUserStore) DomainName() string { return s.domain }

func (s *localUserStore) IsExistingUser(_ context.Context, username string) (bool, error) {
	_, ok := s.users[identity.RemoveDomainFromName(username)]
	return ok, nil
}

func (s *localUserStore) GetUserClaimValues(context.Context, string, []string) ([]identity.Claim, error) {
	return nil, nil
}

func (s *localUserStore) ListUsersByClaim(context.Context, string, string) ([]string, error) {
	return nil, nil
}
