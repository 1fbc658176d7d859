package identity

import (
	"context"
	"strings"
)

// DomainSeparator splits the user store domain from the username.
const DomainSeparator = "/"

// UserStore is the user-store collaborator of one tenant realm. Credential
// and claim CRUD live behind it; the engine only reads.
type UserStore interface {
	TenantID() int
	DomainName() string
	IsExistingUser(ctx context.Context, username string) (bool, error)
	// GetUserClaimValues returns the requested claims, or every claim of the
	// user when claimURIs is empty.
	GetUserClaimValues(ctx context.Context, username string, claimURIs []string) ([]Claim, error)
	ListUsersByClaim(ctx context.Context, claimURI, value string) ([]string, error)
}

// RealmService resolves the user store of a tenant.
type RealmService interface {
	TenantUserStore(ctx context.Context, tenantID int) (UserStore, error)
}

// RealmServiceFunc adapts a function to RealmService.
type RealmServiceFunc func(ctx context.Context, tenantID int) (UserStore, error)

// TenantUserStore implements RealmService.
func (f RealmServiceFunc) TenantUserStore(ctx context.Context, tenantID int) (UserStore, error) {
	return f(ctx, tenantID)
}

// AddDomainToName qualifies username with the upper cased domain unless it
// is already qualified.
func AddDomainToName(username, domain string) string {
	if strings.Contains(username, DomainSeparator) {
		return username
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return username
	}
	return strings.ToUpper(domain) + DomainSeparator + username
}

// RemoveDomainFromName strips a leading domain qualifier.
func RemoveDomainFromName(username string) string {
	if idx := strings.Index(username, DomainSeparator); idx > 0 {
		return username[idx+1:]
	}
	return username
}

func userStoreScope(users UserStore) Scope {
	domain := strings.ToUpper(strings.TrimSpace(users.DomainName()))
	if domain == "" {
		domain = DefaultUserStoreDomain
	}
	return Scope{TenantID: users.TenantID(), Domain: domain}
}
