package identity

import (
	"context"
)

// ClaimResolver finds the single user identified by an ordered list of
// claims. The user store only answers single claim lookups, so claims are
// applied one at a time as a progressive filter.
type ClaimResolver struct {
	realms RealmService
	logger Logger
}

// NewClaimResolver returns a resolver reading tenant user stores from realms.
func NewClaimResolver(realms RealmService, logger Logger) *ClaimResolver {
	if logger == nil {
		logger = defaultLogger()
	}
	return &ClaimResolver{realms: realms, logger: logger}
}

// ResolveByClaims walks claims in order:
//   - a claim with no match fails with ErrNoUserMatchesClaims
//   - a claim with exactly one match returns it
//   - a claim with several matches is intersected with the previous
//     multi-match set; the first common user is returned, otherwise the
//     current set becomes the previous one
//
// Claims with an empty URI or value are skipped. Running out of claims
// fails with ErrAmbiguousOrNoMatch.
func (r *ClaimResolver) ResolveByClaims(ctx context.Context, claims []Claim, tenantID int) (string, error) {
	claims = usableClaims(claims)
	if len(claims) == 0 {
		return "", newError(ErrNoUserMatchesClaims, nil, map[string]any{
			"tenant_id": tenantID,
			"reason":    "no claims supplied",
		})
	}

	users, err := r.userStore(ctx, tenantID)
	if err != nil {
		return "", err
	}

	var previous []string
	for _, claim := range claims {
		matches, err := users.ListUsersByClaim(ctx, claim.URI, claim.Value)
		if err != nil {
			r.logger.WithContext(ctx).Error("claim lookup failed", "claim", claim.URI, "tenant", tenantID, "error", err)
			return "", newError(ErrUpstreamStore, err, map[string]any{
				"tenant_id": tenantID,
				"claim":     claim.URI,
			})
		}

		switch len(matches) {
		case 0:
			return "", newError(ErrNoUserMatchesClaims, nil, map[string]any{
				"tenant_id": tenantID,
				"claim":     claim.URI,
			})
		case 1:
			return matches[0], nil
		}

		for _, prev := range previous {
			for _, current := range matches {
				if prev == current {
					return current, nil
				}
			}
		}
		previous = matches
	}

	return "", newError(ErrAmbiguousOrNoMatch, nil, map[string]any{
		"tenant_id": tenantID,
		"claims":    len(claims),
	})
}

func (r *ClaimResolver) userStore(ctx context.Context, tenantID int) (UserStore, error) {
	if r.realms == nil {
		return nil, newError(ErrUpstreamStore, nil, map[string]any{
			"tenant_id": tenantID,
			"reason":    "realm service not configured",
		})
	}

	users, err := r.realms.TenantUserStore(ctx, tenantID)
	if err != nil {
		return nil, newError(ErrUpstreamStore, err, map[string]any{"tenant_id": tenantID})
	}
	if users == nil {
		return nil, newError(ErrUpstreamStore, nil, map[string]any{
			"tenant_id": tenantID,
			"reason":    "tenant has no user store",
		})
	}
	return users, nil
}

func usableClaims(claims []Claim) []Claim {
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		if c.URI == "" || c.Value == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
