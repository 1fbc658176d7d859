package identity

import (
	"context"
	"sort"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// FeatureIdentityListener gates every lock and unlock operation.
const FeatureIdentityListener = "identity.listener"

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

// requireFeatureGate passes when no gate was configured.
func requireFeatureGate(ctx context.Context, featureGate gate.FeatureGate, key string, disabledErr error) error {
	if featureGate == nil {
		return nil
	}
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}

// StaticFeatureGate is a fixed set of feature flags, typically built from
// configuration. Unknown keys are disabled.
type StaticFeatureGate map[string]bool

var _ gate.FeatureGate = StaticFeatureGate(nil)

// Enabled implements gate.FeatureGate.
func (g StaticFeatureGate) Enabled(_ context.Context, key string, _ ...gate.ResolveOption) (bool, error) {
	return g[key], nil
}

// Keys returns the enabled flags in stable order.
func (g StaticFeatureGate) Keys() []string {
	out := make([]string, 0, len(g))
	for k, enabled := range g {
		if enabled {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
