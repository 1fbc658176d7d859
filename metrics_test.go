package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := identity.NewMetrics(reg)
	require.NoError(t, err)

	engine, _ := newTestEngine(t, identity.WithMetrics(metrics))
	ctx := t.Context()

	_, err = engine.GetPrimaryQuestions(ctx, 1)
	require.NoError(t, err)

	err = engine.AddPrimaryQuestions(ctx, []string{"not a question"}, 1)
	require.Error(t, err)

	ops := metrics.Operations()
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("get_primary_questions", identity.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("add_primary_questions", identity.TextCodeInvalidSecurityQuestionFormat)))
}

func TestNewMetricsReusesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := identity.NewMetrics(reg)
	require.NoError(t, err)
	second, err := identity.NewMetrics(reg)
	require.NoError(t, err)

	assert.Same(t, first.Operations(), second.Operations())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *identity.Metrics
	assert.Nil(t, metrics.Operations())

	engine, _ := newTestEngine(t, identity.WithMetrics(nil))
	_, err := engine.GetPrimaryQuestions(t.Context(), 1)
	assert.NoError(t, err)
}
