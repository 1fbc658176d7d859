package identity

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics counts lifecycle operations by outcome. A nil *Metrics is a no-op.
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics registers the lifecycle counters with reg. A nil registerer
// leaves the collectors unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "lifecycle_operations_total",
			Help:      "Identity lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	if reg == nil {
		return m, nil
	}

	if err := reg.Register(m.operations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.operations = existing
				return m, nil
			}
		}
		return nil, err
	}
	return m, nil
}

// Operations exposes the underlying collector.
func (m *Metrics) Operations() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.operations
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = ErrorKind(err)
		if outcome == "" {
			outcome = OutcomeError
		}
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
