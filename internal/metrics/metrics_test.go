package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("ObserveSource", func(t *testing.T) {
		m := NewNop()
		m.ObserveSource("my_csv", "csv", "search", OutcomeSuccess, 10*time.Millisecond)
		m.ObserveSource("my_csv", "csv", "search", OutcomeSuccess, 20*time.Millisecond)
		m.ObserveSource("my_csv", "csv", "search", OutcomeTimeout, time.Second)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceRequests.WithLabelValues("my_csv", "csv", "search", OutcomeSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceRequests.WithLabelValues("my_csv", "csv", "search", OutcomeTimeout)))
	})

	t.Run("ObserveGeneration", func(t *testing.T) {
		m := NewNop()
		m.ObserveGeneration(3, 5)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.RegistryGeneration))
		assert.Equal(t, 5.0, testutil.ToFloat64(m.LoadedSources))
	})

	t.Run("registered collectors", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)
		m.SourceLoadFailed("ldap")
		m.BreakerState.WithLabelValues("ldap_1").Set(2)

		count, err := testutil.GatherAndCount(reg, "dird_source_load_failures_total", "dird_circuit_breaker_state")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ObserveSource("s", "b", "search", OutcomeError, 0)
			m.ObserveGeneration(1, 1)
			m.SourceLoadFailed("csv")
		})
	})
}
