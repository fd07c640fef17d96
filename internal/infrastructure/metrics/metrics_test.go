package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/domain/shared"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveCompletion(shared.ModuleFinance, command.ResultGranted, 1.2, 5*time.Millisecond)
	m.ObserveCompletion(shared.ModuleFinance, command.ResultOverLimit, 0.9, time.Millisecond)
	m.ObserveReward(shared.ModuleFinance, 12, 6)
	m.ObserveHTTP("POST /v1/completions", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("FINANCE", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("FINANCE", "over_limit")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.currency.WithLabelValues("FINANCE")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.experience.WithLabelValues("FINANCE")))

	expected := `
# HELP homequest_reward_currency_total Currency credited to wallets.
# TYPE homequest_reward_currency_total counter
homequest_reward_currency_total{module="FINANCE"} 12
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "homequest_reward_currency_total"))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew(reg) })
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCompletion(shared.ModuleWork, command.ResultFault, 0, 0)
		m.ObserveReward(shared.ModuleWork, 1, 1)
		m.ObserveHTTP("GET /healthz", 200, 0)
	})
}
