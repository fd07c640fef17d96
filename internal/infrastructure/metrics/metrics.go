// Package metrics exports reward engine telemetry to Prometheus.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/domain/shared"
)

const namespace = "homequest"

// Metrics implements command.RewardMetrics.
type Metrics struct {
	completions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	performance *prometheus.HistogramVec
	currency    *prometheus.CounterVec
	experience  *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "completions_total",
			Help:      "Completion attempts by module and result.",
		}, []string{"module", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "completion_duration_seconds",
			Help:      "Latency of a completion attempt including the storage transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		performance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "performance",
			Help:      "Scored performance of granted completions.",
			Buckets:   []float64{0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3},
		}, []string{"module"}),
		currency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "currency_total",
			Help:      "Currency credited to wallets.",
		}, []string{"module"}),
		experience: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "experience_total",
			Help:      "Experience added to module accumulators.",
		}, []string{"module"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	collectors := []prometheus.Collector{m.completions, m.duration, m.performance, m.currency, m.experience, m.httpLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register reward metric: %w", err)
		}
	}
	return m, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// ObserveCompletion records one completion attempt.
func (m *Metrics) ObserveCompletion(module shared.Module, result string, performance float64, d time.Duration) {
	if m == nil {
		return
	}
	label := module.String()
	m.completions.WithLabelValues(label, result).Inc()
	m.duration.WithLabelValues(label).Observe(d.Seconds())
	if result == command.ResultGranted {
		m.performance.WithLabelValues(label).Observe(performance)
	}
}

// ObserveReward records the amounts of a granted reward.
func (m *Metrics) ObserveReward(module shared.Module, currency int, experience float64) {
	if m == nil {
		return
	}
	label := module.String()
	m.currency.WithLabelValues(label).Add(float64(currency))
	m.experience.WithLabelValues(label).Add(experience)
}

// ObserveHTTP records the latency of a served request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
