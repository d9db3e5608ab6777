// Package metrics exposes Prometheus collectors for the ledger engine.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/sharedledger/internal/ledger"
)

// Result labels.
const (
	ResultOK          = "ok"
	ResultRejected    = "rejected"
	ResultDuplicate   = "duplicate"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
)

// Classify maps an operation error to its result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ledger.ErrDuplicateSettlement):
		return ResultDuplicate
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ResultUnavailable
	case errors.Is(err, ledger.ErrPersistence):
		return ResultError
	default:
		return ResultRejected
	}
}

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	settlements        *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	balanceQueries     *prometheus.CounterVec
	gatherer           prometheus.Gatherer
}

// New creates and registers the collectors on a fresh registry that also
// carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "settlements_total",
			Help:      "Settlement requests by result.",
		}, []string{"result"}),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "settlement_duration_seconds",
			Help:      "Time spent in the settlement unit of work, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
		balanceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "balance_queries_total",
			Help:      "Balance queries by result.",
		}, []string{"result"}),
		gatherer: g,
	}
	reg.MustRegister(m.settlements, m.settlementDuration, m.balanceQueries)
	return m
}

// ObserveSettlement records one settlement attempt.
func (m *Metrics) ObserveSettlement(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
	m.settlementDuration.Observe(elapsed.Seconds())
}

// ObserveBalanceQuery records one balance query.
func (m *Metrics) ObserveBalanceQuery(result string) {
	if m == nil {
		return
	}
	m.balanceQueries.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
