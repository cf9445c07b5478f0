package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datagate"

// Metrics счётчики и гистограммы слоя доступа к данным.
// Нулевой указатель допустим: все методы становятся no-op.
type Metrics struct {
	QueryDuration      *prometheus.HistogramVec
	SlowQueries        *prometheus.CounterVec
	CacheRequests      *prometheus.CounterVec
	BlockedStatements  prometheus.Counter
	CacheInvalidations prometheus.Counter
	StoreCalls         *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg. При reg == nil метрики не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of Select and Execute calls.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind", "source", "outcome"}),
		SlowQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_queries_total",
			Help:      "Calls slower than the configured threshold.",
		}, []string{"kind"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Query cache lookups by result.",
		}, []string{"result"}),
		BlockedStatements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_statements_total",
			Help:      "Statements rejected by the security filter.",
		}),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Whole-cache invalidations after writes.",
		}),
		StoreCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_calls_total",
			Help:      "Statements that reached the database.",
		}, []string{"kind"}),
	}
}

// Результаты обращения к кешу.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) Blocked() {
	if m == nil {
		return
	}
	m.BlockedStatements.Inc()
}

func (m *Metrics) Invalidated() {
	if m == nil {
		return
	}
	m.CacheInvalidations.Inc()
}

func (m *Metrics) StoreCall(kind Kind) {
	if m == nil {
		return
	}
	m.StoreCalls.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observe(kind Kind, source Source, outcome string, seconds float64, slow bool) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(string(kind), string(source), outcome).Observe(seconds)
	if slow {
		m.SlowQueries.WithLabelValues(string(kind)).Inc()
	}
}
