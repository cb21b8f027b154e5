package tenant

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tenant"

var (
	connectionsOpenDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "connections", "open"),
		"Tenant connections currently cached.", nil, nil)
	connectionsEstablishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "connections", "established_total"),
		"Tenant connections opened.", nil, nil)
	connectionsFailedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "connections", "failed_total"),
		"Tenant connection attempts that failed.", nil, nil)
	connectionsEvictedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "connections", "evicted_total"),
		"Tenant connections dropped from the cache.", nil, nil)
	connectionsReapedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "connections", "reaped_total"),
		"Tenant connections closed for being idle.", nil, nil)
)

// StatsCollector exports ConnectionStats to Prometheus.
type StatsCollector struct {
	stats func() ConnectionStats
}

// NewStatsCollector returns a collector reading c's counters on every scrape.
func NewStatsCollector(c *Connections) *StatsCollector {
	return &StatsCollector{stats: c.Stats}
}

// Describe implements prometheus.Collector.
func (sc *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsOpenDesc
	ch <- connectionsEstablishedDesc
	ch <- connectionsFailedDesc
	ch <- connectionsEvictedDesc
	ch <- connectionsReapedDesc
}

// Collect implements prometheus.Collector.
func (sc *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := sc.stats()
	ch <- prometheus.MustNewConstMetric(connectionsOpenDesc, prometheus.GaugeValue, float64(s.Open))
	ch <- prometheus.MustNewConstMetric(connectionsEstablishedDesc, prometheus.CounterValue, float64(s.Established))
	ch <- prometheus.MustNewConstMetric(connectionsFailedDesc, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(connectionsEvictedDesc, prometheus.CounterValue, float64(s.Evicted))
	ch <- prometheus.MustNewConstMetric(connectionsReapedDesc, prometheus.CounterValue, float64(s.Reaped))
}

// RouterMetrics counts routed requests by outcome: "shared", "dedicated",
// "not_found" or "failed". Every request counts exactly once, under the
// outcome it ended with, so a dedicated request failing its migration is
// counted as "failed" only.
type RouterMetrics struct {
	requests *prometheus.CounterVec
}

// NewRouterMetrics creates the router counters and registers them with reg.
func NewRouterMetrics(reg prometheus.Registerer) (*RouterMetrics, error) {
	m := &RouterMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Requests handled by the tenant router, by outcome.",
		}, []string{"outcome"}),
	}
	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe is a StateObserver; pass it to WithStateObserver. It counts when
// the request reaches StateCleanup.
func (m *RouterMetrics) Observe(r *http.Request, s State) {
	if s != StateCleanup {
		return
	}
	outcome, ok := Outcome(r.Context())
	if !ok {
		return
	}
	switch outcome {
	case StateSharedTenant:
		m.requests.WithLabelValues("shared").Inc()
	case StateDedicatedTenant:
		m.requests.WithLabelValues("dedicated").Inc()
	case StateTenantNotFound:
		m.requests.WithLabelValues("not_found").Inc()
	case StateFailed:
		m.requests.WithLabelValues("failed").Inc()
	}
}
