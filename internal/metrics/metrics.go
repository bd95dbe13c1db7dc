package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "careerquest"

var (
	// Redemptions counts GrantPoints/SpendPoints calls by kind (grant|spend) and outcome.
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redemptions_total",
		Help:      "Code redemption attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	// BroadcastDeliveries counts per-recipient broadcast sends by result (sent|failed).
	BroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_deliveries_total",
		Help:      "Broadcast message deliveries by result.",
	}, []string{"result"})

	// DBAcquireTimeouts counts pool acquisitions that gave up waiting.
	DBAcquireTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_acquire_timeouts_total",
		Help:      "Connection pool acquisitions that timed out.",
	})
)

// PoolCollector exports pgxpool statistics as gauges.
type PoolCollector struct {
	pool     *pgxpool.Pool
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolCollector builds a collector for pool; register it once per process.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool:     pool,
		acquired: prometheus.NewDesc(namespace+"_db_pool_acquired_conns", "Connections currently checked out.", nil, nil),
		idle:     prometheus.NewDesc(namespace+"_db_pool_idle_conns", "Idle connections in the pool.", nil, nil),
		total:    prometheus.NewDesc(namespace+"_db_pool_total_conns", "Total connections owned by the pool.", nil, nil),
		max:      prometheus.NewDesc(namespace+"_db_pool_max_conns", "Configured pool ceiling.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(st.MaxConns()))
}
