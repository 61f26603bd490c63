package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a snapshot of the database pool, decoupled from pgxpool.
type PoolStats struct {
	Total         int32
	Idle          int32
	Acquired      int32
	Max           int32
	EmptyAcquires int64
}

// PoolStatsFunc reads the current pool state.
type PoolStatsFunc func() PoolStats

type poolGauge struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(PoolStats) float64
}

// dbPoolCollector reads the pool once per scrape.
type dbPoolCollector struct {
	stats  PoolStatsFunc
	gauges []poolGauge
}

// NewDBPoolCollector exposes pool connection counts read through stats.
func NewDBPoolCollector(stats PoolStatsFunc) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("teamhub_db_pool_"+name, help, nil, nil)
	}
	return &dbPoolCollector{
		stats: stats,
		gauges: []poolGauge{
			{desc("total_conns", "Connections currently open in the pool."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Total) }},
			{desc("idle_conns", "Idle connections in the pool."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Idle) }},
			{desc("acquired_conns", "Connections checked out of the pool."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Acquired) }},
			{desc("max_conns", "Configured pool size."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Max) }},
			{desc("empty_acquires_total", "Acquires that had to wait for a connection."), prometheus.CounterValue,
				func(s PoolStats) float64 { return float64(s.EmptyAcquires) }},
		},
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.kind, g.value(s))
	}
}
