package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/tenantauth"
	internalmetrics "github.com/MrEthical07/tenantauth/internal/metrics"
)

// Source is satisfied by *tenantauth.Engine.
type Source interface {
	MetricsSnapshot() tenantauth.MetricsSnapshot
	AuditDropped() uint64
}

type describedMetric struct {
	id   tenantauth.MetricID
	desc *prometheus.Desc
}

// Collector converts engine snapshots to const metrics at scrape time.
type Collector struct {
	source     Source
	counters   []describedMetric
	histograms []describedMetric
	dropped    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(source Source) *Collector {
	c := &Collector{
		source:  source,
		dropped: prometheus.NewDesc("tenantauth_audit_dropped_total", "Audit events dropped because the dispatcher buffer was full.", nil, nil),
	}
	for _, def := range internalmetrics.CounterDefs {
		c.counters = append(c.counters, describedMetric{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internalmetrics.HistogramDefs {
		c.histograms = append(c.histograms, describedMetric{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Register adds a collector for source to reg.
func Register(reg prometheus.Registerer, source Source) (*Collector, error) {
	c := NewCollector(source)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
	for _, m := range c.histograms {
		ch <- m.desc
	}
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snap := c.source.MetricsSnapshot()

	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(snap.Counters[m.id]))
	}
	for _, m := range c.histograms {
		cumulative := internalmetrics.CumulativeBuckets(snap.Histograms[m.id])
		buckets := make(map[float64]uint64, len(internalmetrics.HistogramBounds))
		for i, le := range internalmetrics.HistogramBounds {
			buckets[le] = cumulative[i]
		}
		// Snapshots keep bucket counts only, so the sum is not known.
		ch <- prometheus.MustNewConstHistogram(m.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
