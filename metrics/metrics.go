// Package metrics exports cache statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/adaptcache"
)

// StatsSource is anything that can produce a Stats snapshot; adaptcache.Cache
// satisfies it.
type StatsSource interface {
	Stats() adaptcache.Stats
}

// StatsFunc adapts a function to StatsSource, e.g. for a tiered cache:
//
//	metrics.StatsFunc(func() adaptcache.Stats { return tc.Stats().Stats })
type StatsFunc func() adaptcache.Stats

func (f StatsFunc) Stats() adaptcache.Stats { return f() }

type collector struct {
	src StatsSource

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	sizeBytes   *prometheus.Desc
	entries     *prometheus.Desc
}

// NewCollector returns a collector that reads src on every scrape. The
// metric names are prefixed with namespace (e.g. "<ns>_hits_total").
func NewCollector(namespace string, src StatsSource) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &collector{
		src:         src,
		hits:        desc("hits_total", "Lookups that found a live entry."),
		misses:      desc("misses_total", "Lookups that found nothing or an expired entry."),
		evictions:   desc("evictions_total", "Entries removed to make room."),
		expirations: desc("expirations_total", "Entries removed because their TTL elapsed."),
		sizeBytes:   desc("size_bytes", "Bytes charged by live entries."),
		entries:     desc("entries", "Number of live entries."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.sizeBytes
	ch <- c.entries
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(s.Expirations))
	ch <- prometheus.MustNewConstMetric(c.sizeBytes, prometheus.GaugeValue, float64(s.CurrentSize))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.EntryCount))
}
