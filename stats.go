package adaptcache

import "sync/atomic"

// Stats is a point-in-time snapshot. Counters are monotonic for the life of the cache.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	CurrentSize int64 // bytes charged by live entries
	EntryCount  int
}

// HitRatio returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// statsCollector holds the monotonic counters. Nothing reads them to make decisions.
type statsCollector struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

func (s *statsCollector) hit()          { s.hits.Add(1) }
func (s *statsCollector) miss()         { s.misses.Add(1) }
func (s *statsCollector) evicted(n int) { s.evictions.Add(uint64(n)) }
func (s *statsCollector) expired(n int) { s.expirations.Add(uint64(n)) }

func (s *statsCollector) snapshot(size int64, count int) Stats {
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
		CurrentSize: size,
		EntryCount:  count,
	}
}
