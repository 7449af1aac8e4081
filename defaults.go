package adaptcache

import "time"

const (
	defaultEvictionFraction = 0.2
	defaultFrequencyWindow  = 60 * time.Second
	defaultHistorySize      = 100
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
