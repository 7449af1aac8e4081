package adaptcache

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on the caller's
// goroutine, after the cache lock has been released.
type Hooks interface {
	// An entry was removed to bring usage back under budget.
	Evicted(key string, size int64)

	// An entry was removed because its TTL elapsed (lazily on Get, while making
	// room, or by the sweeper).
	Expired(key string)

	// InvalidateByTag removed n entries. Unknown tags report n=0.
	TagInvalidated(tag string, n int)

	// Set refused a value larger than the byte budget.
	ValueRejected(key string, size, budget int64)

	// A sweeper pass finished.
	Swept(removed int, took time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Evicted(string, int64)              {}
func (NopHooks) Expired(string)                     {}
func (NopHooks) TagInvalidated(string, int)         {}
func (NopHooks) ValueRejected(string, int64, int64) {}
func (NopHooks) Swept(int, time.Duration)           {}
