// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EvictedEvery: 10, // sample logs: ~every 10th eviction
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := adaptcache.New[[]byte](adaptcache.Options[[]byte]{
//	    CapacityBytes: 64 << 20,
//	    DefaultTTL:    time.Minute,
//	    Hooks:         hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/adaptcache"
)

// Hooks forwards events to inner on a bounded worker pool. Events that do
// not fit in the queue are dropped and counted.
type Hooks struct {
	inner   adaptcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed queue
	closed  bool
	dropped atomic.Uint64
}

var _ adaptcache.Hooks = (*Hooks)(nil)

func New(inner adaptcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Evicted(k string, size int64)       { h.try(func() { h.inner.Evicted(k, size) }) }
func (h *Hooks) Expired(k string)                   { h.try(func() { h.inner.Expired(k) }) }
func (h *Hooks) TagInvalidated(tag string, n int)   { h.try(func() { h.inner.TagInvalidated(tag, n) }) }
func (h *Hooks) Swept(n int, took time.Duration)    { h.try(func() { h.inner.Swept(n, took) }) }
func (h *Hooks) ValueRejected(k string, s, b int64) { h.try(func() { h.inner.ValueRejected(k, s, b) }) }
