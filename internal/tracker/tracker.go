// Package tracker records recent access times per key.
//
// A Tracker is not safe for concurrent use; the owning cache guards it with
// the same lock that protects its entry table.
package tracker

import "time"

// DefaultLimit is the number of accesses kept per key when New gets limit <= 0.
const DefaultLimit = 100

type Tracker struct {
	limit int
	rings map[string]*ring
}

// ring is a fixed-capacity circular buffer of timestamps, oldest at start.
type ring struct {
	buf   []time.Time
	start int
}

func New(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Tracker{limit: limit, rings: make(map[string]*ring)}
}

// Record appends an access for key, dropping the oldest one beyond the limit.
func (t *Tracker) Record(key string, at time.Time) {
	r, ok := t.rings[key]
	if !ok {
		// grow lazily; most keys never reach the limit
		r = &ring{buf: make([]time.Time, 0, min(8, t.limit))}
		t.rings[key] = r
	}
	r.push(at, t.limit)
}

// Count returns how many recorded accesses for key fall in [now-window, now].
func (t *Tracker) Count(key string, now time.Time, window time.Duration) int {
	r, ok := t.rings[key]
	if !ok {
		return 0
	}
	cutoff := now.Add(-window)
	c := 0
	// newest first; stop at the first access older than the window
	for i := len(r.buf) - 1; i >= 0; i-- {
		ts := r.at(i)
		if ts.Before(cutoff) {
			break
		}
		if !ts.After(now) {
			c++
		}
	}
	return c
}

// Frequency returns accesses per second over the trailing window.
// A non-positive window yields 0.
func (t *Tracker) Frequency(key string, now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(t.Count(key, now, window)) / window.Seconds()
}

// Last returns the most recent access for key.
func (t *Tracker) Last(key string) (time.Time, bool) {
	r, ok := t.rings[key]
	if !ok || len(r.buf) == 0 {
		return time.Time{}, false
	}
	return r.at(len(r.buf) - 1), true
}

// Forget releases the history held for key.
func (t *Tracker) Forget(key string) {
	delete(t.rings, key)
}

// Len returns the number of keys with history.
func (t *Tracker) Len() int { return len(t.rings) }

func (r *ring) push(ts time.Time, limit int) {
	if len(r.buf) < limit {
		r.buf = append(r.buf, ts)
		return
	}
	// full: overwrite the oldest slot
	r.buf[r.start] = ts
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th oldest timestamp.
func (r *ring) at(i int) time.Time {
	return r.buf[(r.start+i)%len(r.buf)]
}
