package adaptcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/adaptcache/internal/tagindex"
	"github.com/unkn0wn-root/adaptcache/internal/tracker"
)

// entry is one stored value plus its bookkeeping.
type entry[V any] struct {
	key            string
	value          V
	size           int64
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    uint64
	ttl            time.Duration
	tags           []string
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

func (e *entry[V]) removal(reason RemovalReason) Removal[V] {
	return Removal[V]{
		Key:       e.key,
		Value:     e.value,
		Size:      e.size,
		CreatedAt: e.createdAt,
		TTL:       e.ttl,
		Tags:      e.tags,
		Reason:    reason,
	}
}

type store[V any] struct {
	log      Logger
	hooks    Hooks
	clock    Clock
	measure  MeasureFunc[V]
	onRemove func(Removal[V])

	capBytes     int64
	capCount     int
	defaultTTL   time.Duration
	fraction     float64
	window       time.Duration
	resetHistory bool
	scorer       Scorer

	// mu guards the entry table, tag index and tracker as one unit.
	mu        sync.Mutex
	entries   map[string]*entry[V]
	tags      *tagindex.Index
	tracker   *tracker.Tracker
	usedBytes int64

	stats   statsCollector
	sweeper *sweeper // nil when disabled
}

func newStore[V any](opts Options[V]) (*store[V], error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	s := &store[V]{
		capBytes:     opts.CapacityBytes,
		capCount:     opts.CapacityCount,
		defaultTTL:   opts.DefaultTTL,
		resetHistory: opts.ResetHistoryOnReplace,
		onRemove:     opts.OnRemove,
		entries:      make(map[string]*entry[V]),
		tags:         tagindex.New(),
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.clock = coalesce[Clock](opts.Clock, SystemClock{})
	s.fraction = coalesce(opts.EvictionFraction, defaultEvictionFraction)
	s.window = coalesce(opts.FrequencyWindow, defaultFrequencyWindow)
	s.tracker = tracker.New(coalesce(opts.HistorySize, defaultHistorySize))
	s.scorer = Scorer{Weights: coalesce(opts.Weights, DefaultScoreWeights())}

	if opts.Measure != nil {
		s.measure = opts.Measure
	} else {
		s.measure = DefaultMeasure[V]
	}

	if !opts.DisableSweeper {
		interval := sweepInterval(opts.SweepInterval, opts.DefaultTTL)
		s.sweeper = startSweeper(interval, func() { s.Sweep() })
		s.log.Debug("expiry sweeper started", Fields{"interval": interval})
	}
	return s, nil
}

func validate[V any](opts Options[V]) error {
	switch {
	case opts.CapacityBytes < 0:
		return &ConfigError{Field: "CapacityBytes", Reason: "must not be negative"}
	case opts.CapacityCount < 0:
		return &ConfigError{Field: "CapacityCount", Reason: "must not be negative"}
	case opts.CapacityBytes == 0 && opts.CapacityCount == 0:
		return &ConfigError{Field: "CapacityBytes/CapacityCount", Reason: "one budget is required"}
	case opts.CapacityBytes > 0 && opts.CapacityCount > 0:
		return &ConfigError{Field: "CapacityBytes/CapacityCount", Reason: "only one budget may be set"}
	case opts.DefaultTTL <= 0:
		return &ConfigError{Field: "DefaultTTL", Reason: "must be positive"}
	case opts.SweepInterval < 0:
		return &ConfigError{Field: "SweepInterval", Reason: "must not be negative"}
	case opts.EvictionFraction < 0 || opts.EvictionFraction >= 1:
		return &ConfigError{Field: "EvictionFraction", Reason: "must be in (0, 1)"}
	case !opts.Weights.valid():
		return &ConfigError{Field: "Weights", Reason: "must not be negative"}
	case opts.FrequencyWindow < 0:
		return &ConfigError{Field: "FrequencyWindow", Reason: "must not be negative"}
	case opts.HistorySize < 0:
		return &ConfigError{Field: "HistorySize", Reason: "must not be negative"}
	}
	return nil
}

func (s *store[V]) Get(key string) (V, bool) {
	var zero V

	s.mu.Lock()
	now := s.clock.Now()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		s.stats.miss()
		return zero, false
	}
	if e.expired(now) {
		// dead before the sweeper got to it
		ev := s.detachLocked(e, ReasonExpired)
		s.mu.Unlock()
		s.stats.miss()
		s.notify([]Removal[V]{ev})
		return zero, false
	}
	e.accessCount++
	e.lastAccessedAt = now
	s.tracker.Record(key, now)
	v := e.value
	s.mu.Unlock()

	s.stats.hit()
	return v, true
}

func (s *store[V]) Set(key string, value V, opts ...SetOption) error {
	ttl, tags := ResolveSetOptions(opts...)
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	size := s.measure(value)
	if size < 0 {
		s.log.Warn("measure returned negative size; charging 0", Fields{"key": key, "size": size})
		size = 0
	}
	if s.capBytes > 0 && size > s.capBytes {
		s.hooks.ValueRejected(key, size, s.capBytes)
		return &TooLargeError{Key: key, Size: size, Budget: s.capBytes}
	}

	s.mu.Lock()
	now := s.clock.Now()
	var evs []Removal[V]
	if old, ok := s.entries[key]; ok {
		evs = append(evs, s.detachLocked(old, ReasonReplaced))
	}
	var batch evictionBatch
	if s.overLocked(size) {
		evs, batch = s.makeRoomLocked(size, now, evs)
	}
	s.entries[key] = &entry[V]{
		key:            key,
		value:          value,
		size:           size,
		createdAt:      now,
		lastAccessedAt: now,
		ttl:            ttl,
		tags:           tags,
	}
	for _, t := range tags {
		s.tags.Add(t, key)
	}
	s.usedBytes += size
	s.mu.Unlock()

	if batch.ranked > 0 {
		s.log.Debug("eviction batch", Fields{
			"key":     key,
			"ranked":  batch.ranked,
			"evicted": batch.evicted,
			"target":  batch.target,
		})
	}
	s.notify(evs)
	return nil
}

func (s *store[V]) Delete(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	// an expired entry was already logically gone
	reason := ReasonDeleted
	if e.expired(s.clock.Now()) {
		reason = ReasonExpired
	}
	ev := s.detachLocked(e, reason)
	s.mu.Unlock()

	s.notify([]Removal[V]{ev})
	return reason == ReasonDeleted
}

func (s *store[V]) InvalidateByTag(tag string) int {
	s.mu.Lock()
	keys := s.tags.Keys(tag)
	evs := make([]Removal[V], 0, len(keys))
	for _, k := range keys {
		evs = append(evs, s.detachLocked(s.entries[k], ReasonInvalidated))
	}
	s.mu.Unlock()

	s.hooks.TagInvalidated(tag, len(evs))
	if len(evs) > 0 {
		s.log.Debug("invalidated tag", Fields{"tag": tag, "removed": len(evs)})
	}
	s.notify(evs)
	return len(evs)
}

func (s *store[V]) KeysForTag(tag string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.Keys(tag)
}

func (s *store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot(s.usedBytes, len(s.entries))
}

func (s *store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes every entry whose TTL has elapsed.
func (s *store[V]) Sweep() int {
	start := time.Now()

	s.mu.Lock()
	evs := s.purgeExpiredLocked(s.clock.Now(), nil)
	s.mu.Unlock()

	s.notify(evs)
	took := time.Since(start)
	s.hooks.Swept(len(evs), took)
	if len(evs) > 0 {
		s.log.Debug("sweep removed expired entries", Fields{"removed": len(evs), "took": took})
	}
	return len(evs)
}

func (s *store[V]) Close(ctx context.Context) error {
	if s.sweeper == nil {
		return nil
	}
	s.sweeper.stop()
	select {
	case <-s.sweeper.done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type evictionBatch struct {
	ranked  int
	evicted int
	target  float64
}

// makeRoomLocked frees space for an incoming entry of the given size. Expired
// entries go first; if that is not enough, the whole population is ranked and
// removed from the head until usage is at or below the batch target and the
// incoming entry fits.
func (s *store[V]) makeRoomLocked(incoming int64, now time.Time, evs []Removal[V]) ([]Removal[V], evictionBatch) {
	evs = s.purgeExpiredLocked(now, evs)
	if !s.overLocked(incoming) {
		return evs, evictionBatch{}
	}

	b := evictionBatch{target: s.budget() * (1 - s.fraction)}
	ranked := s.scorer.Rank(s.candidatesLocked(now), now)
	b.ranked = len(ranked)
	for _, c := range ranked {
		if s.usageLocked() <= b.target && !s.overLocked(incoming) {
			break
		}
		evs = append(evs, s.detachLocked(s.entries[c.Key], ReasonEvicted))
		b.evicted++
	}
	return evs, b
}

func (s *store[V]) purgeExpiredLocked(now time.Time, evs []Removal[V]) []Removal[V] {
	for _, e := range s.entries {
		if e.expired(now) {
			evs = append(evs, s.detachLocked(e, ReasonExpired))
		}
	}
	return evs
}

func (s *store[V]) candidatesLocked(now time.Time) []Candidate {
	out := make([]Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Candidate{
			Key:            e.key,
			Size:           e.size,
			CreatedAt:      e.createdAt,
			LastAccessedAt: e.lastAccessedAt,
			AccessCount:    e.accessCount,
			Frequency:      s.tracker.Frequency(e.key, now, s.window),
		})
	}
	return out
}

// detachLocked is the single removal path: entry table, tag index, byte
// usage and access history change together.
func (s *store[V]) detachLocked(e *entry[V], reason RemovalReason) Removal[V] {
	delete(s.entries, e.key)
	for _, t := range e.tags {
		s.tags.Remove(t, e.key)
	}
	s.usedBytes -= e.size
	if reason != ReasonReplaced || s.resetHistory {
		s.tracker.Forget(e.key)
	}
	switch reason {
	case ReasonEvicted:
		s.stats.evicted(1)
	case ReasonExpired:
		s.stats.expired(1)
	}
	return e.removal(reason)
}

func (s *store[V]) budget() float64 {
	if s.capBytes > 0 {
		return float64(s.capBytes)
	}
	return float64(s.capCount)
}

func (s *store[V]) usageLocked() float64 {
	if s.capBytes > 0 {
		return float64(s.usedBytes)
	}
	return float64(len(s.entries))
}

// overLocked reports whether adding an entry of the given size would exceed the budget.
func (s *store[V]) overLocked(incoming int64) bool {
	if s.capBytes > 0 {
		return s.usedBytes+incoming > s.capBytes
	}
	return len(s.entries)+1 > s.capCount
}

// notify runs hooks and OnRemove. Callers must not hold s.mu.
func (s *store[V]) notify(evs []Removal[V]) {
	for _, ev := range evs {
		switch ev.Reason {
		case ReasonEvicted:
			s.hooks.Evicted(ev.Key, ev.Size)
		case ReasonExpired:
			s.hooks.Expired(ev.Key)
		}
		if s.onRemove != nil {
			s.onRemove(ev)
		}
	}
}

// normalizeTags drops empty and duplicate tags and sorts the rest.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
