package adaptcache

import (
	"context"
	"time"
)

// MeasureFunc returns the size in bytes charged against the budget for v.
// It must be deterministic and free of side effects.
type MeasureFunc[V any] func(v V) int64

// Cache is the public API of the adaptive cache. All methods are safe for
// concurrent use.
type Cache[V any] interface {
	// Get returns the value for key. Absent and TTL-expired keys report ok=false.
	Get(key string) (v V, ok bool)
	// Set inserts or replaces key. The only error is a value that cannot fit
	// the configured byte budget on its own (ErrValueTooLarge).
	Set(key string, value V, opts ...SetOption) error
	// Delete removes key and reports whether it was present.
	Delete(key string) bool
	// InvalidateByTag removes every key carrying tag and returns how many were removed.
	InvalidateByTag(tag string) int
	// KeysForTag returns the keys currently indexed under tag, sorted.
	KeysForTag(tag string) []string

	Stats() Stats
	Len() int

	// Sweep runs one expiry pass immediately and returns the number of entries removed.
	Sweep() int
	// Close stops the background sweeper. The cache remains usable.
	Close(ctx context.Context) error
}

// Options configure a cache. Exactly one of CapacityBytes and CapacityCount
// must be set, and DefaultTTL is required; everything else has defaults.
type Options[V any] struct {
	// Budget (exactly one)
	CapacityBytes int64
	CapacityCount int

	DefaultTTL time.Duration // required, > 0

	SweepInterval  time.Duration // 0 => DefaultTTL/10 (floored at 10ms)
	DisableSweeper bool          // lazy expiry on Get still applies

	EvictionFraction float64       // 0 => 0.2; evict down to (1-f) of the budget
	Weights          ScoreWeights  // zero => DefaultScoreWeights()
	FrequencyWindow  time.Duration // 0 => 60s
	HistorySize      int           // accesses kept per key; 0 => 100

	// ResetHistoryOnReplace drops a key's access history when Set replaces it.
	ResetHistoryOnReplace bool

	Measure MeasureFunc[V] // nil => byte length ([]byte/string) or msgpack-encoded length
	Clock   Clock          // nil => SystemClock
	Logger  Logger         // nil => NopLogger
	Hooks   Hooks          // nil => NopHooks

	// OnRemove is told about every destroyed entry, after the cache lock is released.
	OnRemove func(Removal[V])
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl  time.Duration
	tags []string
}

// WithTTL overrides the default TTL for one entry. ttl <= 0 keeps the default.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WithTags labels the entry for InvalidateByTag. Repeated calls accumulate.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = append(o.tags, tags...) }
}

// ResolveSetOptions returns the TTL (0 when unset) and the normalized tag set
// that opts produce. Layers wrapping a Cache use it to see what an entry will
// be stored with.
func ResolveSetOptions(opts ...SetOption) (ttl time.Duration, tags []string) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.ttl, normalizeTags(o.tags)
}

// RemovalReason says why an entry was destroyed.
type RemovalReason uint8

const (
	ReasonDeleted RemovalReason = iota + 1
	ReasonExpired
	ReasonEvicted
	ReasonInvalidated
	ReasonReplaced
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonDeleted:
		return "deleted"
	case ReasonExpired:
		return "expired"
	case ReasonEvicted:
		return "evicted"
	case ReasonInvalidated:
		return "invalidated"
	case ReasonReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Removal describes an entry that left the cache.
type Removal[V any] struct {
	Key       string
	Value     V
	Size      int64
	CreatedAt time.Time
	TTL       time.Duration
	Tags      []string
	Reason    RemovalReason
}

// ExpiresAt is the instant after which the removed entry would have been dead anyway.
func (r Removal[V]) ExpiresAt() time.Time { return r.CreatedAt.Add(r.TTL) }

// New validates opts and returns a ready cache. A background sweeper starts
// unless DisableSweeper is set; stop it with Close.
func New[V any](opts Options[V]) (Cache[V], error) {
	s, err := newStore[V](opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
