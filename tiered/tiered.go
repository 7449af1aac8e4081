// Package tiered puts a byte store behind the adaptive cache. Entries the
// core evicts for capacity are framed and spilled into a provider.Provider;
// a later miss promotes them back with their remaining TTL and tags.
// Tag invalidation stays correct across both tiers through per-tag
// generations kept in a genstore.GenStore.
package tiered

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/adaptcache"
	"github.com/unkn0wn-root/adaptcache/codec"
	"github.com/unkn0wn-root/adaptcache/genstore"
	"github.com/unkn0wn-root/adaptcache/internal/wire"
	"github.com/unkn0wn-root/adaptcache/provider"
)

const (
	defaultSpillTimeout = time.Second
	keyStripes          = 64
)

type Config[V any] struct {
	Namespace string            // required; spilled keys live under "spill:<ns>:"
	Provider  provider.Provider // required
	Codec     codec.Codec[V]    // required

	// GenStore holds tag generations. nil => an in-process genstore.Local,
	// owned and closed by the tiered cache.
	GenStore genstore.GenStore

	Logger adaptcache.Logger // nil => NopLogger

	// SpillTimeout bounds each provider write made on eviction. 0 => 1s.
	SpillTimeout time.Duration
}

// Stats adds tier counters to the core's snapshot.
type Stats struct {
	adaptcache.Stats
	Spilled     uint64 // evicted entries written to the provider
	Promoted    uint64 // spilled entries moved back into memory
	Stale       uint64 // spilled entries rejected as expired, invalidated or corrupt
	SpillErrors uint64 // encode or provider failures while spilling
}

// item is what the core holds: the value plus the generations its tags had
// when it was stored. An entry evicted after its tag was bumped therefore
// spills with the older generation and is rejected on promotion.
type item[V any] struct {
	v    V
	gens map[string]uint64
	inc  *incarnation
}

// incarnation identifies one stored value of a key. Set and Delete cancel the
// incarnation they supersede, so an eviction of it that has not reached the
// provider yet is never written. cancelled is guarded by the key's spill lock.
type incarnation struct {
	cancelled bool
}

type Cache[V any] struct {
	core    adaptcache.Cache[item[V]]
	ns      string
	prov    provider.Provider
	codec   codec.Codec[V]
	gens    genstore.GenStore
	ownGens bool
	log     adaptcache.Logger
	clock   adaptcache.Clock
	timeout time.Duration

	// Serializes the miss/promote path against Set and Delete of the same key,
	// so a promotion never overwrites a newer value.
	stripes [keyStripes]sync.Mutex
	// Orders a spill write against the cancel-and-delete of Set and Delete.
	// Always taken after a stripe lock, never before one.
	spillLocks [keyStripes]sync.Mutex

	liveMu sync.Mutex
	live   map[string]*incarnation // current incarnation per key, in memory or spilling

	spilled     atomic.Uint64
	promoted    atomic.Uint64
	stale       atomic.Uint64
	spillErrors atomic.Uint64
}

func New[V any](opts adaptcache.Options[V], cfg Config[V]) (*Cache[V], error) {
	if cfg.Namespace == "" {
		return nil, &adaptcache.ConfigError{Field: "Namespace", Reason: "required"}
	}
	if cfg.Provider == nil {
		return nil, &adaptcache.ConfigError{Field: "Provider", Reason: "required"}
	}
	if cfg.Codec == nil {
		return nil, &adaptcache.ConfigError{Field: "Codec", Reason: "required"}
	}

	c := &Cache[V]{
		ns:      cfg.Namespace,
		prov:    cfg.Provider,
		codec:   cfg.Codec,
		gens:    cfg.GenStore,
		log:     cfg.Logger,
		clock:   opts.Clock,
		timeout: coalesce(cfg.SpillTimeout, defaultSpillTimeout),
		live:    make(map[string]*incarnation),
	}
	if c.log == nil {
		c.log = adaptcache.NopLogger{}
	}
	if c.clock == nil {
		c.clock = adaptcache.SystemClock{}
	}
	if c.gens == nil {
		c.gens = genstore.NewLocal(0, 0)
		c.ownGens = true
	}

	core, err := adaptcache.New(c.wrapOptions(opts))
	if err != nil {
		if c.ownGens {
			_ = c.gens.Close(context.Background())
		}
		return nil, err
	}
	c.core = core
	return c, nil
}

// wrapOptions carries opts over to the item-holding core. Measure and
// OnRemove see the caller's values; evictions are spilled before the
// caller's OnRemove runs.
func (c *Cache[V]) wrapOptions(opts adaptcache.Options[V]) adaptcache.Options[item[V]] {
	measure := opts.Measure
	if measure == nil {
		measure = adaptcache.DefaultMeasure[V]
	}
	userOnRemove := opts.OnRemove

	return adaptcache.Options[item[V]]{
		CapacityBytes:         opts.CapacityBytes,
		CapacityCount:         opts.CapacityCount,
		DefaultTTL:            opts.DefaultTTL,
		SweepInterval:         opts.SweepInterval,
		DisableSweeper:        opts.DisableSweeper,
		EvictionFraction:      opts.EvictionFraction,
		Weights:               opts.Weights,
		FrequencyWindow:       opts.FrequencyWindow,
		HistorySize:           opts.HistorySize,
		ResetHistoryOnReplace: opts.ResetHistoryOnReplace,
		Measure:               func(it item[V]) int64 { return measure(it.v) },
		Clock:                 c.clock,
		Logger:                opts.Logger,
		Hooks:                 opts.Hooks,
		OnRemove: func(r adaptcache.Removal[item[V]]) {
			if r.Reason == adaptcache.ReasonEvicted {
				c.spill(r)
			}
			c.untrack(r.Key, r.Value.inc, nil)
			if userOnRemove != nil {
				userOnRemove(adaptcache.Removal[V]{
					Key:       r.Key,
					Value:     r.Value.v,
					Size:      r.Size,
					CreatedAt: r.CreatedAt,
					TTL:       r.TTL,
					Tags:      r.Tags,
					Reason:    r.Reason,
				})
			}
		},
	}
}

func (c *Cache[V]) spillKey(key string) string { return "spill:" + c.ns + ":" + key }

func (c *Cache[V]) stripe(key string) *sync.Mutex {
	return &c.stripes[xxhash.Sum64String(key)%keyStripes]
}

func (c *Cache[V]) spillLock(key string) *sync.Mutex {
	return &c.spillLocks[xxhash.Sum64String(key)%keyStripes]
}

// track makes inc the current incarnation of key and returns the previous one.
func (c *Cache[V]) track(key string, inc *incarnation) *incarnation {
	c.liveMu.Lock()
	prev := c.live[key]
	c.live[key] = inc
	c.liveMu.Unlock()
	return prev
}

// untrack forgets inc if it is still current for key, restoring prev when non-nil.
func (c *Cache[V]) untrack(key string, inc, prev *incarnation) {
	c.liveMu.Lock()
	if c.live[key] == inc {
		if prev != nil {
			c.live[key] = prev
		} else {
			delete(c.live, key)
		}
	}
	c.liveMu.Unlock()
}

// retire cancels inc and removes the spilled copy of key. Holding the spill
// lock means a concurrent spill either lands before the delete or sees the
// cancellation.
func (c *Cache[V]) retire(ctx context.Context, key string, inc *incarnation) {
	mu := c.spillLock(key)
	mu.Lock()
	defer mu.Unlock()

	if inc != nil {
		inc.cancelled = true
	}
	if err := c.prov.Del(ctx, c.spillKey(key)); err != nil {
		c.log.Warn("delete spilled copy failed", adaptcache.Fields{"key": key, "err": err})
	}
}

// Get returns the value for key from memory or, failing that, from the
// provider. A miss in both tiers returns adaptcache.ErrNotFound.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	if it, ok := c.core.Get(key); ok {
		return it.v, nil
	}

	sk := c.spillKey(key)
	raw, ok, err := c.prov.Get(ctx, sk)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, adaptcache.ErrNotFound
	}

	e, err := wire.DecodeEntry(raw)
	if err != nil {
		c.drop(ctx, sk, "corrupt", err)
		return zero, adaptcache.ErrNotFound
	}

	remaining := e.CreatedAt.Add(e.TTL).Sub(c.clock.Now())
	if remaining <= 0 {
		c.drop(ctx, sk, "expired", nil)
		return zero, adaptcache.ErrNotFound
	}

	fresh, err := c.tagsCurrent(ctx, e.Tags)
	if err != nil {
		return zero, err
	}
	if !fresh {
		c.drop(ctx, sk, "invalidated", nil)
		return zero, adaptcache.ErrNotFound
	}

	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.drop(ctx, sk, "undecodable", err)
		return zero, adaptcache.ErrNotFound
	}

	it := item[V]{v: v, inc: &incarnation{}}
	names := make([]string, len(e.Tags))
	if len(e.Tags) > 0 {
		it.gens = make(map[string]uint64, len(e.Tags))
	}
	for i, t := range e.Tags {
		names[i] = t.Name
		it.gens[t.Name] = t.Gen
	}
	// The frame is removed before the core insert: once the promoted value is
	// in memory it may be evicted and spilled again by another goroutine.
	c.retire(ctx, key, c.track(key, it.inc))
	if err := c.core.Set(key, it, adaptcache.WithTTL(remaining), adaptcache.WithTags(names...)); err != nil {
		c.untrack(key, it.inc, nil)
		c.log.Warn("promote failed", adaptcache.Fields{"key": key, "err": err})
		return v, nil
	}
	c.promoted.Add(1)
	return v, nil
}

func (c *Cache[V]) tagsCurrent(ctx context.Context, tags []wire.Tag) (bool, error) {
	if len(tags) == 0 {
		return true, nil
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	cur, err := c.gens.SnapshotMany(ctx, names)
	if err != nil {
		return false, err
	}
	for _, t := range tags {
		if cur[t.Name] != t.Gen {
			return false, nil
		}
	}
	return true, nil
}

func (c *Cache[V]) drop(ctx context.Context, sk, why string, cause error) {
	c.stale.Add(1)
	f := adaptcache.Fields{"key": sk, "reason": why}
	if cause != nil {
		f["err"] = cause
	}
	c.log.Debug("dropping spilled entry", f)
	if err := c.prov.Del(ctx, sk); err != nil {
		c.log.Warn("delete spilled copy failed", adaptcache.Fields{"key": sk, "err": err})
	}
}

// Set stores value in memory and removes any older spilled copy. Errors come
// from the core (ErrValueTooLarge) or from reading tag generations; provider
// failures are logged.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, opts ...adaptcache.SetOption) error {
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	it := item[V]{v: value, inc: &incarnation{}}
	if _, tags := adaptcache.ResolveSetOptions(opts...); len(tags) > 0 {
		gens, err := c.gens.SnapshotMany(ctx, tags)
		if err != nil {
			return err
		}
		it.gens = gens
	}
	prev := c.track(key, it.inc)
	if err := c.core.Set(key, it, opts...); err != nil {
		c.untrack(key, it.inc, prev)
		return err
	}
	c.retire(ctx, key, prev)
	return nil
}

// Delete removes key from both tiers. The result reports whether memory held
// a live value; a copy that existed only in the provider is removed but not
// reported, since providers do not say whether Del found anything.
// An eviction of key still on its way to the provider is cancelled.
func (c *Cache[V]) Delete(ctx context.Context, key string) bool {
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	ok := c.core.Delete(key)
	c.liveMu.Lock()
	inc := c.live[key]
	delete(c.live, key)
	c.liveMu.Unlock()
	c.retire(ctx, key, inc)
	return ok
}

// InvalidateByTag bumps the tag's generation, which retires every spilled
// entry carrying it, then removes the in-memory holders.
func (c *Cache[V]) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	if _, err := c.gens.Bump(ctx, tag); err != nil {
		return 0, err
	}
	return c.core.InvalidateByTag(tag), nil
}

func (c *Cache[V]) KeysForTag(tag string) []string { return c.core.KeysForTag(tag) }

func (c *Cache[V]) Len() int { return c.core.Len() }

func (c *Cache[V]) Sweep() int { return c.core.Sweep() }

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Stats:       c.core.Stats(),
		Spilled:     c.spilled.Load(),
		Promoted:    c.promoted.Load(),
		Stale:       c.stale.Load(),
		SpillErrors: c.spillErrors.Load(),
	}
}

// Close stops the core sweeper and closes the provider and an owned genstore.
func (c *Cache[V]) Close(ctx context.Context) error {
	err := c.core.Close(ctx)
	if perr := c.prov.Close(ctx); perr != nil {
		err = errors.Join(err, perr)
	}
	if c.ownGens {
		if gerr := c.gens.Close(ctx); gerr != nil {
			err = errors.Join(err, gerr)
		}
	}
	return err
}

// spill runs from OnRemove, after the core lock is released.
func (c *Cache[V]) spill(r adaptcache.Removal[item[V]]) {
	remaining := r.ExpiresAt().Sub(c.clock.Now())
	if remaining <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	payload, err := c.codec.Encode(r.Value.v)
	if err != nil {
		c.spillFailed(r.Key, "encode", err)
		return
	}

	tags := make([]wire.Tag, len(r.Tags))
	for i, t := range r.Tags {
		tags[i] = wire.Tag{Name: t, Gen: r.Value.gens[t]}
	}

	frame, err := wire.EncodeEntry(wire.Entry{
		CreatedAt: r.CreatedAt,
		TTL:       r.TTL,
		Tags:      tags,
		Payload:   payload,
	})
	if err != nil {
		c.spillFailed(r.Key, "frame", err)
		return
	}

	mu := c.spillLock(r.Key)
	mu.Lock()
	defer mu.Unlock()
	if r.Value.inc != nil && r.Value.inc.cancelled {
		c.log.Debug("spill cancelled by a later write", adaptcache.Fields{"key": r.Key})
		return
	}
	ok, err := c.prov.Set(ctx, c.spillKey(r.Key), frame, int64(len(frame)), remaining)
	if err != nil {
		c.spillFailed(r.Key, "provider", err)
		return
	}
	if !ok {
		c.log.Debug("provider rejected spill", adaptcache.Fields{"key": r.Key, "bytes": len(frame)})
		return
	}
	c.spilled.Add(1)
}

func (c *Cache[V]) spillFailed(key, stage string, err error) {
	c.spillErrors.Add(1)
	c.log.Warn("spill failed", adaptcache.Fields{"key": key, "stage": stage, "err": err})
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
