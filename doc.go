// Package adaptcache implements an in-memory cache bounded by a byte or entry
// budget. Entries expire by TTL and, when the budget is exceeded, victims are
// chosen by a weighted composite score over age, idle time, recent access
// frequency and size rather than plain recency or plain frequency.
//
// Components:
//   - Store: entry table, tag index and access tracker behind one mutex.
//   - Scorer: stateless ranking of eviction candidates.
//   - Sweeper: background pass removing TTL-expired entries.
//   - Stats: hit/miss/eviction/expiry counters plus a size snapshot.
//
// Eviction runs in batches: once a Set would overflow the budget, all entries
// are ranked and removed from the head of the ranking until usage drops to
// (1 - EvictionFraction) of the budget.
//
// Usage:
//
//	c, err := adaptcache.New[[]byte](adaptcache.Options[[]byte]{
//	    CapacityBytes: 64 << 20,
//	    DefaultTTL:    10 * time.Minute,
//	})
//	_ = c.Set("user:1", payload, adaptcache.WithTags("user"))
//	v, ok := c.Get("user:1")
//	n := c.InvalidateByTag("user")
//
// Values are stored as given. Encoding or compression belongs to the caller
// (see the codec and tiered packages).
package adaptcache
