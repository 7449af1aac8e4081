package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares tag generations across processes and survives restarts.
// Optionally, a TTL can be applied to generation keys to prevent unbounded growth.
// The TTL must outlive any spilled entry, otherwise an invalidated tag reads
// as generation 0 again and stale entries recorded at 0 become visible.
type Redis struct {
	rdb redis.UniversalClient
	ns  string        // logical namespace; should match tiered Config.Namespace
	ttl time.Duration // optional TTL for generation keys; 0 disables expiry
}

var _ GenStore = (*Redis)(nil)

// NewRedis creates a Redis-backed generation store without TTL.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed generation store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(tag string) string { return "taggen:" + s.ns + ":" + tag }

// Snapshot returns the current generation of tag.
// Missing tags are treated as generation 0.
func (s *Redis) Snapshot(ctx context.Context, tag string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(tag)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

// SnapshotMany returns generations for multiple tags in one MGET.
// Missing tags map to 0.
func (s *Redis) SnapshotMany(ctx context.Context, tags []string) (map[string]uint64, error) {
	if len(tags) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = s.key(t)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(tags))
	for i, v := range vals {
		u, err := parseGen(v)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", tags[i], err)
		}
		out[tags[i]] = u
	}
	return out, nil
}

func parseGen(v any) (uint64, error) {
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseUint(vv, 10, 64)
	case []byte:
		return strconv.ParseUint(string(vv), 10, 64)
	default:
		return strconv.ParseUint(fmt.Sprint(vv), 10, 64)
	}
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip and the
// INCR result is captured from the pipeline (no extra INCR).
func (s *Redis) Bump(ctx context.Context, tag string) (uint64, error) {
	k := s.key(tag)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is not applicable for Redis (Redis handles expiry if TTL is set).
func (s *Redis) Cleanup(time.Duration) {}

// Close is a no-op; the caller owns the client.
func (s *Redis) Close(context.Context) error { return nil }
