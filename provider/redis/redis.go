// Package redis keeps spilled frames in Redis, where a restarted process or a
// sibling instance sharing the namespace can promote them.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/adaptcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Store writes each frame under Prefix+key.
type Store struct {
	rdb         goredis.UniversalClient
	ownsClient  bool
	prefix      string
	maxTTL      time.Duration
	maxFrameLen int
}

var _ pr.Provider = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient
	// OwnsClient makes Close close Client. Leave false when the client is
	// shared with other code.
	OwnsClient bool
	// Prefix is prepended to every key, e.g. "svc-a:" when several services
	// spill into one database.
	Prefix string
	// MaxTTL caps the expiry of every frame. Frames without an expiry get
	// MaxTTL. 0 keeps the caller's TTL.
	MaxTTL time.Duration
	// MaxFrameLen refuses larger frames without a round trip. 0 disables.
	MaxFrameLen int
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{
		rdb:         cfg.Client,
		ownsClient:  cfg.OwnsClient,
		prefix:      cfg.Prefix,
		maxTTL:      cfg.MaxTTL,
		maxFrameLen: cfg.MaxFrameLen,
	}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

// expiry maps a caller TTL to the one sent to Redis, where 0 means none.
func (s *Store) expiry(ttl time.Duration) time.Duration {
	if ttl < 0 {
		ttl = 0
	}
	if s.maxTTL > 0 && (ttl == 0 || ttl > s.maxTTL) {
		return s.maxTTL
	}
	return ttl
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set reports false for a frame over MaxFrameLen, which is then simply not
// spilled.
func (s *Store) Set(ctx context.Context, key string, frame []byte, _ int64, ttl time.Duration) (bool, error) {
	if s.maxFrameLen > 0 && len(frame) > s.maxFrameLen {
		return false, nil
	}
	if err := s.rdb.Set(ctx, s.key(key), frame, s.expiry(ttl)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Close closes the client when the store owns it. Repeated calls are no-ops.
func (s *Store) Close(context.Context) error {
	if !s.ownsClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
