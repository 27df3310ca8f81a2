// Package rediscache puts a Redis read-through cache in front of another store.Store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/redis/go-redis/v9"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

// DefaultTTL bounds how long a cached record may outlive a write made by another process.
const DefaultTTL = time.Hour

var _ store.Store = (*Store)(nil)

// Store caches Get results in Redis and invalidates them on every write.
// Redis failures are logged and fall through to the wrapped store.
type Store struct {
	next   store.Store
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New parses redisURL, waits for the server to answer, and wraps next.
func New(ctx context.Context, next store.Store, redisURL string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	s := NewWithClient(next, redis.NewClient(ropts), opts...)

	err = retry.Do(
		func() error { return s.rdb.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			s.logger.WarnContext(ctx, "redis not ready", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		s.rdb.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

// NewWithClient wraps next using an existing Redis client.
func NewWithClient(next store.Store, rdb *redis.Client, opts ...Option) *Store {
	s := &Store{next: next, rdb: rdb, logger: slog.Default(), ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(handle string, p profile.Platform) string {
	return "profile:" + string(p) + ":" + handle
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	k := key(handle, p)
	data, err := s.rdb.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var prof profile.Profile
		if jerr := json.Unmarshal(data, &prof); jerr == nil {
			return &prof, nil
		}
		s.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", k)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.WarnContext(ctx, "redis get failed", "key", k, "error", err)
	}

	prof, err := s.next.Get(ctx, handle, p)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(prof); err == nil {
		if err := s.rdb.Set(ctx, k, data, s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "redis set failed", "key", k, "error", err)
		}
	}
	return prof, nil
}

// List implements store.Store. Lists are never cached.
func (s *Store) List(ctx context.Context, p profile.Platform) ([]*profile.Profile, error) {
	return s.next.List(ctx, p)
}

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, prof *profile.Profile) error {
	if err := s.next.Upsert(ctx, prof); err != nil {
		return err
	}
	s.invalidate(ctx, prof.Handle, prof.Platform)
	return nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, prof *profile.Profile) error {
	if err := s.next.Update(ctx, prof); err != nil {
		return err
	}
	s.invalidate(ctx, prof.Handle, prof.Platform)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, handle string, p profile.Platform) error {
	err := s.next.Delete(ctx, handle, p)
	s.invalidate(ctx, handle, p)
	return err
}

func (s *Store) invalidate(ctx context.Context, handle string, p profile.Platform) {
	if err := s.rdb.Del(ctx, key(handle, p)).Err(); err != nil {
		s.logger.WarnContext(ctx, "redis delete failed", "key", key(handle, p), "error", err)
	}
}

// Close closes the Redis client and the wrapped store.
func (s *Store) Close() error {
	return errors.Join(s.rdb.Close(), s.next.Close())
}
