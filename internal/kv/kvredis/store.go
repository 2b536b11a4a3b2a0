// Package kvredis implements kv.Store on top of Redis.
package kvredis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/kv-catalog/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a kv.Store backed by a Redis client. All commands are single-key
// and rely on Redis's per-command atomicity.
type Store struct {
	rdb *goredis.Client
}

// New connects to Redis using the given URL (redis://host:port/db) and
// verifies the connection with a ping before returning.
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	return &Store{rdb: rdb}, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of the
// client's lifecycle.
func NewFromClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying client's connections.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// IncrCounter atomically increments the named counter.
func (s *Store) IncrCounter(ctx context.Context, name string) (int64, error) {
	n, err := s.rdb.Incr(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", name, err)
	}
	return n, nil
}

// GetScalar returns the raw value stored at key.
func (s *Store) GetScalar(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}
	return v, nil
}

// SetScalar stores value at key.
func (s *Store) SetScalar(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("deleting %q: %w", key, err)
	}
	return n > 0, nil
}

// GetHash returns all fields of the hash at key.
func (s *Store) GetHash(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("getting hash %q: %w", key, err)
	}
	return m, nil
}

// SetHashFields writes fields into the hash at key.
func (s *Store) SetHashFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	if err := s.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("setting hash fields on %q: %w", key, err)
	}
	return nil
}

// GetHashField returns a single field of the hash at key.
func (s *Store) GetHashField(ctx context.Context, key, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", kv.ErrNotFound
		}
		return "", fmt.Errorf("getting hash field %q of %q: %w", field, key, err)
	}
	return v, nil
}

// DeleteHashFields removes fields from the hash at key.
func (s *Store) DeleteHashFields(ctx context.Context, key string, fields ...string) (bool, error) {
	n, err := s.rdb.HDel(ctx, key, fields...).Result()
	if err != nil {
		return false, fmt.Errorf("deleting hash fields of %q: %w", key, err)
	}
	return n > 0, nil
}

// AddToSet adds members to the set at key.
func (s *Store) AddToSet(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("adding to set %q: %w", key, err)
	}
	return nil
}

// RemoveFromSet removes members from the set at key and returns how many
// were actually removed.
func (s *Store) RemoveFromSet(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.rdb.SRem(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("removing from set %q: %w", key, err)
	}
	return n, nil
}

// SetMembers returns all members of the set at key.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading set %q: %w", key, err)
	}
	return members, nil
}

// IncrSortedSetScore adds delta to member's score in the sorted set at key.
func (s *Store) IncrSortedSetScore(ctx context.Context, key, member string, delta float64) (float64, error) {
	score, err := s.rdb.ZIncrBy(ctx, key, delta, member).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing score of %q in %q: %w", member, key, err)
	}
	return score, nil
}

// SortedSetByScoreDesc returns the whole sorted set ordered by score,
// highest first.
func (s *Store) SortedSetByScoreDesc(ctx context.Context, key string) ([]kv.ScoredMember, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ranging sorted set %q: %w", key, err)
	}
	members := make([]kv.ScoredMember, len(zs))
	for i, z := range zs {
		members[i] = kv.ScoredMember{
			Member: fmt.Sprint(z.Member),
			Score:  z.Score,
		}
	}
	return members, nil
}

// ScanHashFields iterates over matching hash fields with HSCAN. Each scan
// page is one round trip; large hashes take several.
func (s *Store) ScanHashFields(ctx context.Context, key, pattern string, fn func(field, value string) error) error {
	var cursor uint64
	for {
		pairs, next, err := s.rdb.HScan(ctx, key, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scanning hash %q: %w", key, err)
		}
		// HSCAN returns alternating field, value entries.
		for i := 0; i+1 < len(pairs); i += 2 {
			if err := fn(pairs[i], pairs[i+1]); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
