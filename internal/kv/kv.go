// Package kv defines the key-value store capability consumed by the catalog
// core. Every operation is atomic with respect to its single key; there are
// no multi-key transactions. Callers that need multi-key consistency must
// sequence their own writes.
package kv

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a key, hash field, or counter does not exist.
var ErrNotFound = errors.New("key not found")

// ScoredMember is one entry of a sorted set together with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the set of single-key atomic primitives the catalog core relies
// on. Implementations map these onto Redis commands (INCR, HSET, SADD,
// ZINCRBY, HSCAN, ...) or an in-memory equivalent for tests.
//
// Any error other than ErrNotFound means the store was unreachable or the
// command failed; callers must treat such errors as "effect unknown" and
// abort the current operation.
type Store interface {
	// IncrCounter atomically increments the named counter and returns the
	// new value. A missing counter starts at zero.
	IncrCounter(ctx context.Context, name string) (int64, error)

	// GetScalar returns the raw value stored at key, or ErrNotFound.
	GetScalar(ctx context.Context, key string) ([]byte, error)
	// SetScalar stores value at key, overwriting any previous value.
	SetScalar(ctx context.Context, key string, value []byte) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// GetHash returns all fields of the hash at key. A missing key yields
	// an empty map, never an error.
	GetHash(ctx context.Context, key string) (map[string]string, error)
	// SetHashFields writes the given fields into the hash at key, creating
	// it if absent. Fields not named are left untouched.
	SetHashFields(ctx context.Context, key string, fields map[string]string) error
	// GetHashField returns a single hash field, or ErrNotFound.
	GetHashField(ctx context.Context, key, field string) (string, error)
	// DeleteHashFields removes fields from the hash at key and reports
	// whether at least one field was removed.
	DeleteHashFields(ctx context.Context, key string, fields ...string) (bool, error)

	// AddToSet adds members to the set at key.
	AddToSet(ctx context.Context, key string, members ...string) error
	// RemoveFromSet removes members from the set at key and returns how
	// many were actually removed.
	RemoveFromSet(ctx context.Context, key string, members ...string) (int64, error)
	// SetMembers returns all members of the set at key. A missing key
	// yields an empty slice.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// IncrSortedSetScore adds delta to member's score in the sorted set at
	// key and returns the new score. A missing member starts at zero.
	IncrSortedSetScore(ctx context.Context, key, member string, delta float64) (float64, error)
	// SortedSetByScoreDesc returns the whole sorted set ordered by score,
	// highest first.
	SortedSetByScoreDesc(ctx context.Context, key string) ([]ScoredMember, error)

	// ScanHashFields iterates over hash fields whose names match the glob
	// pattern, invoking fn for each field/value pair. Iteration is
	// cursor-based underneath and may take several round trips; the order
	// is unspecified and not stable across runs. Returning an error from
	// fn stops the scan and propagates that error.
	ScanHashFields(ctx context.Context, key, pattern string, fn func(field, value string) error) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
