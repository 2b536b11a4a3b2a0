// Package kvmem provides an in-memory kv.Store used by unit tests and local
// runs without a Redis instance. All operations take the same single-key
// atomicity guarantees as the Redis implementation: one mutex guards the
// whole store, so every call is atomic, and no two calls are.
package kvmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xenking/kv-catalog/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a mutex-guarded map-based kv.Store.
type Store struct {
	mu       sync.RWMutex
	counters map[string]int64
	scalars  map[string][]byte
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	zsets    map[string]map[string]float64

	// FailNext, when non-nil, is consulted before every mutating call with
	// the operation name and key. Returning an error makes the call fail
	// without effect. Tests use this to cut a choreography short at a
	// chosen step.
	FailNext func(op, key string) error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		counters: make(map[string]int64),
		scalars:  make(map[string][]byte),
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		zsets:    make(map[string]map[string]float64),
	}
}

func (s *Store) fail(op, key string) error {
	if s.FailNext == nil {
		return nil
	}
	return s.FailNext(op, key)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// IncrCounter atomically increments the named counter.
func (s *Store) IncrCounter(_ context.Context, name string) (int64, error) {
	if err := s.fail("incr", name); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

// GetScalar returns the raw value stored at key.
func (s *Store) GetScalar(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scalars[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// SetScalar stores value at key.
func (s *Store) SetScalar(_ context.Context, key string, value []byte) error {
	if err := s.fail("set", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.scalars[key] = v
	return nil
}

// Delete removes key of any type and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	if err := s.fail("del", key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := false
	if _, ok := s.scalars[key]; ok {
		delete(s.scalars, key)
		existed = true
	}
	if _, ok := s.hashes[key]; ok {
		delete(s.hashes, key)
		existed = true
	}
	if _, ok := s.sets[key]; ok {
		delete(s.sets, key)
		existed = true
	}
	if _, ok := s.zsets[key]; ok {
		delete(s.zsets, key)
		existed = true
	}
	return existed, nil
}

// GetHash returns a copy of all fields of the hash at key.
func (s *Store) GetHash(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

// SetHashFields writes fields into the hash at key.
func (s *Store) SetHashFields(_ context.Context, key string, fields map[string]string) error {
	if err := s.fail("hset", key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

// GetHashField returns a single field of the hash at key.
func (s *Store) GetHashField(_ context.Context, key, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.hashes[key][field]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

// DeleteHashFields removes fields from the hash at key. Deleting the last
// field removes the hash itself, matching Redis behaviour.
func (s *Store) DeleteHashFields(_ context.Context, key string, fields ...string) (bool, error) {
	if err := s.fail("hdel", key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return false, nil
	}
	removed := false
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			removed = true
		}
	}
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return removed, nil
}

// AddToSet adds members to the set at key.
func (s *Store) AddToSet(_ context.Context, key string, members ...string) error {
	if err := s.fail("sadd", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// RemoveFromSet removes members from the set at key and returns how many
// were actually removed.
func (s *Store) RemoveFromSet(_ context.Context, key string, members ...string) (int64, error) {
	if err := s.fail("srem", key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, ok := set[m]; ok {
			delete(set, m)
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

// SetMembers returns all members of the set at key.
func (s *Store) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

// IncrSortedSetScore adds delta to member's score in the sorted set at key.
func (s *Store) IncrSortedSetScore(_ context.Context, key, member string, delta float64) (float64, error) {
	if err := s.fail("zincrby", key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] += delta
	return z[member], nil
}

// SortedSetByScoreDesc returns the whole sorted set ordered by score,
// highest first. Ties break lexicographically for determinism.
func (s *Store) SortedSetByScoreDesc(_ context.Context, key string) ([]kv.ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]kv.ScoredMember, 0, len(s.zsets[key]))
	for m, score := range s.zsets[key] {
		out = append(out, kv.ScoredMember{Member: m, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out, nil
}

// ScanHashFields iterates over hash fields whose names match the glob
// pattern. The snapshot is taken under the lock so fn runs without it.
func (s *Store) ScanHashFields(_ context.Context, key, pattern string, fn func(field, value string) error) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		snapshot[f] = v
	}
	s.mu.RUnlock()

	for f, v := range snapshot {
		if !globMatch(pattern, f) {
			continue
		}
		if err := fn(f, v); err != nil {
			return err
		}
	}
	return nil
}

// globMatch implements the subset of Redis MATCH globbing the catalog uses:
// '*' (any run), '?' (any single byte), and '\' escaping the next byte to a
// literal. No character classes.
func globMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	// Fast path for the common "*sub*" shape with a purely literal middle.
	// "*" alone has no middle and falls through to the general matcher.
	if len(pattern) >= 2 && pattern[0] == '*' && pattern[len(pattern)-1] == '*' {
		inner := pattern[1 : len(pattern)-1]
		if !strings.ContainsAny(inner, `*?\`) {
			return strings.Contains(s, inner)
		}
	}
	return globMatchRec(pattern, s)
}

func globMatchRec(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(s); i >= 0; i-- {
				if globMatchRec(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			// A backslash escapes the next byte; a trailing backslash
			// matches itself, like Redis.
			if pattern[0] == '\\' && len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}
