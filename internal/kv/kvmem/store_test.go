package kvmem

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kv-catalog/internal/kv"
)

func TestStore_Counters(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, err := s.IncrCounter(ctx, "ID:PRODUCT")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.IncrCounter(ctx, "ID:PRODUCT")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_ScalarRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetScalar(ctx, "k")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.SetScalar(ctx, "k", []byte("v")))
	v, err := s.GetScalar(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	removed, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_HashFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetHashFields(ctx, "h", map[string]string{"a": "1", "b": "2"}))

	m, err := s.GetHash(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m)

	v, err := s.GetHashField(ctx, "h", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = s.GetHashField(ctx, "h", "z")
	require.ErrorIs(t, err, kv.ErrNotFound)

	removed, err := s.DeleteHashFields(ctx, "h", "a")
	require.NoError(t, err)
	assert.True(t, removed)

	// Deleting the last field removes the hash, like Redis.
	_, err = s.DeleteHashFields(ctx, "h", "b")
	require.NoError(t, err)
	m, err = s.GetHash(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestStore_SortedSetOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.IncrSortedSetScore(ctx, "z", "low", 1)
	require.NoError(t, err)
	_, err = s.IncrSortedSetScore(ctx, "z", "high", 5)
	require.NoError(t, err)
	score, err := s.IncrSortedSetScore(ctx, "z", "high", -2)
	require.NoError(t, err)
	assert.Equal(t, float64(3), score)

	members, err := s.SortedSetByScoreDesc(ctx, "z")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "high", members[0].Member)
	assert.Equal(t, "low", members[1].Member)
}

func TestStore_ScanHashFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetHashFields(ctx, "idx", map[string]string{
		"Red Widget":  "1",
		"Blue Widget": "2",
		"Gadget":      "3",
	}))

	found := map[string]string{}
	err := s.ScanHashFields(ctx, "idx", "*Widget*", func(f, v string) error {
		found[f] = v
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Red Widget": "1", "Blue Widget": "2"}, found)

	// Errors from fn stop the scan and propagate.
	sentinel := errors.New("stop")
	err = s.ScanHashFields(ctx, "idx", "*", func(f, v string) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"*dget*", "Gadget", true},
		{"*dget*", "Widget", false},
		{"?adget", "Gadget", true},
		{"?adget", "adget", false},
		{"a*c", "abc", true},
		{"a*c", "ac", true},
		{"a*c", "ab", false},
		{"", "", true},
		{"", "x", false},
		// Backslash escapes turn metacharacters into literals.
		{`\*`, "*", true},
		{`\*`, "x", false},
		{`*\**`, "a*b", true},
		{`*\**`, "ab", false},
		{`*a\?b*`, "xa?by", true},
		{`*a\?b*`, "xaXby", false},
		{`\\`, `\`, true},
		{`\`, `\`, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globMatch(tt.pattern, tt.s), "pattern %q against %q", tt.pattern, tt.s)
	}
}

func TestStore_RemoveFromSetReportsCount(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.AddToSet(ctx, "set", "a", "b", "c"))

	n, err := s.RemoveFromSet(ctx, "set", "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.RemoveFromSet(ctx, "set", "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.RemoveFromSet(ctx, "absent", "a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_FailNext(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailNext = func(op, key string) error {
		if op == "sadd" {
			return boom
		}
		return nil
	}

	require.NoError(t, s.SetScalar(ctx, "k", []byte("v")))
	err := s.AddToSet(ctx, "set", "m")
	require.ErrorIs(t, err, boom)

	members, err := s.SetMembers(ctx, "set")
	require.NoError(t, err)
	assert.Empty(t, members, "failed call must have no effect")
}
