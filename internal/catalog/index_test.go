package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kv-catalog/internal/kv/kvmem"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestIndex_NameIndexLastWriteWins(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Widget", 1))
	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Widget", 2))

	// Duplicate names alias: the second write silently replaces the first.
	id, err := ix.ResolveName(ctx, KindProduct, "Widget")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestIndex_ResolveNameNotFound(t *testing.T) {
	ix := NewIndex(kvmem.New())

	_, err := ix.ResolveName(context.Background(), KindCategory, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_RemoveNameIndexIdempotent(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Widget", 1))
	require.NoError(t, ix.RemoveNameIndex(ctx, KindProduct, "Widget"))
	require.NoError(t, ix.RemoveNameIndex(ctx, KindProduct, "Widget"))

	_, err := ix.ResolveName(ctx, KindProduct, "Widget")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_CategoryMembership(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.AddToCategory(ctx, 1, 10))
	require.NoError(t, ix.AddToCategory(ctx, 2, 10))
	require.NoError(t, ix.AddToCategory(ctx, 1, 10)) // set semantics

	members, err := ix.CategoryMembers(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, members)

	removed, err := ix.RemoveFromCategory(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, removed)
	members, err = ix.CategoryMembers(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2}, members)

	// Removing an absent member reports that nothing changed.
	removed, err = ix.RemoveFromCategory(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIndex_ImageSet(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.AddImages(ctx, 1, 100, 101, 102))
	require.NoError(t, ix.RemoveImages(ctx, 1, 101))

	ids, err := ix.ImagesOf(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 102}, ids)

	// No ids given: the whole set goes.
	require.NoError(t, ix.RemoveImages(ctx, 1))
	ids, err = ix.ImagesOf(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndex_PopularityRanking(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.BumpPopularity(ctx, "books", 1))
	require.NoError(t, ix.BumpPopularity(ctx, "books", 1))
	require.NoError(t, ix.BumpPopularity(ctx, "games", 1))
	require.NoError(t, ix.BumpPopularity(ctx, "tools", 3))
	require.NoError(t, ix.BumpPopularity(ctx, "tools", -1))

	ranked, err := ix.RankedCategories(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, RankedCategory{Name: "books", Score: 2}, ranked[0])
	assert.Equal(t, RankedCategory{Name: "tools", Score: 2}, ranked[1])
	assert.Equal(t, RankedCategory{Name: "games", Score: 1}, ranked[2])
}

func TestIndex_ScanProductNames(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Red Widget", 1))
	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Blue Widget", 2))
	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Gadget", 3))

	found := make(map[string]int64)
	err := ix.ScanProductNames(ctx, "Widget", func(name string, id int64) error {
		found[name] = id
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Red Widget": 1, "Blue Widget": 2}, found)
}

func TestIndex_ScanProductNamesLiteralMetacharacters(t *testing.T) {
	ix := NewIndex(kvmem.New())
	ctx := context.Background()

	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Plain", 1))
	require.NoError(t, ix.SetNameIndex(ctx, KindProduct, "Sale 50% *deal*", 2))

	// Metacharacters in the term do not act as wildcards.
	count := 0
	err := ix.ScanProductNames(ctx, "P?ain", func(string, int64) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count)

	// A name containing metacharacters is findable by its own substring.
	found := make(map[string]int64)
	err = ix.ScanProductNames(ctx, "*deal*", func(name string, id int64) error {
		found[name] = id
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Sale 50% *deal*": 2}, found)
}
