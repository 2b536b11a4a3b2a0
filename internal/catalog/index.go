package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kv-catalog/internal/kv"
)

// Index owns the four derived structures maintained alongside the entity
// records: name→id lookups per kind, category membership sets, product image
// sets, and the category popularity ranking. Every method is one atomic
// store call; the aggregate of several calls is not atomic, which is why the
// ordering in Service matters.
//
// None of these structures is authoritative: each is reconstructible from
// the entity records.
type Index struct {
	store kv.Store
}

// NewIndex returns an Index backed by the given store.
func NewIndex(store kv.Store) *Index {
	return &Index{store: store}
}

// SetNameIndex maps name to id for the given kind. An existing entry for the
// same name is overwritten (last write wins); duplicate names silently alias.
func (ix *Index) SetNameIndex(ctx context.Context, kind Kind, name string, id int64) error {
	err := ix.store.SetHashFields(ctx, nameIndexKey(kind), map[string]string{
		name: strconv.FormatInt(id, 10),
	})
	if err != nil {
		return fmt.Errorf("indexing %s name %q: %w", kind, name, err)
	}
	return nil
}

// RemoveNameIndex drops the name entry for the given kind. Removing an
// absent entry is not an error.
func (ix *Index) RemoveNameIndex(ctx context.Context, kind Kind, name string) error {
	if _, err := ix.store.DeleteHashFields(ctx, nameIndexKey(kind), name); err != nil {
		return fmt.Errorf("unindexing %s name %q: %w", kind, name, err)
	}
	return nil
}

// ResolveName returns the id indexed under name, or ErrNotFound.
func (ix *Index) ResolveName(ctx context.Context, kind Kind, name string) (int64, error) {
	v, err := ix.store.GetHashField(ctx, nameIndexKey(kind), name)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, errors.Wrapf(ErrNotFound, "%s name %q", kind, name)
		}
		return 0, fmt.Errorf("resolving %s name %q: %w", kind, name, err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s name index entry %q: %w", kind, v, err)
	}
	return id, nil
}

// AddToCategory records product membership in a category.
func (ix *Index) AddToCategory(ctx context.Context, productID, categoryID int64) error {
	err := ix.store.AddToSet(ctx, categoryMembersKey(categoryID), strconv.FormatInt(productID, 10))
	if err != nil {
		return fmt.Errorf("adding product %d to category %d: %w", productID, categoryID, err)
	}
	return nil
}

// RemoveFromCategory drops product membership from a category and reports
// whether the product was actually a member. Callers use the report to keep
// popularity in step with the membership set on retries.
func (ix *Index) RemoveFromCategory(ctx context.Context, productID, categoryID int64) (bool, error) {
	n, err := ix.store.RemoveFromSet(ctx, categoryMembersKey(categoryID), strconv.FormatInt(productID, 10))
	if err != nil {
		return false, fmt.Errorf("removing product %d from category %d: %w", productID, categoryID, err)
	}
	return n > 0, nil
}

// CategoryMembers returns the ids of all products assigned to a category.
func (ix *Index) CategoryMembers(ctx context.Context, categoryID int64) ([]int64, error) {
	members, err := ix.store.SetMembers(ctx, categoryMembersKey(categoryID))
	if err != nil {
		return nil, fmt.Errorf("reading members of category %d: %w", categoryID, err)
	}
	return parseIDs(members)
}

// AddImages records image ownership against a product.
func (ix *Index) AddImages(ctx context.Context, productID int64, imageIDs ...int64) error {
	if len(imageIDs) == 0 {
		return nil
	}
	err := ix.store.AddToSet(ctx, productImagesKey(productID), formatIDs(imageIDs)...)
	if err != nil {
		return fmt.Errorf("adding images to product %d: %w", productID, err)
	}
	return nil
}

// RemoveImages drops the given image ids from a product's image set. Called
// with no ids it removes the whole set.
func (ix *Index) RemoveImages(ctx context.Context, productID int64, imageIDs ...int64) error {
	if len(imageIDs) == 0 {
		if _, err := ix.store.Delete(ctx, productImagesKey(productID)); err != nil {
			return fmt.Errorf("removing image set of product %d: %w", productID, err)
		}
		return nil
	}
	_, err := ix.store.RemoveFromSet(ctx, productImagesKey(productID), formatIDs(imageIDs)...)
	if err != nil {
		return fmt.Errorf("removing images from product %d: %w", productID, err)
	}
	return nil
}

// ImagesOf returns the ids of all images owned by a product.
func (ix *Index) ImagesOf(ctx context.Context, productID int64) ([]int64, error) {
	members, err := ix.store.SetMembers(ctx, productImagesKey(productID))
	if err != nil {
		return nil, fmt.Errorf("reading images of product %d: %w", productID, err)
	}
	return parseIDs(members)
}

// BumpPopularity shifts a category's popularity score by delta. Call sites
// use +1 and -1; bulk corrections may pass any delta.
func (ix *Index) BumpPopularity(ctx context.Context, categoryName string, delta int64) error {
	_, err := ix.store.IncrSortedSetScore(ctx, popularityKey, categoryName, float64(delta))
	if err != nil {
		return fmt.Errorf("bumping popularity of %q by %d: %w", categoryName, delta, err)
	}
	return nil
}

// RankedCategories returns all categories ordered by popularity, most
// popular first.
func (ix *Index) RankedCategories(ctx context.Context) ([]RankedCategory, error) {
	scored, err := ix.store.SortedSetByScoreDesc(ctx, popularityKey)
	if err != nil {
		return nil, fmt.Errorf("reading category ranking: %w", err)
	}
	ranked := make([]RankedCategory, len(scored))
	for i, s := range scored {
		ranked[i] = RankedCategory{Name: s.Member, Score: int64(s.Score)}
	}
	return ranked, nil
}

// ScanProductNames iterates over product name index entries whose name
// contains substr, invoking fn with each name and id. Glob metacharacters in
// substr are escaped, so the term always matches literally. The underlying
// scan is cursor-based and unordered; the order is not stable across runs.
func (ix *Index) ScanProductNames(ctx context.Context, substr string, fn func(name string, id int64) error) error {
	pattern := "*" + escapeMatch(substr) + "*"
	return ix.store.ScanHashFields(ctx, nameIndexKey(KindProduct), pattern, func(name, value string) error {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing product name index entry %q: %w", value, err)
		}
		return fn(name, id)
	})
}

// escapeMatch backslash-escapes MATCH glob metacharacters so s is matched
// as a literal substring.
func escapeMatch(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func formatIDs(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

func parseIDs(members []string) ([]int64, error) {
	out := make([]int64, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing id %q: %w", m, err)
		}
		out[i] = id
	}
	return out, nil
}
