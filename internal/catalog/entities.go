package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kv-catalog/internal/kv"
)

// EntityStore persists entities as flat field maps under stable keys derived
// from kind and id. It has no cross-entity awareness and never touches the
// derived indexes.
type EntityStore struct {
	store kv.Store
}

// NewEntityStore returns an EntityStore backed by the given store.
func NewEntityStore(store kv.Store) *EntityStore {
	return &EntityStore{store: store}
}

// Put replaces the full field map of the entity. The previous hash is
// deleted first so no stale fields survive a shrinking update; the two calls
// are individually atomic but not jointly, so a reader between them can see
// the key absent. An Id field is always written, guaranteeing the stored
// hash is never empty and a missing key is unambiguous.
func (s *EntityStore) Put(ctx context.Context, kind Kind, id int64, fields map[string]string) error {
	key := entityKey(kind, id)
	if _, err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}

	full := make(map[string]string, len(fields)+1)
	for f, v := range fields {
		full[f] = v
	}
	full["Id"] = strconv.FormatInt(id, 10)

	if err := s.store.SetHashFields(ctx, key, full); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Get returns the entity's field map, or ErrNotFound if the key is absent.
// Entities always carry at least the Id field, so an empty hash means the
// entity does not exist.
func (s *EntityStore) Get(ctx context.Context, kind Kind, id int64) (map[string]string, error) {
	fields, err := s.store.GetHash(ctx, entityKey(kind, id))
	if err != nil {
		return nil, fmt.Errorf("reading %s %d: %w", kind, id, err)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s %d", kind, id)
	}
	return fields, nil
}

// Delete removes the entity record. It is idempotent and reports whether
// anything was actually removed.
func (s *EntityStore) Delete(ctx context.Context, kind Kind, id int64) (bool, error) {
	removed, err := s.store.Delete(ctx, entityKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("deleting %s %d: %w", kind, id, err)
	}
	return removed, nil
}

// PutBinary stores a scalar binary entity (images are scalars, not hashes).
func (s *EntityStore) PutBinary(ctx context.Context, kind Kind, id int64, value []byte) error {
	if err := s.store.SetScalar(ctx, entityKey(kind, id), value); err != nil {
		return fmt.Errorf("writing %s %d: %w", kind, id, err)
	}
	return nil
}

// GetBinary returns a scalar binary entity, or ErrNotFound.
func (s *EntityStore) GetBinary(ctx context.Context, kind Kind, id int64) ([]byte, error) {
	value, err := s.store.GetScalar(ctx, entityKey(kind, id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%s %d", kind, id)
		}
		return nil, fmt.Errorf("reading %s %d: %w", kind, id, err)
	}
	return value, nil
}

// productRecord is the stored shape of a product row: references are numeric
// ids, not resolved entities.
type productRecord struct {
	ID             int64
	Name           string
	Description    string
	Vendor         string
	Price          decimal.Decimal
	Currency       string
	MainCategoryID int64
}

// productFields flattens a product record into the stored field map. The
// Images field holds the key of the product's image set, mirroring how the
// category record references its member set.
func productFields(rec productRecord) map[string]string {
	return map[string]string{
		"Name":           rec.Name,
		"Description":    rec.Description,
		"Vendor":         rec.Vendor,
		"Price":          rec.Price.String(),
		"Currency":       rec.Currency,
		"MainCategoryId": strconv.FormatInt(rec.MainCategoryID, 10),
		"Images":         productImagesKey(rec.ID),
	}
}

// parseProductRecord maps a stored field map back into a typed record.
func parseProductRecord(fields map[string]string) (productRecord, error) {
	var rec productRecord
	var err error

	if rec.ID, err = strconv.ParseInt(fields["Id"], 10, 64); err != nil {
		return rec, fmt.Errorf("parsing product Id %q: %w", fields["Id"], err)
	}
	rec.Name = fields["Name"]
	rec.Description = fields["Description"]
	rec.Vendor = fields["Vendor"]
	rec.Currency = fields["Currency"]

	if rec.Price, err = decimal.NewFromString(fields["Price"]); err != nil {
		return rec, fmt.Errorf("parsing product %d price %q: %w", rec.ID, fields["Price"], err)
	}
	if rec.MainCategoryID, err = strconv.ParseInt(fields["MainCategoryId"], 10, 64); err != nil {
		return rec, fmt.Errorf("parsing product %d category id %q: %w", rec.ID, fields["MainCategoryId"], err)
	}
	return rec, nil
}

// categoryFields flattens a category into its stored field map. The Products
// field references the derived member set key.
func categoryFields(id int64, name string) map[string]string {
	return map[string]string{
		"Name":     name,
		"Products": categoryMembersKey(id),
	}
}

// parseCategory maps a stored category field map into the typed entity.
func parseCategory(fields map[string]string) (Category, error) {
	id, err := strconv.ParseInt(fields["Id"], 10, 64)
	if err != nil {
		return Category{}, fmt.Errorf("parsing category Id %q: %w", fields["Id"], err)
	}
	return Category{ID: id, Name: fields["Name"]}, nil
}
