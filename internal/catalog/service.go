package catalog

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kv-catalog/internal/kv"
)

// Operation names used in step errors.
const (
	opCreate = "create product"
	opUpdate = "update product"
	opDelete = "delete product"
)

// Service orchestrates the multi-entity choreographies over the entity store
// and the index layer. The store has no multi-key transactions, so each
// operation is a fixed sequence of single-key writes ordered so that
// dependents are materialized before the publishing write (create/update)
// and retired before the final delete. A failure partway is surfaced as a
// PartialError naming the failed step; no automatic compensation runs.
type Service struct {
	ids      *Allocator
	entities *EntityStore
	index    *Index

	// categoryFlight collapses concurrent resolve-or-create calls for the
	// same category name within this process. Two instances can still race
	// and leave an orphaned category; that race is inherited from the
	// source system and documented rather than locked out.
	categoryFlight singleflight.Group
}

// NewService builds the catalog core on top of a kv.Store.
func NewService(store kv.Store) *Service {
	return &Service{
		ids:      NewAllocator(store),
		entities: NewEntityStore(store),
		index:    NewIndex(store),
	}
}

// stepError wraps a failed choreography step. Once at least one earlier step
// has committed, the richer PartialError supersedes a bare store failure.
func stepError(op, step string, committed bool, err error) error {
	if committed {
		return &PartialError{Op: op, Step: step, Err: err}
	}
	return errors.Wrapf(err, "%s: %s", op, step)
}

// CreateProduct materializes the category, the images, and the indexes, and
// publishes the product row last, so a reader that sees the row can always
// resolve its references. Returns the new product id.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (int64, error) {
	const op = opCreate
	if err := in.Validate(); err != nil {
		return 0, err
	}

	// Ids are never reused, so a sequence value burned by a later failure
	// leaves no partial state.
	productID, err := s.ids.Next(ctx, KindProduct)
	if err != nil {
		return 0, stepError(op, "allocate-product-id", false, err)
	}

	cat, err := s.resolveOrCreateCategory(ctx, op, false, in.MainCategoryName)
	if err != nil {
		return 0, err
	}
	committed := cat.created

	if err := s.index.AddToCategory(ctx, productID, cat.id); err != nil {
		return 0, stepError(op, "record-category-membership", committed, err)
	}
	committed = true
	if err := s.index.BumpPopularity(ctx, in.MainCategoryName, 1); err != nil {
		return 0, stepError(op, "bump-category-popularity", committed, err)
	}

	if _, err := s.persistImages(ctx, op, productID, in.Images); err != nil {
		return 0, err
	}

	if err := s.index.SetNameIndex(ctx, KindProduct, in.Name, productID); err != nil {
		return 0, stepError(op, "index-product-name", committed, err)
	}

	rec := productRecord{
		ID:             productID,
		Name:           in.Name,
		Description:    in.Description,
		Vendor:         in.Vendor,
		Price:          in.Price,
		Currency:       in.Currency,
		MainCategoryID: cat.id,
	}
	if err := s.entities.Put(ctx, KindProduct, productID, productFields(rec)); err != nil {
		return 0, stepError(op, "publish-product", committed, err)
	}
	return productID, nil
}

// ReadProduct returns the product with its category record and image
// payloads resolved. The join happens at read time; nothing resolved is
// stored denormalized.
func (s *Service) ReadProduct(ctx context.Context, id int64) (*Product, error) {
	fields, err := s.entities.Get(ctx, KindProduct, id)
	if err != nil {
		return nil, err
	}
	rec, err := parseProductRecord(fields)
	if err != nil {
		return nil, err
	}

	cat, err := s.ReadCategory(ctx, rec.MainCategoryID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving category of product %d", id)
	}

	imageIDs, err := s.index.ImagesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(imageIDs, func(i, j int) bool { return imageIDs[i] < imageIDs[j] })

	images := make([]Image, 0, len(imageIDs))
	for _, imgID := range imageIDs {
		img, err := s.ReadImage(ctx, imgID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving image of product %d", id)
		}
		images = append(images, *img)
	}

	return &Product{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Vendor:      rec.Vendor,
		Price:       rec.Price,
		Currency:    rec.Currency,
		Category:    *cat,
		Images:      images,
	}, nil
}

// UpdateProduct applies new values to an existing product. Category and
// image bookkeeping happen before the row overwrite for the same
// publish-last reasoning as create. Unchanged images (compared as an
// unordered set over payload identity) are left untouched; changed ones are
// retired or freshly allocated, never reallocated in place.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) error {
	const op = opUpdate
	if err := in.Validate(); err != nil {
		return err
	}

	oldFields, err := s.entities.Get(ctx, KindProduct, id)
	if err != nil {
		return err
	}
	old, err := parseProductRecord(oldFields)
	if err != nil {
		return err
	}
	oldCatFields, err := s.entities.Get(ctx, KindCategory, old.MainCategoryID)
	if err != nil {
		return errors.Wrapf(err, "resolving category of product %d", id)
	}
	oldCat, err := parseCategory(oldCatFields)
	if err != nil {
		return err
	}

	committed := false
	categoryID := oldCat.ID

	if in.MainCategoryName != oldCat.Name {
		// The old category row and its name-index entry stay: orphan
		// categories are permitted and observable. Popularity moves only
		// when the membership write removed something, so a retry after a
		// partial failure cannot decrement twice.
		removed, err := s.index.RemoveFromCategory(ctx, id, oldCat.ID)
		if err != nil {
			return stepError(op, "remove-old-category-membership", committed, err)
		}
		if removed {
			committed = true
			if err := s.index.BumpPopularity(ctx, oldCat.Name, -1); err != nil {
				return stepError(op, "drop-old-category-popularity", committed, err)
			}
		}

		cat, err := s.resolveOrCreateCategory(ctx, op, committed, in.MainCategoryName)
		if err != nil {
			return err
		}
		categoryID = cat.id

		if err := s.index.AddToCategory(ctx, id, cat.id); err != nil {
			return stepError(op, "record-category-membership", committed, err)
		}
		if err := s.index.BumpPopularity(ctx, in.MainCategoryName, 1); err != nil {
			return stepError(op, "bump-category-popularity", committed, err)
		}
	}

	if err := s.reconcileImages(ctx, op, id, in.Images, &committed); err != nil {
		return err
	}

	if in.Name != old.Name {
		// Drop the stale entry so the old name stops resolving, then index
		// the new one. Last write wins on collisions, as everywhere.
		if err := s.index.RemoveNameIndex(ctx, KindProduct, old.Name); err != nil {
			return stepError(op, "unindex-old-product-name", committed, err)
		}
		committed = true
		if err := s.index.SetNameIndex(ctx, KindProduct, in.Name, id); err != nil {
			return stepError(op, "index-product-name", committed, err)
		}
	}

	rec := productRecord{
		ID:             id,
		Name:           in.Name,
		Description:    in.Description,
		Vendor:         in.Vendor,
		Price:          in.Price,
		Currency:       in.Currency,
		MainCategoryID: categoryID,
	}
	if err := s.entities.Put(ctx, KindProduct, id, productFields(rec)); err != nil {
		return stepError(op, "publish-product", committed, err)
	}
	return nil
}

// DeleteProduct retires the product's dependents first and the row last, so
// an interruption leaves at most a detectable dangling row rather than a
// live row pointing at deleted dependents. Deleting an absent product
// reports false with no error, and a retry after a partial delete is safe.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	const op = opDelete

	fields, err := s.entities.Get(ctx, KindProduct, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rec, err := parseProductRecord(fields)
	if err != nil {
		return false, err
	}

	imageIDs, err := s.index.ImagesOf(ctx, id)
	if err != nil {
		return false, errors.Wrapf(err, "%s: read-image-set", op)
	}

	committed := false
	for _, imgID := range imageIDs {
		if _, err := s.entities.Delete(ctx, KindImage, imgID); err != nil {
			return false, stepError(op, "delete-image", committed, err)
		}
		committed = true
	}

	catFields, err := s.entities.Get(ctx, KindCategory, rec.MainCategoryID)
	switch {
	case err == nil:
		cat, err := parseCategory(catFields)
		if err != nil {
			return false, err
		}
		// Popularity moves only when the membership write removed
		// something, so retrying a partial delete cannot drive the score
		// below the membership count.
		removed, err := s.index.RemoveFromCategory(ctx, id, cat.ID)
		if err != nil {
			return false, stepError(op, "remove-category-membership", committed, err)
		}
		if removed {
			committed = true
			if err := s.index.BumpPopularity(ctx, cat.Name, -1); err != nil {
				return false, stepError(op, "drop-category-popularity", committed, err)
			}
		}
	case errors.Is(err, ErrNotFound):
		// An interrupted earlier choreography can leave the row pointing at
		// a missing category; there is nothing left to retire.
	default:
		return false, stepError(op, "resolve-category", committed, err)
	}

	if err := s.index.RemoveNameIndex(ctx, KindProduct, rec.Name); err != nil {
		return false, stepError(op, "unindex-product-name", committed, err)
	}
	committed = true
	if err := s.index.RemoveImages(ctx, id); err != nil {
		return false, stepError(op, "remove-image-set", committed, err)
	}

	if _, err := s.entities.Delete(ctx, KindProduct, id); err != nil {
		return false, stepError(op, "retire-product", committed, err)
	}
	return true, nil
}

// ReadCategory returns a category record by id.
func (s *Service) ReadCategory(ctx context.Context, id int64) (*Category, error) {
	fields, err := s.entities.Get(ctx, KindCategory, id)
	if err != nil {
		return nil, err
	}
	cat, err := parseCategory(fields)
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// ReadImage returns an image payload by id.
func (s *Service) ReadImage(ctx context.Context, id int64) (*Image, error) {
	value, err := s.entities.GetBinary(ctx, KindImage, id)
	if err != nil {
		return nil, err
	}
	return &Image{ID: id, Value: value}, nil
}

// SearchProducts returns every product whose name contains term as a
// substring (case-sensitive). The underlying scan order is unspecified, so
// the result order is not stable across runs.
func (s *Service) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	var ids []int64
	err := s.index.ScanProductNames(ctx, term, func(_ string, id int64) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.readProducts(ctx, ids)
}

// ProductsByCategory returns all products currently assigned to a category,
// fully resolved, ordered by id.
func (s *Service) ProductsByCategory(ctx context.Context, categoryID int64) ([]Product, error) {
	ids, err := s.index.CategoryMembers(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.readProducts(ctx, ids)
}

// CategoriesByPopularity returns all categories ordered by the number of
// products assigned to them, most popular first. Categories whose last
// product left remain listed with score zero.
func (s *Service) CategoriesByPopularity(ctx context.Context) ([]RankedCategory, error) {
	return s.index.RankedCategories(ctx)
}

// readProducts resolves each id, skipping entries whose row is not yet
// published or already mid-delete: the name index and membership sets are
// written before the row on create and removed before it on delete, so a
// brief window exists where an index entry has no row behind it.
func (s *Service) readProducts(ctx context.Context, ids []int64) ([]Product, error) {
	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.ReadProduct(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// categoryResolution is the outcome of resolve-or-create.
type categoryResolution struct {
	id      int64
	created bool
}

// categoryFlightResult carries the flight outcome plus the information the
// caller needs to classify a failure: which step failed and whether the
// flight committed any write before failing.
type categoryFlightResult struct {
	res     categoryResolution
	step    string
	wrote   bool
	callErr error
}

// resolveOrCreateCategory looks the category name up in the name index and,
// on a miss, allocates a fresh id, persists the record, and indexes the
// name. Concurrent calls for the same name in this process share one flight,
// which arbitrates the §5-style duplicate-create race locally. The flight
// runs with the first caller's context.
func (s *Service) resolveOrCreateCategory(ctx context.Context, op string, committed bool, name string) (categoryResolution, error) {
	v, _, _ := s.categoryFlight.Do(name, func() (any, error) {
		out := categoryFlightResult{}

		id, err := s.index.ResolveName(ctx, KindCategory, name)
		if err == nil {
			out.res = categoryResolution{id: id}
			return out, nil
		}
		if !errors.Is(err, ErrNotFound) {
			out.step, out.callErr = "resolve-category-name", err
			return out, nil
		}

		id, err = s.ids.Next(ctx, KindCategory)
		if err != nil {
			out.step, out.callErr = "allocate-category-id", err
			return out, nil
		}
		if err := s.entities.Put(ctx, KindCategory, id, categoryFields(id, name)); err != nil {
			out.step, out.callErr = "persist-category", err
			return out, nil
		}
		out.wrote = true
		if err := s.index.SetNameIndex(ctx, KindCategory, name, id); err != nil {
			out.step, out.callErr = "index-category-name", err
			return out, nil
		}
		out.res = categoryResolution{id: id, created: true}
		return out, nil
	})

	out := v.(categoryFlightResult)
	if out.callErr != nil {
		return categoryResolution{}, stepError(op, out.step, committed || out.wrote, out.callErr)
	}
	return out.res, nil
}

// persistImages allocates an id for each payload, stores the payload, and
// records the full id set against the product. By the time it runs the
// category bookkeeping has committed, so every failure here is partial.
func (s *Service) persistImages(ctx context.Context, op string, productID int64, payloads [][]byte) ([]int64, error) {
	imageIDs := make([]int64, 0, len(payloads))
	for _, payload := range payloads {
		imgID, err := s.ids.Next(ctx, KindImage)
		if err != nil {
			return nil, stepError(op, "allocate-image-id", true, err)
		}
		if err := s.entities.PutBinary(ctx, KindImage, imgID, payload); err != nil {
			return nil, stepError(op, "persist-image", true, err)
		}
		imageIDs = append(imageIDs, imgID)
	}
	if len(imageIDs) > 0 {
		if err := s.index.AddImages(ctx, productID, imageIDs...); err != nil {
			return nil, stepError(op, "record-image-set", true, err)
		}
	}
	return imageIDs, nil
}

// reconcileImages computes the symmetric difference between the stored image
// set and the incoming payloads (compared by content). Removed images are
// deleted and dropped from the set; added ones are freshly allocated;
// unchanged ones are not touched.
func (s *Service) reconcileImages(ctx context.Context, op string, productID int64, payloads [][]byte, committed *bool) error {
	oldIDs, err := s.index.ImagesOf(ctx, productID)
	if err != nil {
		return stepError(op, "read-image-set", *committed, err)
	}

	oldByPayload := make(map[string]int64, len(oldIDs))
	for _, imgID := range oldIDs {
		value, err := s.entities.GetBinary(ctx, KindImage, imgID)
		if err != nil {
			return stepError(op, "read-image", *committed, err)
		}
		oldByPayload[string(value)] = imgID
	}

	// Duplicate payloads in the input collapse: images form an unordered
	// set over payload identity.
	newSet := make(map[string]struct{}, len(payloads))
	for _, p := range payloads {
		newSet[string(p)] = struct{}{}
	}

	for payload, imgID := range oldByPayload {
		if _, keep := newSet[payload]; keep {
			continue
		}
		if _, err := s.entities.Delete(ctx, KindImage, imgID); err != nil {
			return stepError(op, "delete-image", *committed, err)
		}
		*committed = true
		if err := s.index.RemoveImages(ctx, productID, imgID); err != nil {
			return stepError(op, "drop-image-from-set", *committed, err)
		}
	}

	for payload := range newSet {
		if _, exists := oldByPayload[payload]; exists {
			continue
		}
		imgID, err := s.ids.Next(ctx, KindImage)
		if err != nil {
			return stepError(op, "allocate-image-id", *committed, err)
		}
		if err := s.entities.PutBinary(ctx, KindImage, imgID, []byte(payload)); err != nil {
			return stepError(op, "persist-image", *committed, err)
		}
		*committed = true
		if err := s.index.AddImages(ctx, productID, imgID); err != nil {
			return stepError(op, "record-image-set", *committed, err)
		}
	}
	return nil
}
