package catalog

import "strconv"

// Kind identifies one of the three persisted entity kinds. Its value is the
// key prefix used in the store.
type Kind string

const (
	KindProduct  Kind = "PRODUCT"
	KindCategory Kind = "CATEGORY"
	KindImage    Kind = "IMAGE"
)

// popularityKey is the sorted set holding per-category product counts,
// keyed by category name.
const popularityKey = "CNT:PRODUCT_IN_CATEGORY"

// counterKey is the per-kind id sequence counter.
func counterKey(kind Kind) string {
	return "ID:" + string(kind)
}

// entityKey is the stable key of one entity record.
func entityKey(kind Kind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// nameIndexKey is the hash mapping entity names to ids for the given kind.
func nameIndexKey(kind Kind) string {
	return "IDX:" + string(kind) + "_NAME"
}

// categoryMembersKey is the set of product ids assigned to a category.
func categoryMembersKey(categoryID int64) string {
	return "PRODUCTS_IN_CATEGORY:" + strconv.FormatInt(categoryID, 10)
}

// productImagesKey is the set of image ids owned by a product.
func productImagesKey(productID int64) string {
	return "IMAGES_OF_PRODUCT:" + strconv.FormatInt(productID, 10)
}
