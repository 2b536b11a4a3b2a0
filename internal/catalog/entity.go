// Package catalog implements the product catalog core: typed entities, the
// id allocator, the entity store, the denormalized index layer, and the
// orchestrated create/read/update/delete choreographies over a key-value
// store that offers only single-key atomic primitives.
package catalog

import (
	"github.com/shopspring/decimal"
)

// Product is the fully resolved read view of a catalog product: the category
// reference is joined to its record and the image ids to their payloads.
type Product struct {
	ID          int64
	Name        string
	Description string
	Vendor      string
	Price       decimal.Decimal
	Currency    string
	Category    Category
	Images      []Image
}

// Category is a product category. Member products and the popularity score
// are derived structures held by the index layer, not fields of the record.
type Category struct {
	ID   int64
	Name string
}

// Image is an opaque binary payload owned by exactly one product.
type Image struct {
	ID    int64
	Value []byte
}

// RankedCategory is one entry of the popularity ranking.
type RankedCategory struct {
	Name  string
	Score int64
}

// ProductInput is the value object accepted by create and update. Images
// carries raw payloads; ids are assigned by the catalog.
type ProductInput struct {
	Name             string
	Description      string
	Vendor           string
	Price            decimal.Decimal
	Currency         string
	MainCategoryName string
	Images           [][]byte
}

// Validate checks required fields. It runs before any store call, so a
// failure here never produces partial state.
func (in *ProductInput) Validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "Name", Reason: "required"}
	}
	if in.MainCategoryName == "" {
		return &ValidationError{Field: "MainCategoryName", Reason: "required"}
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "Price", Reason: "must not be negative"}
	}
	return nil
}
