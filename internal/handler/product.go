package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kv-catalog/internal/catalog"
)

// maxBodySize caps request bodies; image payloads are embedded in create and
// update requests.
const maxBodySize = 16 << 20

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProductInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.catalog.CreateProduct(r.Context(), *in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("Id")
	e.Int64(id)
	e.ObjEnd()
	respondJSON(w, http.StatusCreated, &e)
}

func (h *Handler) readProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.ReadProduct(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProduct(&e, p)
	respondJSON(w, http.StatusOK, &e)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	in, err := decodeProductInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalog.UpdateProduct(r.Context(), id, *in); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	deleted, err := h.catalog.DeleteProduct(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("Deleted")
	e.Bool(deleted)
	e.ObjEnd()
	respondJSON(w, http.StatusOK, &e)
}

func (h *Handler) readCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cat, err := h.catalog.ReadCategory(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeCategory(&e, cat)
	respondJSON(w, http.StatusOK, &e)
}

// readImage returns the raw payload, not JSON.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	img, err := h.catalog.ReadImage(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(img.Value)
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.SearchProducts(r.Context(), r.PathValue("term"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondProducts(w, products)
}

func (h *Handler) listProductsByCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryId")
	if !ok {
		return
	}
	products, err := h.catalog.ProductsByCategory(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondProducts(w, products)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.catalog.CategoriesByPopularity(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, rc := range ranked {
		e.ObjStart()
		e.FieldStart("Name")
		e.Str(rc.Name)
		e.FieldStart("Score")
		e.Int64(rc.Score)
		e.ObjEnd()
	}
	e.ArrEnd()
	respondJSON(w, http.StatusOK, &e)
}

// --- JSON mapping ---

// decodeProductInput parses the create/update request body. Image payloads
// travel as base64 strings.
func decodeProductInput(r *http.Request) (*catalog.ProductInput, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	var in catalog.ProductInput
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "Name":
			in.Name, err = d.Str()
		case "Description":
			in.Description, err = d.Str()
		case "Vendor":
			in.Vendor, err = d.Str()
		case "Currency":
			in.Currency, err = d.Str()
		case "MainCategoryName":
			in.MainCategoryName, err = d.Str()
		case "Price":
			var num jx.Num
			if num, err = d.Num(); err == nil {
				in.Price, err = decimal.NewFromString(strings.Trim(string(num), `"`))
			}
		case "Images":
			err = d.Arr(func(d *jx.Decoder) error {
				payload, err := d.Base64()
				if err != nil {
					return err
				}
				in.Images = append(in.Images, payload)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &in, nil
}

func encodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.ObjStart()
	e.FieldStart("Id")
	e.Int64(p.ID)
	e.FieldStart("Name")
	e.Str(p.Name)
	e.FieldStart("Description")
	e.Str(p.Description)
	e.FieldStart("Vendor")
	e.Str(p.Vendor)
	e.FieldStart("Price")
	e.Raw([]byte(p.Price.String()))
	e.FieldStart("Currency")
	e.Str(p.Currency)
	e.FieldStart("MainCategory")
	encodeCategory(e, &p.Category)
	e.FieldStart("Images")
	e.ArrStart()
	for _, img := range p.Images {
		e.ObjStart()
		e.FieldStart("Id")
		e.Int64(img.ID)
		e.FieldStart("Value")
		e.Base64(img.Value)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCategory(e *jx.Encoder, c *catalog.Category) {
	e.ObjStart()
	e.FieldStart("Id")
	e.Int64(c.ID)
	e.FieldStart("Name")
	e.Str(c.Name)
	e.ObjEnd()
}

func respondProducts(w http.ResponseWriter, products []catalog.Product) {
	var e jx.Encoder
	e.ArrStart()
	for i := range products {
		encodeProduct(&e, &products[i])
	}
	e.ArrEnd()
	respondJSON(w, http.StatusOK, &e)
}

func respondJSON(w http.ResponseWriter, code int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
