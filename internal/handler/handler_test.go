package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kv-catalog/internal/catalog"
	"github.com/xenking/kv-catalog/internal/kv/kvmem"
)

type productResponse struct {
	ID           int64            `json:"Id"`
	Name         string           `json:"Name"`
	Description  string           `json:"Description"`
	Vendor       string           `json:"Vendor"`
	Price        json.Number      `json:"Price"`
	Currency     string           `json:"Currency"`
	MainCategory categoryResponse `json:"MainCategory"`
	Images       []imageResponse  `json:"Images"`
}

type categoryResponse struct {
	ID   int64  `json:"Id"`
	Name string `json:"Name"`
}

type imageResponse struct {
	ID    int64  `json:"Id"`
	Value string `json:"Value"`
}

type rankedResponse struct {
	Name  string `json:"Name"`
	Score int64  `json:"Score"`
}

func newTestServer() *httptest.Server {
	svc := catalog.NewService(kvmem.New())
	return httptest.NewServer(New(svc).Routes())
}

func productBody(name, category string, images ...[]byte) []byte {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}
	body, _ := json.Marshal(map[string]any{
		"Name":             name,
		"Description":      "desc",
		"Vendor":           "acme",
		"Price":            9.99,
		"Currency":         "EUR",
		"MainCategoryName": category,
		"Images":           encoded,
	})
	return body
}

func doRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func createProduct(t *testing.T, srv *httptest.Server, name, category string, images ...[]byte) int64 {
	t.Helper()
	resp := doRequest(t, http.MethodPost, srv.URL+"/product", productBody(name, category, images...))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		ID int64 `json:"Id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ID
}

func TestCreateAndReadProduct(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	id := createProduct(t, srv, "Product1", "Category1", []byte("imgA"))

	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/product/%d", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p productResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Product1", p.Name)
	assert.Equal(t, "9.99", p.Price.String())
	assert.Equal(t, "Category1", p.MainCategory.Name)
	require.Len(t, p.Images, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("imgA")), p.Images[0].Value)
}

func TestReadProduct_NotFound(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/product/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadProduct_BadID(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/product/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateProduct_ValidationFailure(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"Description": "no name"})
	resp := doRequest(t, http.MethodPost, srv.URL+"/product", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateProduct(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	id := createProduct(t, srv, "Product1", "Category1")

	resp := doRequest(t, http.MethodPut, fmt.Sprintf("%s/product/%d", srv.URL, id), productBody("Renamed", "Category2"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, fmt.Sprintf("%s/product/%d", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p productResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, "Category2", p.MainCategory.Name)
}

func TestDeleteProduct_Idempotent(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	id := createProduct(t, srv, "Product1", "Category1")

	resp := doRequest(t, http.MethodDelete, fmt.Sprintf("%s/product/%d", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Deleted bool `json:"Deleted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Deleted)

	resp = doRequest(t, http.MethodDelete, fmt.Sprintf("%s/product/%d", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Deleted)
}

func TestReadImage_RawPayload(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	id := createProduct(t, srv, "Product1", "Category1", []byte{0x01, 0x02})

	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/product/%d", srv.URL, id), nil)
	var p productResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	require.Len(t, p.Images, 1)

	resp = doRequest(t, http.MethodGet, fmt.Sprintf("%s/image/%d", srv.URL, p.Images[0].ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestSearchAndLists(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	createProduct(t, srv, "Red Widget", "Tools")
	createProduct(t, srv, "Blue Widget", "Tools")
	createProduct(t, srv, "Gadget", "Toys")

	resp := doRequest(t, http.MethodGet, srv.URL+"/search/Widget", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []productResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	assert.Len(t, found, 2)

	resp = doRequest(t, http.MethodGet, srv.URL+"/list", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ranked []rankedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, rankedResponse{Name: "Tools", Score: 2}, ranked[0])

	catID := found[0].MainCategory.ID
	resp = doRequest(t, http.MethodGet, fmt.Sprintf("%s/list/%d", srv.URL, catID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inCategory []productResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inCategory))
	assert.Len(t, inCategory, 2)
}
