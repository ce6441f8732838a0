package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

func newProductRouter(catalog ProductCatalog) http.Handler {
	router := chi.NewRouter()
	router.Route("/products", NewProductHandlers(catalog).Routes)
	return router
}

func TestProductHandlersList(t *testing.T) {
	router := newProductRouter(newStubCatalog())

	rr := doJSON(t, router, http.MethodGet, "/products", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeJSON[productListResponse](t, rr)
	if resp.Total != 2 || len(resp.Items) != 2 {
		t.Fatalf("expected 2 products, got %+v", resp)
	}
	serum := resp.Items[0]
	if serum.Price.Display != "R$ 99,99" || serum.OriginalPrice == nil || serum.OriginalPrice.Cents != 12990 {
		t.Fatalf("unexpected prices %+v", serum)
	}
	if serum.Package.WeightGrams != 250 {
		t.Fatalf("expected package dimensions, got %+v", serum.Package)
	}

	rr = doJSON(t, router, http.MethodGet, "/products?q=s%C3%A9rum", nil, nil)
	resp = decodeJSON[productListResponse](t, rr)
	if resp.Total != 1 || resp.Items[0].ID != "p-serum" {
		t.Fatalf("expected accent-insensitive match on serum, got %+v", resp)
	}
}

func TestProductHandlersListPages(t *testing.T) {
	router := newProductRouter(newStubCatalog())

	rr := doJSON(t, router, http.MethodGet, "/products?pageSize=1&orderBy=price", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	first := decodeJSON[productListResponse](t, rr)
	if first.Total != 2 || len(first.Items) != 1 || first.Items[0].ID != "p-batom" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}

	rr = doJSON(t, router, http.MethodGet, "/products?pageSize=1&orderBy=price&pageToken="+first.NextPageToken, nil, nil)
	second := decodeJSON[productListResponse](t, rr)
	if len(second.Items) != 1 || second.Items[0].ID != "p-serum" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}

	rr = doJSON(t, router, http.MethodGet, "/products?orderBy=stock", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported ordering, got %d", rr.Code)
	}
	if body := decodeJSON[errorBody](t, rr); body.Error != "invalid_query" {
		t.Fatalf("expected invalid_query, got %s", body.Error)
	}
}

func TestProductHandlersGet(t *testing.T) {
	router := newProductRouter(newStubCatalog())

	rr := doJSON(t, router, http.MethodGet, "/products/batom-matte", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if product := decodeJSON[productPayload](t, rr); product.ID != "p-batom" || product.OriginalPrice != nil {
		t.Fatalf("unexpected product %+v", product)
	}

	rr = doJSON(t, router, http.MethodGet, "/products/nao-existe", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeJSON[errorBody](t, rr); body.Error != "product_not_found" {
		t.Fatalf("expected product_not_found, got %s", body.Error)
	}
}

func TestProductHandlersCatalogUnavailable(t *testing.T) {
	catalog := newStubCatalog()
	catalog.err = repositories.NewError(repositories.ErrorUnavailable, "catalog.list", errors.New("cms timeout"))
	router := newProductRouter(catalog)

	rr := doJSON(t, router, http.MethodGet, "/products", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	rr = doJSON(t, newProductRouter(nil), http.MethodGet, "/products/serum-facial", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without catalog, got %d", rr.Code)
	}
}
