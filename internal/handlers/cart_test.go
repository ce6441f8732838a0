package handlers

import (
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/cartstore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

type cartEnvelope struct {
	Cart struct {
		ID string `json:"id"`
		Items []struct {
			ProductID string       `json:"productId"`
			Quantity  int          `json:"quantity"`
			LineTotal moneyPayload `json:"lineTotal"`
			Stale     bool         `json:"stale"`
		} `json:"items"`
		Coupons []struct {
			Code   string       `json:"code"`
			Amount moneyPayload `json:"amount"`
		} `json:"coupons"`
		PostalCode     string                       `json:"postalCode"`
		FreightOptions []freightPayload             `json:"freightOptions"`
		Freight        *freightPayload              `json:"freight"`
		Steps          map[string]map[string]string `json:"steps"`
		Totals         totalsPayload                `json:"totals"`
		ItemCount      int                          `json:"itemCount"`
	} `json:"cart"`
	Quote    *quoteResponse `json:"quote"`
	Warnings []string       `json:"warnings"`
}

func newCartRouter(t *testing.T) (http.Handler, *stubCatalog, *stubFreight) {
	t.Helper()
	catalog := newStubCatalog()
	freight := &stubFreight{}
	registry, err := cartstore.NewRegistry(cartstore.RegistryDeps{
		Persister: cartstore.NewMemoryPersister(),
		Catalog:   catalog,
		Coupons:   stubCoupons{},
		Freight:   freight,
		Clock:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(registry).Routes)
	return router, catalog, freight
}

func createCart(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/cart", nil, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.ID == "" {
		t.Fatal("expected cart id")
	}
	if loc := rr.Header().Get("Location"); loc != "/cart/"+resp.Cart.ID {
		t.Fatalf("unexpected location %q", loc)
	}
	return resp.Cart.ID
}

func TestCartHandlersItemLifecycle(t *testing.T) {
	router, _, _ := newCartRouter(t)
	id := createCart(t, router)
	base := "/cart/" + id

	rr := doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-serum", "quantity": 1}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-serum"}, nil)
	resp := decodeJSON[cartEnvelope](t, rr)
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].Quantity != 2 {
		t.Fatalf("expected merged line with quantity 2, got %+v", resp.Cart.Items)
	}
	if resp.Cart.Totals.Subtotal.Cents != 19998 {
		t.Fatalf("expected subtotal 19998, got %d", resp.Cart.Totals.Subtotal.Cents)
	}
	if resp.Cart.Totals.Subtotal.Display != "R$ 199,98" {
		t.Fatalf("unexpected display %q", resp.Cart.Totals.Subtotal.Display)
	}

	rr = doJSON(t, router, http.MethodPatch, base+"/items/p-serum", map[string]any{"quantity": 0}, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity clamped to 1, got %d", resp.Cart.Items[0].Quantity)
	}

	rr = doJSON(t, router, http.MethodPatch, base+"/items/unknown", map[string]any{"quantity": 3}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing item, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodDelete, base+"/items/p-serum", nil, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if len(resp.Cart.Items) != 0 || resp.Cart.Totals.Total.Cents != 0 {
		t.Fatalf("expected empty cart, got %+v", resp.Cart)
	}
}

func TestCartHandlersRejectOversizedQuantity(t *testing.T) {
	router, _, _ := newCartRouter(t)
	id := createCart(t, router)
	base := "/cart/" + id

	rr := doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-serum", "quantity": 1}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	requests := []struct {
		method, path string
		body         map[string]any
	}{
		{http.MethodPatch, base + "/items/p-serum", map[string]any{"quantity": math.MaxInt64}},
		{http.MethodPost, base + "/items", map[string]any{"productId": "p-serum", "quantity": math.MaxInt64}},
		{http.MethodPost, base + "/items", map[string]any{"productId": "p-serum", "quantity": cartstore.MaxQuantity}},
	}
	for _, req := range requests {
		rr := doJSON(t, router, req.method, req.path, req.body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d: %s", req.method, req.path, rr.Code, rr.Body.String())
		}
		if body := decodeJSON[errorBody](t, rr); body.Error != "invalid_item" {
			t.Fatalf("%s %s: expected invalid_item, got %s", req.method, req.path, body.Error)
		}
	}

	rr = doJSON(t, router, http.MethodGet, base, nil, nil)
	if resp := decodeJSON[cartEnvelope](t, rr); resp.Cart.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity to stay 1, got %d", resp.Cart.Items[0].Quantity)
	}
}

func TestStoreErrorMapsPricingInput(t *testing.T) {
	err := fmt.Errorf("cart cart_1: %w: cart subtotal overflow", services.ErrPricingInvalidInput)
	apiErr := storeError(err)
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != "invalid_item" {
		t.Fatalf("expected 422 invalid_item, got %d %s", apiErr.Status, apiErr.Code)
	}
}

func TestCartHandlersUnknownProductAndSession(t *testing.T) {
	router, _, _ := newCartRouter(t)
	id := createCart(t, router)

	rr := doJSON(t, router, http.MethodPost, "/cart/"+id+"/items", map[string]any{"productId": "nope", "quantity": 1}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeJSON[errorBody](t, rr); body.Error != "product_not_found" {
		t.Fatalf("expected product_not_found, got %s", body.Error)
	}

	rr = doJSON(t, router, http.MethodGet, "/cart/cart_missing", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeJSON[errorBody](t, rr); body.Error != "cart_not_found" {
		t.Fatalf("expected cart_not_found, got %s", body.Error)
	}

	rr = doJSON(t, router, http.MethodPost, "/cart/"+id+"/items", "{not json", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestCartHandlersCoupons(t *testing.T) {
	router, _, _ := newCartRouter(t)
	id := createCart(t, router)
	base := "/cart/" + id
	doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-serum", "quantity": 2}, nil)

	rr := doJSON(t, router, http.MethodPost, base+"/coupons", map[string]any{"code": "bemvinda10"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.Totals.Discount.Cents != 2000 || resp.Cart.Totals.Total.Cents != 17998 {
		t.Fatalf("unexpected totals %+v", resp.Cart.Totals)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", resp.Warnings)
	}

	rr = doJSON(t, router, http.MethodPost, base+"/coupons", map[string]any{"code": "BEMVINDA10"}, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if len(resp.Cart.Coupons) != 1 || len(resp.Warnings) != 1 {
		t.Fatalf("expected duplicate coupon warning, got coupons=%v warnings=%v", resp.Cart.Coupons, resp.Warnings)
	}

	rr = doJSON(t, router, http.MethodPost, base+"/coupons", map[string]any{"code": "FRETE50"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for minimum not met, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, base+"/coupons", map[string]any{"code": "NAOEXISTE"}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown coupon, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodDelete, base+"/coupons/bemvinda10", nil, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if len(resp.Cart.Coupons) != 0 || resp.Cart.Totals.Discount.Cents != 0 {
		t.Fatalf("expected coupon removed, got %+v", resp.Cart)
	}
}

func TestCartHandlersFreight(t *testing.T) {
	router, _, freight := newCartRouter(t)
	id := createCart(t, router)
	base := "/cart/" + id

	rr := doJSON(t, router, http.MethodPut, base+"/freight", map[string]any{"carrier": "Correios", "serviceCode": "1"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before quoting, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, base+"/freight/quote", map[string]any{"postalCode": "01310-100"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d", rr.Code)
	}

	doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-serum", "quantity": 2}, nil)
	rr = doJSON(t, router, http.MethodPost, base+"/freight/quote", map[string]any{"postalCode": "123"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid CEP, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, base+"/freight/quote", map[string]any{"postalCode": "01310-100"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON[cartEnvelope](t, rr)
	if resp.Quote == nil || resp.Quote.Cheapest == nil || resp.Quote.Cheapest.ServiceName != "PAC" {
		t.Fatalf("expected PAC as cheapest, got %+v", resp.Quote)
	}
	if resp.Cart.PostalCode != "01310100" || len(resp.Cart.FreightOptions) != 2 {
		t.Fatalf("expected quoted options stored, got %+v", resp.Cart)
	}

	rr = doJSON(t, router, http.MethodPut, base+"/freight", map[string]any{"carrier": "correios", "serviceCode": "2"}, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.Freight == nil || resp.Cart.Freight.Price.Cents != 2890 {
		t.Fatalf("expected SEDEX selected at quoted price, got %+v", resp.Cart.Freight)
	}
	if resp.Cart.Totals.Total.Cents != 19998+2890 {
		t.Fatalf("expected total with freight, got %d", resp.Cart.Totals.Total.Cents)
	}

	rr = doJSON(t, router, http.MethodPut, base+"/freight", map[string]any{"carrier": "Correios", "serviceCode": "99"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unquoted service, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodDelete, base+"/freight", nil, nil)
	resp = decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.Freight != nil || len(resp.Cart.FreightOptions) != 0 || resp.Cart.Totals.Freight.Cents != 0 {
		t.Fatalf("expected freight reset, got %+v", resp.Cart)
	}
	if freight.calls.Load() != 3 {
		t.Fatalf("expected 3 quote calls, got %d", freight.calls.Load())
	}
}

func TestCartHandlersValidateAndSteps(t *testing.T) {
	router, catalog, _ := newCartRouter(t)
	id := createCart(t, router)
	base := "/cart/" + id
	doJSON(t, router, http.MethodPost, base+"/items", map[string]any{"productId": "p-batom", "quantity": 1}, nil)

	catalog.products[1].Price = 4990
	rr := doJSON(t, router, http.MethodPost, base+"/validate", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeJSON[cartEnvelope](t, rr)
	if !resp.Cart.Items[0].Stale || resp.Cart.Items[0].LineTotal.Cents != 4990 || len(resp.Warnings) != 1 {
		t.Fatalf("expected repriced stale line with warning, got %+v %v", resp.Cart.Items, resp.Warnings)
	}

	rr = doJSON(t, router, http.MethodPut, base+"/steps/identification", map[string]string{"email": " ana@example.com "}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = decodeJSON[cartEnvelope](t, rr)
	if resp.Cart.Steps["identification"]["email"] != "ana@example.com" {
		t.Fatalf("expected step stored, got %v", resp.Cart.Steps)
	}

	rr = doJSON(t, router, http.MethodPut, base+"/steps/unknown", map[string]string{"a": "b"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown step, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodDelete, base, nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodGet, base, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected deleted cart to be gone, got %d", rr.Code)
	}
}

func TestCartHandlersUnavailable(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(nil).Routes)

	rr := doJSON(t, router, http.MethodPost, "/cart", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
