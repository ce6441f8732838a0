package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

var testProducts = []domain.Product{
	{
		ID: "p-serum", Slug: "serum-facial", Name: "Sérum Facial", SKU: "SER-01",
		Price: 9999, OriginalPrice: int64Ptr(12990), Stock: intPtr(10), Published: true,
		Package: domain.PackageDimensions{WeightGrams: 250, WidthCM: 12, HeightCM: 4, LengthCM: 17},
	},
	{
		ID: "p-batom", Slug: "batom-matte", Name: "Batom Matte", SKU: "BAT-02",
		Price: 4590, Published: true,
	},
}

type stubCatalog struct {
	products    []domain.Product
	err         error
	invalidated atomic.Int32
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{products: append([]domain.Product(nil), testProducts...)}
}

func (s *stubCatalog) ListProducts(context.Context) ([]domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Product(nil), s.products...), nil
}

func (s *stubCatalog) GetProductBySlug(_ context.Context, slug string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	for _, p := range s.products {
		if strings.EqualFold(p.Slug, slug) {
			return p, nil
		}
	}
	return domain.Product{}, repositories.NewError(repositories.ErrorNotFound, "catalog.get", errors.New(slug))
}

func (s *stubCatalog) GetProductByID(_ context.Context, id string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, repositories.NewError(repositories.ErrorNotFound, "catalog.get", errors.New(id))
}

func (s *stubCatalog) Invalidate() {
	s.invalidated.Add(1)
}

type stubCoupons struct{}

func (stubCoupons) Resolve(_ context.Context, code string, subtotal int64) (domain.Coupon, error) {
	switch services.NormalizeCouponCode(code) {
	case "BEMVINDA10":
		return domain.Coupon{Code: "BEMVINDA10", Kind: domain.CouponKindPercentage, Value: 1000, Active: true}, nil
	case "FRETE50":
		if subtotal < 50000 {
			return domain.Coupon{}, services.ErrCouponMinimumNotMet
		}
		return domain.Coupon{Code: "FRETE50", Kind: domain.CouponKindFixed, Value: 5000, Active: true}, nil
	case "":
		return domain.Coupon{}, services.ErrCouponInvalidCode
	}
	return domain.Coupon{}, services.ErrCouponNotFound
}

var testFreightOptions = []domain.FreightOption{
	{Carrier: "Correios", ServiceName: "PAC", ServiceCode: "1", Price: 1500, DeliveryDays: 7},
	{Carrier: "Correios", ServiceName: "SEDEX", ServiceCode: "2", Price: 2890, DeliveryDays: 2},
}

type stubFreight struct {
	calls atomic.Int32
	err   error
}

func (s *stubFreight) Quote(_ context.Context, postalCode string, items []domain.CartLineItem) (shipping.Quote, error) {
	s.calls.Add(1)
	if s.err != nil {
		return shipping.Quote{}, s.err
	}
	cep, err := shipping.NormalizePostalCode(postalCode)
	if err != nil {
		return shipping.Quote{}, &shipping.QuoteError{Message: shipping.MessageInvalidPostalCode, Err: err}
	}
	if len(items) == 0 {
		return shipping.Quote{}, &shipping.QuoteError{Message: shipping.MessageEmptyCart, Err: shipping.ErrEmptyCart}
	}
	options := append([]domain.FreightOption(nil), testFreightOptions...)
	return shipping.Quote{PostalCode: cep, Options: options, Cheapest: shipping.Cheapest(options)}, nil
}

type loggedEvent struct {
	event  string
	fields map[string]any
}

type eventRecorder struct {
	events []loggedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.events = append(r.events, loggedEvent{event: event, fields: fields})
}

func (r *eventRecorder) has(event string) bool {
	for _, e := range r.events {
		if e.event == event {
			return true
		}
	}
	return false
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Fields  []string `json:"fields"`
}
