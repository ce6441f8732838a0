package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

const (
	maxQuoteBodySize  = 8 * 1024
	maxQuoteItemCount = 50
)

// AddressLookup resolves a CEP into an address.
type AddressLookup interface {
	LookupAddress(ctx context.Context, postalCode string) (domain.AddressLookup, error)
}

// FreightQuoter quotes freight options for a destination.
type FreightQuoter interface {
	Quote(ctx context.Context, postalCode string, items []domain.CartLineItem) (shipping.Quote, error)
}

// ShippingHandlers exposes CEP lookups and stateless freight quotes.
type ShippingHandlers struct {
	addresses AddressLookup
	freight   FreightQuoter
	products  services.ProductLookup
}

// NewShippingHandlers constructs shipping handlers. products resolves package dimensions for quotes.
func NewShippingHandlers(addresses AddressLookup, freight FreightQuoter, products services.ProductLookup) *ShippingHandlers {
	return &ShippingHandlers{
		addresses: addresses,
		freight:   freight,
		products:  products,
	}
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cep/{cep}", h.lookupCEP)
	r.Post("/quote", h.quote)
}

func (h *ShippingHandlers) lookupCEP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_lookup_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}
	address, err := h.addresses.LookupAddress(ctx, chi.URLParam(r, "cep"))
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildAddressPayload(address))
}

type quoteItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type quoteRequest struct {
	PostalCode string             `json:"postalCode"`
	Items      []quoteItemRequest `json:"items"`
}

type quoteResponse struct {
	PostalCode string           `json:"postalCode"`
	Options    []freightPayload `json:"options"`
	Cheapest   *freightPayload  `json:"cheapest,omitempty"`
}

func (h *ShippingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.freight == nil || h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("freight_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if !decodeBody(w, r, maxQuoteBodySize, &req) {
		return
	}
	if len(req.Items) > maxQuoteItemCount {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Itens demais para cotação.", http.StatusBadRequest))
		return
	}

	items := make([]domain.CartLineItem, 0, len(req.Items))
	for _, requested := range req.Items {
		productID := strings.TrimSpace(requested.ProductID)
		if productID == "" || requested.Quantity <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_item", "Produto ou quantidade inválidos.", http.StatusBadRequest))
			return
		}
		product, err := h.products.GetProductByID(ctx, productID)
		if err != nil {
			writeStoreError(ctx, w, err)
			return
		}
		items = append(items, domain.CartLineItem{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  requested.Quantity,
			Package:   product.Package,
		})
	}

	quote, err := h.freight.Quote(ctx, req.PostalCode, items)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildQuoteResponse(quote))
}

func buildQuoteResponse(quote shipping.Quote) quoteResponse {
	resp := quoteResponse{
		PostalCode: quote.PostalCode,
		Options:    buildFreightPayloads(quote.Options),
	}
	if quote.Cheapest != nil {
		cheapest := buildFreightPayload(*quote.Cheapest)
		resp.Cheapest = &cheapest
	}
	return resp
}
