package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/pagination"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/textutil"
)

// ProductCatalog is the read side of the CMS catalog.
type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (domain.Product, error)
}

// ProductHandlers exposes the public catalog.
type ProductHandlers struct {
	catalog ProductCatalog
}

// NewProductHandlers constructs catalog handlers.
func NewProductHandlers(catalog ProductCatalog) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{slug}", h.getProduct)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	Total         int              `json:"total"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

var productPageOptions = pagination.Options{
	MaxPageSize:        pagination.DefaultMaxPageSize,
	AllowedOrderFields: []string{"name", "price", "updatedAt"},
}

var productComparators = map[string]pagination.Comparator[domain.Product]{
	"name":      pagination.By(func(p domain.Product) string { return textutil.FoldCode(p.Name) }),
	"price":     pagination.By(func(p domain.Product) int64 { return p.Price }),
	"updatedAt": pagination.By(func(p domain.Product) int64 { return p.UpdatedAt.UnixNano() }),
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, productPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	query := textutil.FoldCode(r.URL.Query().Get("q"))
	matched := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if query != "" && !strings.Contains(textutil.FoldCode(product.Name), query) && !strings.Contains(textutil.FoldCode(product.Slug), query) {
			continue
		}
		matched = append(matched, product)
	}

	page := pagination.Apply(matched, params, productComparators)
	resp := productListResponse{
		Items:         make([]productPayload, 0, len(page.Items)),
		Total:         page.Total,
		NextPageToken: page.NextPageToken,
	}
	for _, product := range page.Items {
		resp.Items = append(resp.Items, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Produto inválido.", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProductBySlug(ctx, slug)
	if err != nil {
		apiErr := storeError(err)
		if apiErr.Status == http.StatusNotFound {
			apiErr = httpx.NewError("product_not_found", "Produto não encontrado.", http.StatusNotFound)
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductPayload(product))
}
