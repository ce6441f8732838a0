package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/cartstore"
	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

const (
	maxCartBodySize    = 16 * 1024
	maxStepFieldCount  = 30
	maxStepValueLength = 500
)

// CartRegistry is the cart session API the handlers drive.
type CartRegistry interface {
	Create(ctx context.Context) (domain.Cart, error)
	Snapshot(ctx context.Context, cartID string) (domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
	Update(ctx context.Context, cartID string, fn func(*cartstore.Store) error) (domain.Cart, error)
	AddProduct(ctx context.Context, cartID, productID string, quantity int) (domain.Cart, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (domain.Cart, bool, error)
	QuoteFreight(ctx context.Context, cartID, postalCode string) (domain.Cart, shipping.Quote, error)
	Validate(ctx context.Context, cartID string) (domain.Cart, error)
}

// CartHandlers exposes guest cart sessions keyed by session id.
type CartHandlers struct {
	carts CartRegistry
}

// NewCartHandlers constructs cart session handlers.
func NewCartHandlers(carts CartRegistry) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
	r.Route("/{sessionId}", func(cart chi.Router) {
		cart.Get("/", h.getCart)
		cart.Delete("/", h.deleteCart)
		cart.Post("/items", h.addItem)
		cart.Patch("/items/{productId}", h.changeQuantity)
		cart.Delete("/items/{productId}", h.removeItem)
		cart.Post("/coupons", h.applyCoupon)
		cart.Delete("/coupons/{code}", h.removeCoupon)
		cart.Post("/freight/quote", h.quoteFreight)
		cart.Put("/freight", h.selectFreight)
		cart.Delete("/freight", h.resetFreight)
		cart.Post("/validate", h.validate)
		cart.Put("/steps/{step}", h.saveStep)
	})
}

type cartResponse struct {
	Cart     cartPayload    `json:"cart"`
	Quote    *quoteResponse `json:"quote,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type changeQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type quoteFreightRequest struct {
	PostalCode string `json:"postalCode"`
}

type selectFreightRequest struct {
	Carrier     string `json:"carrier"`
	ServiceCode string `json:"serviceCode"`
}

func (h *CartHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return false
	}
	return true
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "sessionId"))
}

func (h *CartHandlers) respond(ctx context.Context, w http.ResponseWriter, status int, cart domain.Cart, err error) {
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	cart, err := h.carts.Create(ctx)
	if err == nil {
		w.Header().Set("Location", strings.TrimRight(r.URL.Path, "/")+"/"+cart.ID)
	}
	h.respond(ctx, w, http.StatusCreated, cart, err)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	cart, err := h.carts.Snapshot(ctx, sessionID(r))
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	if err := h.carts.Clear(ctx, sessionID(r)); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cart, err := h.carts.AddProduct(ctx, sessionID(r), req.ProductID, req.Quantity)
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) changeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req changeQuantityRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	productID := chi.URLParam(r, "productId")
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		return store.ChangeQuantity(productID, req.Quantity)
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	productID := chi.URLParam(r, "productId")
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		return store.RemoveItem(productID)
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req applyCouponRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, added, err := h.carts.ApplyCoupon(ctx, sessionID(r), req.Code)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	resp := cartResponse{Cart: buildCartPayload(cart)}
	if !added {
		resp.Warnings = []string{"Este cupom já foi aplicado."}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	code := chi.URLParam(r, "code")
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		return store.RemoveCoupon(code)
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) quoteFreight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req quoteFreightRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, quote, err := h.carts.QuoteFreight(ctx, sessionID(r), req.PostalCode)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	quoted := buildQuoteResponse(quote)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart), Quote: &quoted})
}

func (h *CartHandlers) selectFreight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req selectFreightRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	want := domain.FreightOption{
		Carrier:     strings.TrimSpace(req.Carrier),
		ServiceCode: strings.TrimSpace(req.ServiceCode),
	}
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		if len(store.Snapshot().FreightOptions) == 0 {
			return fmt.Errorf("%w: no quote for this cart", cartstore.ErrInvalidFreight)
		}
		return store.SelectFreight(want)
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) resetFreight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		return store.ResetFreight()
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func (h *CartHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	cart, err := h.carts.Validate(ctx, sessionID(r))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	resp := cartResponse{Cart: buildCartPayload(cart)}
	for _, item := range cart.Items {
		if item.Stale {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %s", item.Name, item.StaleReason))
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CartHandlers) saveStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var data map[string]string
	if !decodeBody(w, r, maxCartBodySize, &data) {
		return
	}
	if len(data) > maxStepFieldCount {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Campos demais para esta etapa.", http.StatusBadRequest))
		return
	}
	for key, value := range data {
		if strings.TrimSpace(key) == "" || len(value) > maxStepValueLength {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", httpx.MessageInvalidBody, http.StatusBadRequest))
			return
		}
	}
	step := domain.CheckoutStep(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "step"))))
	cart, err := h.carts.Update(ctx, sessionID(r), func(store *cartstore.Store) error {
		return store.SetStep(step, data)
	})
	h.respond(ctx, w, http.StatusOK, cart, err)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	var sessionErr *cartstore.Error
	if errors.As(err, &sessionErr) && sessionErr.IsNotFound() {
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "Carrinho não encontrado ou expirado.", http.StatusNotFound))
		return
	}
	apiErr := storeError(err)
	if apiErr.Code == "not_found" {
		apiErr = httpx.NewError("product_not_found", "Produto não encontrado.", http.StatusNotFound)
	}
	httpx.WriteError(ctx, w, apiErr)
}
