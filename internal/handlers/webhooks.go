package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// CatalogInvalidator drops cached catalog data.
type CatalogInvalidator interface {
	Invalidate()
}

// WebhookHandlers receives payment provider and CMS notifications.
type WebhookHandlers struct {
	orders       services.OrderStatusService
	stripeSecret string
	catalog      CatalogInvalidator
	cmsGuard     func(http.Handler) http.Handler
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// WebhookOption customises WebhookHandlers.
type WebhookOption func(*WebhookHandlers)

// WithStripeWebhook enables /stripe, verifying events with the endpoint signing secret.
func WithStripeWebhook(secret string, orders services.OrderStatusService) WebhookOption {
	return func(h *WebhookHandlers) {
		h.stripeSecret = secret
		h.orders = orders
	}
}

// WithCMSWebhook enables /cms behind guard, which must authenticate the sender.
func WithCMSWebhook(catalog CatalogInvalidator, guard func(http.Handler) http.Handler) WebhookOption {
	return func(h *WebhookHandlers) {
		h.catalog = catalog
		h.cmsGuard = guard
	}
}

// WithWebhookLogger sets the event logger.
func WithWebhookLogger(logger func(ctx context.Context, event string, fields map[string]any)) WebhookOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{logger: func(context.Context, string, map[string]any) {}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the configured webhook endpoints. The CMS route is only mounted with a guard.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.stripeSecret != "" && h.orders != nil {
		r.Post("/stripe", h.stripeEvent)
	}
	if h.catalog != nil && h.cmsGuard != nil {
		r.With(h.cmsGuard).Post("/cms", h.cmsEvent)
	}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Action   string `json:"action,omitempty"`
}

func (h *WebhookHandlers) stripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", httpx.MessageInvalidBody, http.StatusBadRequest))
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.stripeSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger(ctx, "webhook.stripe_rejected", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
	default:
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Action: "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &intent) != nil || strings.TrimSpace(intent.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_event", "payment intent missing from event", http.StatusBadRequest))
		return
	}

	result, err := h.orders.RefreshByPaymentIntent(ctx, intent.ID)
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		// Intents created outside the storefront are acknowledged so the provider stops retrying.
		h.logger(ctx, "webhook.stripe_unknown_intent", map[string]any{"intentId": intent.ID, "type": string(event.Type)})
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Action: "unknown_intent"})
		return
	case err != nil:
		h.logger(ctx, "webhook.stripe_refresh_failed", map[string]any{"intentId": intent.ID, "error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("refresh_failed", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	h.logger(ctx, "webhook.stripe_processed", map[string]any{
		"eventId":       event.ID,
		"type":          string(event.Type),
		"orderId":       result.OrderID,
		"paymentStatus": string(result.PaymentStatus),
	})
	httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Action: "refreshed"})
}

type cmsEventRequest struct {
	Event string `json:"event"`
	Model string `json:"model"`
}

func (h *WebhookHandlers) cmsEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cmsEventRequest
	if !decodeBody(w, r, maxWebhookBodySize, &req) {
		return
	}

	model := strings.ToLower(strings.TrimSpace(req.Model))
	switch model {
	case "product", "products", "":
		h.catalog.Invalidate()
		h.logger(ctx, "webhook.cms_invalidated", map[string]any{"event": req.Event, "model": model})
		httpx.WriteJSON(w, http.StatusAccepted, webhookAck{Received: true, Action: "invalidated"})
	default:
		httpx.WriteJSON(w, http.StatusAccepted, webhookAck{Received: true, Action: "ignored"})
	}
}
