package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/cartstore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

const defaultBodyLimit = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON body into dst and writes the error response itself when it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "O pedido enviado é grande demais.", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", httpx.MessageInvalidBody, http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", httpx.MessageInvalidBody, http.StatusBadRequest))
		return false
	}
	return true
}

// writeStoreError maps cart, coupon, shipping and repository failures onto API errors.
func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, storeError(err))
}

func storeError(err error) httpx.Error {
	switch {
	case errors.Is(err, services.ErrCouponInvalidCode):
		return httpx.NewError("coupon_invalid", "Informe um código de cupom válido.", http.StatusBadRequest)
	case errors.Is(err, services.ErrCouponNotFound):
		return httpx.NewError("coupon_not_found", "Cupom não encontrado.", http.StatusNotFound)
	case errors.Is(err, services.ErrCouponInactive):
		return httpx.NewError("coupon_inactive", "Este cupom não está mais ativo.", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCouponMinimumNotMet):
		return httpx.NewError("coupon_minimum_not_met", "O valor mínimo para este cupom não foi atingido.", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCouponUnavailable), errors.Is(err, services.ErrCouponRepositoryMissing),
		errors.Is(err, cartstore.ErrCouponsUnavailable), errors.Is(err, cartstore.ErrCatalogUnavailable),
		errors.Is(err, cartstore.ErrQuoteUnavailable):
		return httpx.NewError("unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable)

	case errors.Is(err, cartstore.ErrCartIDRequired):
		return httpx.NewError("invalid_request", "Sessão de carrinho inválida.", http.StatusBadRequest)
	case errors.Is(err, cartstore.ErrInvalidItem):
		return httpx.NewError("invalid_item", "Produto ou quantidade inválidos.", http.StatusBadRequest)
	case errors.Is(err, services.ErrPricingInvalidInput):
		return httpx.NewError("invalid_item", "Produto ou quantidade inválidos.", http.StatusUnprocessableEntity)
	case errors.Is(err, cartstore.ErrItemNotFound):
		return httpx.NewError("item_not_found", "Produto não está no carrinho.", http.StatusNotFound)
	case errors.Is(err, cartstore.ErrInvalidFreight):
		return httpx.NewError("invalid_freight", "Opção de frete indisponível. Calcule o frete novamente.", http.StatusUnprocessableEntity)
	case errors.Is(err, cartstore.ErrInvalidStep):
		return httpx.NewError("invalid_step", "Etapa de checkout desconhecida.", http.StatusBadRequest)

	case errors.Is(err, shipping.ErrInvalidPostalCode):
		return httpx.NewError("invalid_postal_code", shipping.MessageInvalidPostalCode, http.StatusBadRequest)
	case errors.Is(err, shipping.ErrEmptyCart):
		return httpx.NewError("empty_cart", shipping.MessageEmptyCart, http.StatusUnprocessableEntity)
	case errors.Is(err, shipping.ErrAddressNotFound):
		return httpx.NewError("address_not_found", shipping.MessageAddressNotFound, http.StatusNotFound)
	case errors.Is(err, shipping.ErrStaleResponse):
		return httpx.NewError("superseded", "Uma consulta mais recente substituiu esta.", http.StatusConflict)
	case errors.Is(err, shipping.ErrAddressLookupUnavailable):
		return httpx.NewError("address_lookup_failed", shipping.MessageAddressFailed, http.StatusBadGateway)
	case errors.Is(err, shipping.ErrFreightUnavailable):
		return httpx.NewError("freight_failed", shipping.UserMessage(err), http.StatusBadGateway)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return httpx.NewError("not_found", "Não encontrado.", http.StatusNotFound)
		case repoErr.IsConflict():
			return httpx.NewError("conflict", "O recurso foi alterado. Atualize e tente novamente.", http.StatusConflict)
		case repoErr.IsUnavailable():
			return httpx.NewError("unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return httpx.NewError("timeout", httpx.MessageUnavailable, http.StatusGatewayTimeout)
	}
	return httpx.NewError("internal", httpx.MessageInternal, http.StatusInternalServerError)
}
