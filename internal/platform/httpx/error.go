// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/requestctx"
)

// Shopper facing messages shared by handlers.
const (
	MessageInternal    = "Algo deu errado. Tente novamente em instantes."
	MessageInvalidBody = "Não foi possível ler os dados enviados."
	MessageUnavailable = "Serviço temporariamente indisponível. Tente novamente em instantes."
)

// Error is an API failure. It renders as
//
//	{"error": code, "message": msg, "status": n, "request_id": ..., "trace_id": ..., <details>}
//
// with details merged at the top level.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any

	requestID string
	traceID   string
}

// NewError builds an Error; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: oneLine(code, 80), Message: oneLine(message, 512), Status: status}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails merges extra top-level fields into the body. Reserved keys are not overridden.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := maps.Clone(e.Details)
	if merged == nil {
		merged = make(map[string]any, len(details))
	}
	maps.Copy(merged, details)
	e.Details = merged
	return e
}

func (e Error) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(e.Details)+5)
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if e.requestID != "" {
		body["request_id"] = e.requestID
	}
	if e.traceID != "" {
		body["trace_id"] = e.traceID
	}
	return json.Marshal(body)
}

// WriteJSON writes payload with status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes err, stamped with the request and trace ids found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	err.requestID = oneLine(middleware.GetReqID(ctx), 80)
	err.traceID = oneLine(requestctx.TraceID(ctx), 64)
	WriteJSON(w, err.Status, err)
}

func oneLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
