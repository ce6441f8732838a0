package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
)

// ReplayHeader marks a response served from the store.
const ReplayHeader = "X-Idempotent-Replay"

const maxKeyLength = 255

// Logger matches observability.EventLogger.
type Logger func(ctx context.Context, event string, fields map[string]any)

type guard struct {
	store        Store
	header       string
	ttl          time.Duration
	methods      map[string]bool
	requireKey   bool
	scopeHeaders []string
	now          func() time.Time
	log          Logger
}

type MiddlewareOption func(*guard)

// WithHeader renames the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods replaces the guarded methods, POST by default.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]bool, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				set[m] = true
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

// WithRequiredKey answers 400 to guarded requests without a key instead of passing them through.
func WithRequiredKey() MiddlewareOption {
	return func(g *guard) { g.requireKey = true }
}

// WithScopeHeaders gives each distinct value of the named headers its own key space, so a
// staff request never replays a customer's response.
func WithScopeHeaders(names ...string) MiddlewareOption {
	return func(g *guard) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				g.scopeHeaders = append(g.scopeHeaders, name)
			}
		}
	}
}

func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.log = logger
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// Middleware runs a keyed request once and replays its response to retries. 5xx responses
// are not kept, so the client may retry them with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store:   store,
		header:  "Idempotency-Key",
		ttl:     DefaultTTL,
		methods: map[string]bool{http.MethodPost: true},
		now:     time.Now,
		log:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	if !g.methods[r.Method] {
		next.ServeHTTP(w, r)
		return
	}
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.requireKey:
		fail(ctx, w, http.StatusBadRequest, "idempotency_key_required", "Informe o cabeçalho "+g.header+".")
		return
	case key == "":
		next.ServeHTTP(w, r)
		return
	case len(key) > maxKeyLength:
		fail(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", "Chave de idempotência muito longa.")
		return
	}

	body, err := rewindableBody(r)
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid_body", httpx.MessageInvalidBody)
		return
	}
	scope := g.scope(r)
	key = key + "|" + scope
	fp := fingerprint(r, body, scope)

	outcome, entry, err := g.store.Acquire(ctx, key, fp, g.now().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrKeyReused):
		fail(ctx, w, http.StatusConflict, "idempotency_key_conflict", "Esta chave de idempotência já foi usada em outro pedido.")
		return
	case err != nil:
		g.log(ctx, "idempotency.store_failed", map[string]any{"error": err})
		fail(ctx, w, http.StatusServiceUnavailable, "idempotency_store_error", httpx.MessageUnavailable)
		return
	case outcome == Replay:
		replay(w, entry)
		return
	case outcome == InFlight:
		fail(ctx, w, http.StatusConflict, "idempotency_in_progress", "Este pedido ainda está sendo processado.")
		return
	}

	buf := &bufferedResponse{header: make(http.Header)}
	next.ServeHTTP(buf, r)

	if buf.statusCode() >= http.StatusInternalServerError {
		g.release(ctx, key, fp)
		g.flush(ctx, w, buf)
		return
	}
	entry.Status = buf.statusCode()
	entry.Header = buf.header
	entry.Body = buf.body.Bytes()
	if err := g.store.Complete(ctx, key, entry, g.now().UTC(), g.ttl); err != nil {
		g.log(ctx, "idempotency.save_failed", map[string]any{"error": err, "status": entry.Status})
		g.release(ctx, key, fp)
		fail(ctx, w, http.StatusInternalServerError, "idempotency_store_error", httpx.MessageInternal)
		return
	}
	g.flush(ctx, w, buf)
}

func (g *guard) release(ctx context.Context, key, fp string) {
	if err := g.store.Release(ctx, key, fp); err != nil {
		g.log(ctx, "idempotency.release_failed", map[string]any{"error": err})
	}
}

func (g *guard) flush(ctx context.Context, w http.ResponseWriter, buf *bufferedResponse) {
	maps.Copy(w.Header(), buf.header)
	w.WriteHeader(buf.statusCode())
	if _, err := w.Write(buf.body.Bytes()); err != nil {
		g.log(ctx, "idempotency.flush_failed", map[string]any{"error": err})
	}
}

// scope is the route plus a short hash of every scope header present.
func (g *guard) scope(r *http.Request) string {
	var b strings.Builder
	b.WriteString(cmpPath(r.URL.Path))
	for _, name := range g.scopeHeaders {
		if value := strings.TrimSpace(r.Header.Get(name)); value != "" {
			b.WriteString("|" + strings.ToLower(name) + ":" + digest([]byte(value))[:16])
		}
	}
	return b.String()
}

func cmpPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func fingerprint(r *http.Request, body []byte, scope string) string {
	parts := []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), scope, ""}
	if len(body) > 0 {
		parts[len(parts)-1] = digest(body)
	}
	return digest([]byte(strings.Join(parts, "|")))
}

func rewindableBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replay(w http.ResponseWriter, entry Entry) {
	header := w.Header()
	clear(header)
	for name, values := range entry.Header {
		header[name] = append([]string(nil), values...)
	}
	header.Set(ReplayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

func fail(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// bufferedResponse holds the handler's response until the outcome is stored.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}
