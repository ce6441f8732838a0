package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
)

// RouteRegistrar adds a handler set's routes to its group.
type RouteRegistrar func(r chi.Router)

// Route groups mounted under /api/v1. A group without a registrar answers 501.
const (
	GroupProducts = "products"
	GroupCart     = "cart"
	GroupShipping = "shipping"
	GroupCheckout = "checkout"
	GroupOrders   = "orders"
	GroupWebhooks = "webhooks"
)

var storefrontGroups = []string{GroupProducts, GroupCart, GroupShipping, GroupCheckout, GroupOrders, GroupWebhooks}

type routeGroup struct {
	routes     RouteRegistrar
	middleware []func(http.Handler) http.Handler
}

type routerConfig struct {
	prefix     string
	timeout    time.Duration
	middleware []func(http.Handler) http.Handler
	health     *HealthHandlers
	groups     map[string]*routeGroup
}

type Option func(*routerConfig)

func (c *routerConfig) group(name string) *routeGroup {
	g, ok := c.groups[name]
	if !ok {
		g = &routeGroup{}
		c.groups[name] = g
	}
	return g
}

// NewRouter builds the storefront API: /healthz and /readyz at the root and one group per
// resource under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{
		prefix:  "/api/v1",
		timeout: 60 * time.Second,
		groups:  make(map[string]*routeGroup),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			"method "+req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.prefix, func(api chi.Router) {
		for _, name := range storefrontGroups {
			g := cfg.group(name)
			api.Route("/"+name, func(sub chi.Router) {
				for _, mw := range g.middleware {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if g.routes == nil {
					notImplemented(sub, name)
					return
				}
				g.routes(sub)
			})
		}
	})
	return r
}

// WithMiddlewares runs after request id, real ip and timeout on every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middleware = append(cfg.middleware, mw...) }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithRoutes installs the registrar for one of the Group* names.
func WithRoutes(group string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.group(group).routes = reg }
}

// WithGroupMiddleware wraps every route in the group, including the 501 fallback.
func WithGroupMiddleware(group string, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		g := cfg.group(group)
		g.middleware = append(g.middleware, mw...)
	}
}

func notImplemented(r chi.Router, group string) {
	respond := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", group+" routes not implemented", http.StatusNotImplemented))
	}
	r.HandleFunc("/", respond)
	r.HandleFunc("/*", respond)
	r.NotFound(respond)
	r.MethodNotAllowed(respond)
}
