package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/commerce/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath       string
	requestTimeout time.Duration
	middlewares    []func(http.Handler) http.Handler
	health         *HealthHandlers
	groups         map[string]RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"

	groupPublic    = "public"
	groupPayments  = "payments"
	groupInventory = "inventory"
)

// routeGroups lists the mounted groups under the API prefix in mount order.
var routeGroups = []string{groupPublic, groupPayments, groupInventory}

// NewRouter constructs the chi router with shared middleware and the public, payments and inventory groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:       defaultAPIPrefix,
		requestTimeout: defaultTimeout,
		groups:         make(map[string]RouteRegistrar, len(routeGroups)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.requestTimeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range routeGroups {
			registrar := cfg.groups[name]
			api.Route("/"+name, func(group chi.Router) {
				if registrar == nil {
					registerNotImplemented(group, name)
					return
				}
				registrar(group)
			})
		}
	})
	return r
}

// WithRequestTimeout overrides the per-request deadline applied before any handler runs.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.requestTimeout = d
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithPublicRoutes configures the registrar responsible for unauthenticated endpoints.
func WithPublicRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[groupPublic] = reg
	}
}

// WithPaymentRoutes configures the registrar responsible for checkout and verification endpoints.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[groupPayments] = reg
	}
}

// WithInventoryRoutes configures the registrar responsible for raw material endpoints.
func WithInventoryRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[groupInventory] = reg
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
