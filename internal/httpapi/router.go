package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/gatejohn/internal/rate"
)

// RouterConfig tunes the optional pieces of the router.
type RouterConfig struct {
	// Limiter gates /oauth/token when set.
	Limiter rate.Limiter
}

// NewRouter assembles the gateway's routes with the standard middleware
// stack (request id, access log).
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, accessLog)

	r.Route("/oauth", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.With(rateLimit(cfg.Limiter)).Post("/token", h.Token)
		} else {
			r.Post("/token", h.Token)
		}
		r.Post("/introspect", h.Introspect)
		r.Post("/revoke", h.Revoke)
	})

	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
