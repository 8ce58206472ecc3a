// Package app wires configuration, observability, the registry, the
// broker, and the HTTP transport into one running process.
package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/hordebroker/broker/internal/adapter/httpserver"
	"github.com/hordebroker/broker/internal/adapter/observability"
	"github.com/hordebroker/broker/internal/config"
)

// syncRouteTimeoutMargin is added on top of PromptStaleSeconds so the
// sync handler's own expiry (§4.4 step 6) always fires before the HTTP
// layer would cut the connection out from under it.
const syncRouteTimeoutMargin = 30 * time.Second

// BuildRouter constructs the HTTP handler for the nine routes of
// spec §6, with the write endpoints rate-limited and the read
// endpoints CORS-enabled for browser-facing dashboards.
//
// POST /generate/sync is deliberately exempted from the short
// HTTPWriteTimeout: §4.4 step 6 allows a sync submitter to block up to
// PromptStaleSeconds waiting for completion, so it gets its own, much
// longer, timeout instead of the HTTPWriteTimeout applied to the other
// write routes and to GET /generate/prompt/{id}. The listing routes
// carry no per-route timeout.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Write endpoints carry advisory per-IP rate limiting (§5
	// cancellation/timeouts: "HTTP layer imposes per-route rate
	// limits; these are advisory to the core").
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))

		syncTimeout := time.Duration(cfg.PromptStaleSeconds)*time.Second + syncRouteTimeoutMargin
		wr.With(chiMiddlewareTimeout(syncTimeout)).Post("/generate/sync", srv.SubmitSync())

		wr.With(chiMiddlewareTimeout(cfg.HTTPWriteTimeout)).Post("/generate/async", srv.SubmitAsync())
		wr.With(chiMiddlewareTimeout(cfg.HTTPWriteTimeout)).Post("/generate/pop", srv.PopWork())
		wr.With(chiMiddlewareTimeout(cfg.HTTPWriteTimeout)).Post("/generate/submit", srv.SubmitResult())
	})

	r.With(chiMiddlewareTimeout(cfg.HTTPWriteTimeout)).Get("/generate/prompt/{id}", srv.QueryStatus())
	r.Get("/servers", srv.ListServers())
	r.Get("/servers/{id}", srv.GetServer())
	r.Get("/models", srv.ListModels())
	r.Get("/usage", srv.Usage())
	r.Get("/contributions", srv.Contributions())

	r.Get("/openapi.yaml", httpserver.ServeOpenAPI())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func chiMiddlewareTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, http.StatusText(http.StatusGatewayTimeout))
	}
}
