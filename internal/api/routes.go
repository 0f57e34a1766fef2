package api

import (
    "net"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "golang.org/x/time/rate"

    "dronenav/internal/logger"
    "dronenav/internal/metrics"
)

// Routes builds the HTTP handler for the whole API.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.RealIP)
    r.Use(middleware.Recoverer)
    r.Use(logger.AccessMiddleware(logger.L()))
    r.Use(instrument)

    r.Get("/healthz", s.HealthHandler)
    r.Get("/readyz", s.ReadyHandler)
    r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    r.Get("/debug/vars", s.DebugJSON)
    r.Get("/openapi.yaml", s.OpenAPIHandler)
    r.Get("/openapi.json", s.OpenAPIJSONHandler)
    r.Get("/docs", s.DocsHandler)

    r.Route("/v1", func(r chi.Router) {
        r.Get("/engine/config", s.EngineConfigHandler)

        r.Post("/scenarios", s.CreateScenarioHandler)
        r.Get("/scenarios", s.ListScenariosHandler)
        r.Get("/scenarios/{id}", s.GetScenarioHandler)
        r.Delete("/scenarios/{id}", s.DeleteScenarioHandler)
        r.Get("/scenarios/{id}/export", s.ExportScenarioHandler)

        r.With(newRateLimiter(s.Cfg.Server.RateRPS, s.Cfg.Server.RateBurst).middleware).Post("/plan", s.PlanHandler)
        r.Get("/runs", s.ListRunsHandler)
        r.Get("/runs/{id}", s.GetRunHandler)
        r.Get("/runs/{id}/events/stream", s.RunEventsSSE)
        r.Get("/runs/{id}/ws", s.RunEventsWS)
        r.Get("/compare", s.CompareHandler)

        r.Post("/subscriptions", s.SubscriptionsHandler)
        r.Get("/subscriptions", s.SubscriptionsHandler)
        r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)

        r.Get("/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
        r.Post("/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
    })
    return r
}

// instrument records request count and latency by route pattern, so ids in
// the path do not explode label cardinality.
func instrument(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        next.ServeHTTP(ww, r)
        path := r.URL.Path
        if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
            path = rc.RoutePattern()
        }
        status := ww.Status()
        if status == 0 { status = http.StatusOK }
        code := strconv.Itoa(status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
    })
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
    rps   rate.Limit
    burst int

    mu      sync.Mutex
    clients map[string]*rate.Limiter
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
    if burst <= 0 { burst = 1 }
    l := rate.Limit(rps)
    if rps <= 0 { l = rate.Inf }
    return &rateLimiter{rps: l, burst: burst, clients: map[string]*rate.Limiter{}}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
    rl.mu.Lock()
    defer rl.mu.Unlock()
    l := rl.clients[key]
    if l == nil {
        l = rate.NewLimiter(rl.rps, rl.burst)
        rl.clients[key] = l
    }
    return l
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        host, _, err := net.SplitHostPort(r.RemoteAddr)
        if err != nil { host = r.RemoteAddr }
        if !rl.get(host).Allow() {
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}
