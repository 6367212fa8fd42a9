package httpapi

import (
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"net/http"
	"strconv"
	"time"
)

type RouterConfig struct {
	Orders  OrderService
	Drainer QueueDrainer
	Checks  map[string]HealthCheck

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Orders == nil {
		return nil, fmt.Errorf("orders is nil")
	}
	if cfg.Drainer == nil {
		return nil, fmt.Errorf("drainer is nil")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Discard()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}

	h := &Handler{
		orders:  cfg.Orders,
		drainer: cfg.Drainer,
		checks:  cfg.Checks,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(cfg.Metrics))

	r.Get("/orders", h.ListOrders)
	r.Post("/orders", h.CreateOrder)
	r.Put("/orders/{id}", h.UpdateOrder)

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))

	return r, nil
}

// instrument records status and latency per route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = r.Method + " " + rctx.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
