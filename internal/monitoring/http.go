package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ms-ledger/internal/logger"
)

var httpRequests = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ledger_http_request_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// HTTPMiddleware logs every request and observes its latency. Routes are
// labelled by their chi pattern so ids do not explode the label space.
func HTTPMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(started)
			httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), elapsed.String())
		})
	}
}
