package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NewMetricsMiddleware は HTTP リクエストのメトリクスを収集するミドルウェアを生成します。
func NewMetricsMiddleware(meter metric.Meter) (func(http.Handler) http.Handler, error) {
	requestLatency, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Latency of HTTP requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestCounter, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Number of HTTP requests processed"),
	)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start).Seconds()

			baseAttrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", routePattern(r)),
			}
			if contentType := chi.URLParam(r, "contentType"); contentType != "" {
				baseAttrs = append(baseAttrs, attribute.String("content_type", contentType))
			}

			requestLatency.Record(r.Context(), elapsed, metric.WithAttributes(baseAttrs...))

			counterAttrs := append(baseAttrs,
				attribute.String("http.response.status_code", strconv.Itoa(ww.status)),
				attribute.String("outcome", outcomeFromStatus(ww.status)),
			)
			requestCounter.Add(r.Context(), 1, metric.WithAttributes(counterAttrs...))
		})
	}, nil
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unknown"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unknown"
}

func outcomeFromStatus(status int) string {
	if status < http.StatusBadRequest {
		return "success"
	}
	return "failure"
}

// statusWriter はレスポンスのステータスコードを記録します。
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}
