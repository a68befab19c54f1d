// metrics.go — Prometheus HTTP метрики сервиса якорей.
// Регистрирует метрики: an_http_requests_total, an_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "an_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису якорей",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "an_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к сервису якорей в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			status := strconv.Itoa(code)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы в пути на {id} / {public_id}
// для ограничения кардинальности метрик.
// /api/v1/anchors/a1b2c3d4-.../revoke → /api/v1/anchors/{id}/revoke
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/anchors",
		"/api/v1/batches",
		"/api/v1/registry",
		"/api/v1/registry/export":
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/verify/"); ok && rest != "" {
		return "/api/v1/verify/{public_id}"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/anchors/"); ok && rest != "" {
		_, suffix, _ := strings.Cut(rest, "/")
		switch suffix {
		case "revoke":
			return "/api/v1/anchors/{id}/revoke"
		case "attestation":
			return "/api/v1/anchors/{id}/attestation"
		case "":
			return "/api/v1/anchors/{id}"
		}
	}

	return "other"
}
