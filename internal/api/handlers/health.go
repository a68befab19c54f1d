// health.go — пробы Kubernetes и экспорт метрик.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/anchorvault/internal/config"
)

const serviceName = "anchor-module"

// Статусы проверок по возрастанию тяжести.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

var severity = map[string]int{statusOK: 0, statusDegraded: 1, statusFail: 2}

// ReadinessChecker — проверка одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает "ok", "degraded" или "fail" и пояснение.
	CheckReady() (status string, message string)
}

// HealthHandler обслуживает /health/live, /health/ready и /metrics.
type HealthHandler struct {
	checks      map[string]ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик. nil-проверка считается проваленной.
func NewHealthHandler(pgChecker, idpChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: map[string]ReadinessChecker{
			"postgresql": pgChecker,
			"idp":        idpChecker,
		},
		promHandler: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	healthLiveResponse
	Checks map[string]healthCheckResult `json:"checks"`
}

func newLiveResponse(status string) healthLiveResponse {
	return healthLiveResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive отвечает 200, пока процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newLiveResponse(statusOK))
}

// HealthReady опрашивает зависимости: ok и degraded — 200, fail — 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]healthCheckResult, len(h.checks))
	statuses := make([]string, 0, len(h.checks))
	for name, c := range h.checks {
		res := check(c)
		results[name] = res
		statuses = append(statuses, res.Status)
	}

	overall := overallStatus(statuses...)
	code := http.StatusOK
	if overall == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthReadyResponse{
		healthLiveResponse: newLiveResponse(overall),
		Checks:             results,
	})
}

// GetMetrics отдаёт метрики Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// overallStatus — самый тяжёлый из статусов. Неизвестный статус считается fail.
func overallStatus(statuses ...string) string {
	worst := statusOK
	for _, s := range statuses {
		rank, known := severity[s]
		if !known {
			return statusFail
		}
		if rank > severity[worst] {
			worst = s
		}
	}
	return worst
}
