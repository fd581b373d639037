// health.go — обработчики health endpoints Resume Optimizer.
// /health и /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (генеративный сервис, опционально Redis и IdP)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/resumeopt/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	upstreamChecker ReadinessChecker
	redisChecker    ReadinessChecker
	idpChecker      ReadinessChecker
	promHandler     http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// upstreamChecker — проверка генеративного сервиса (может быть nil — readiness вернёт "fail").
// redisChecker — проверка Redis (nil, если rate limiter работает in-memory).
// idpChecker — проверка JWKS endpoint IdP (nil в HS256-режиме).
func NewHealthHandler(upstreamChecker, redisChecker, idpChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		upstreamChecker: upstreamChecker,
		redisChecker:    redisChecker,
		idpChecker:      idpChecker,
		promHandler:     promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Upstream healthCheckResult  `json:"upstream"`
		Redis    *healthCheckResult `json:"redis,omitempty"`
		Idp      *healthCheckResult `json:"idp,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "resume-optimizer",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет генеративный сервис,
// Redis и JWKS endpoint IdP. Возвращает 200 (ok/degraded) или 503 (fail).
// Redis и IdP деградируют, но не валят readiness: лимитер работает
// fail-open, ключи JWKS кэшированы.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "resume-optimizer",
	}

	if h.upstreamChecker != nil {
		status, msg := h.upstreamChecker.CheckReady()
		resp.Checks.Upstream = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.Upstream = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	statuses := []string{resp.Checks.Upstream.Status}
	if h.redisChecker != nil {
		status, msg := h.redisChecker.CheckReady()
		if status == statusFail {
			// Redis не критичен — понижаем до degraded
			status = "degraded"
		}
		resp.Checks.Redis = &healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}
	if h.idpChecker != nil {
		status, msg := h.idpChecker.CheckReady()
		if status == statusFail {
			// Ключи JWKS кэшируются keyfunc — кратковременный сбой IdP
			// не ломает валидацию токенов
			status = "degraded"
		}
		resp.Checks.Idp = &healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}

	resp.Status = overallStatus(statuses...)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const statusFail = "fail"

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
