// handler.go — основной обработчик API Resume Optimizer.
// Объединяет health и бизнес-обработчики, маппит ошибки сервисного
// слоя в HTTP-ответы единого формата.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/resumeopt/internal/api/errors"
	"github.com/bigkaa/resumeopt/internal/service"
)

// APIHandler — основной обработчик API Resume Optimizer.
// Делегирует запросы в сервисный слой и формирует HTTP-ответы.
type APIHandler struct {
	health      *HealthHandler
	analysis    *service.AnalysisService
	generation  *service.GenerationService
	download    *service.DownloadService
	maxFileSize int64
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	analysis *service.AnalysisService,
	generation *service.GenerationService,
	download *service.DownloadService,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		analysis:    analysis,
		generation:  generation,
		download:    download,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// Health — простая liveness для внешних балансировщиков.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError маппит классифицированную ошибку сервисного слоя
// в HTTP-ответ. Неклассифицированная ошибка — 500 с generic-текстом,
// исходный текст остаётся в логах.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	se, ok := service.AsServiceError(err)
	if !ok {
		h.logger.Error("Неклассифицированная ошибка сервисного слоя",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервиса")
		return
	}

	switch se.Kind {
	case service.KindValidation:
		fields := make([]apierrors.FieldError, 0, len(se.Fields))
		for _, f := range se.Fields {
			fields = append(fields, apierrors.FieldError{Field: f.Field, Reason: f.Reason})
		}
		apierrors.ValidationFields(w, se.Message, fields)
	case service.KindRateLimited:
		apierrors.RateLimited(w, se.Message, se.Remaining, se.ResetAt)
	case service.KindNotFoundOrExpired:
		apierrors.NotFoundOrExpired(w, se.Message)
	case service.KindUpstream:
		apierrors.UpstreamFailure(w, se.Message)
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервиса")
	}
}
