// download.go — шлюз скачивания сгенерированного артефакта.
// Артефакт отдаётся из кэша дословно, без повторной генерации.
// Скачивание не инвалидирует запись: повторные загрузки в пределах TTL
// разрешены, семантики одноразового токена нет.
package service

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/resumeopt/internal/cache"
	"github.com/bigkaa/resumeopt/internal/domain/model"
	"github.com/bigkaa/resumeopt/internal/ratelimit"
)

// Единообразное сообщение для всех исходов "запись недоступна".
const msgGenerationNotFound = "Файл не найден или истёк, выполните генерацию заново"

// Prometheus-метрики download.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_downloads_total",
		Help: "Количество запросов на скачивание по исходам",
	}, []string{"outcome"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ro_download_bytes_total",
		Help: "Общее количество отданных байт артефактов",
	})
)

// DownloadService — шлюз скачивания артефактов генерации.
type DownloadService struct {
	limiter ratelimit.Admitter
	results *cache.Store[*model.GenerationRecord]
	logger  *slog.Logger
}

// NewDownloadService создаёт шлюз скачивания.
func NewDownloadService(
	limiter ratelimit.Admitter,
	results *cache.Store[*model.GenerationRecord],
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		limiter: limiter,
		results: results,
		logger:  logger.With(slog.String("component", "download_service")),
	}
}

// Download возвращает запись генерации для отдачи клиенту.
// Допуск по квоте проверяется до обращения к кэшу: перебор идентификаторов
// ограничен той же квотой, что и легитимные скачивания.
func (ds *DownloadService) Download(userID, generationID string) (*model.GenerationRecord, error) {
	decision := ds.limiter.TryAcquire(userID, ratelimit.OpDownload)
	if !decision.Admitted {
		downloadsTotal.WithLabelValues("rate_limited").Inc()
		return nil, rateLimitedErr(decision.Remaining, decision.ResetAt)
	}

	record, ok := ds.results.Get(generationID)
	if !ok || record.UserID != userID {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, notFoundErr(msgGenerationNotFound)
	}

	downloadsTotal.WithLabelValues("ok").Inc()
	downloadBytesTotal.Add(float64(len(record.Artifact)))

	ds.logger.Debug("Артефакт отдан",
		slog.String("generation_id", generationID),
		slog.String("user_id", userID),
		slog.Int("bytes", len(record.Artifact)),
	)
	return record, nil
}
