// analysis.go — оркестратор анализа резюме.
// Координирует валидацию, допуск по квоте, вызов генеративного сервиса,
// нормализацию ответа и сохранение результата в кэш артефактов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/resumeopt/internal/aiclient"
	"github.com/bigkaa/resumeopt/internal/cache"
	"github.com/bigkaa/resumeopt/internal/domain/model"
	"github.com/bigkaa/resumeopt/internal/ratelimit"
)

// Границы валидации входных данных анализа.
const (
	minJobDescriptionLen = 50
	maxJobDescriptionLen = 10000
	minShortFieldLen     = 2
	maxShortFieldLen     = 100
	minResumeTextLen     = 50
	maxResumeTextLen     = 50000
)

// Prometheus-метрики анализа.
var (
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_analysis_total",
		Help: "Количество запросов анализа по исходам",
	}, []string{"outcome"})
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ro_analysis_duration_seconds",
		Help:    "Длительность анализа резюме в секундах",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Completer — контракт генеративного сервиса.
// Реализация по умолчанию — aiclient.Client; в тестах подменяется заглушкой.
type Completer interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// AnalyzeRequest — входные данные анализа после извлечения текста из документа.
type AnalyzeRequest struct {
	ResumeText     string
	JobDescription string
	JobTitle       string
	CompanyName    string
}

// AnalysisService — оркестратор операции analyze.
type AnalysisService struct {
	limiter ratelimit.Admitter
	cache   *cache.Store[*model.AnalysisRecord]
	ai      Completer
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// AnalysisOption — настройка AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithAnalysisClock подменяет источник времени (для детерминированных тестов).
func WithAnalysisClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) { s.now = now }
}

// NewAnalysisService создаёт оркестратор анализа.
func NewAnalysisService(
	limiter ratelimit.Admitter,
	store *cache.Store[*model.AnalysisRecord],
	ai Completer,
	ttl time.Duration,
	logger *slog.Logger,
	opts ...AnalysisOption,
) *AnalysisService {
	s := &AnalysisService{
		limiter: limiter,
		cache:   store,
		ai:      ai,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "analysis_service")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze выполняет полный цикл анализа резюме.
// Порядок фиксирован: валидация → квота → upstream. Невалидный запрос
// не тратит квоту, отклонённый по квоте — не доходит до upstream.
func (s *AnalysisService) Analyze(ctx context.Context, userID string, req AnalyzeRequest) (*model.AnalysisRecord, error) {
	if issues := validateAnalyzeRequest(req); len(issues) > 0 {
		analysisTotal.WithLabelValues("validation_error").Inc()
		return nil, validationErr(issues)
	}

	decision := s.limiter.TryAcquire(userID, ratelimit.OpAnalyze)
	if !decision.Admitted {
		analysisTotal.WithLabelValues("rate_limited").Inc()
		return nil, rateLimitedErr(decision.Remaining, decision.ResetAt)
	}

	start := time.Now()
	raw, err := s.ai.GenerateText(ctx, buildAnalysisPrompt(
		req.ResumeText, req.JobDescription, req.JobTitle, req.CompanyName,
	))
	if err != nil {
		s.logger.Error("Сбой генеративного сервиса при анализе",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		analysisTotal.WithLabelValues("upstream_error").Inc()
		return nil, upstreamErr(err)
	}
	analysisDuration.Observe(time.Since(start).Seconds())

	cleaned := aiclient.StripFences(raw)
	summary, sections, skills, err := parseAnalysis(cleaned)
	if err != nil {
		s.logger.Error("Неразборчивый ответ генеративного сервиса",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		analysisTotal.WithLabelValues("upstream_error").Inc()
		return nil, upstreamErr(err)
	}

	record := &model.AnalysisRecord{
		AnalysisID:     uuid.NewString(),
		UserID:         userID,
		CreatedAt:      s.now(),
		Summary:        summary,
		Sections:       sections,
		Skills:         skills,
		JobDescription: req.JobDescription,
		JobTitle:       req.JobTitle,
		CompanyName:    req.CompanyName,
		ResumeText:     req.ResumeText,
		RawDigest:      digest(raw),
	}
	s.cache.Put(record.AnalysisID, record, s.ttl)

	s.logger.Info("Анализ завершён",
		slog.String("analysis_id", record.AnalysisID),
		slog.String("user_id", userID),
		slog.Float64("score", summary.Score),
		slog.Int("sections", len(sections)),
		slog.Int("skills", len(skills)),
	)
	analysisTotal.WithLabelValues("ok").Inc()
	return record, nil
}

// validateAnalyzeRequest проверяет форму и границы входных данных.
// Возвращает все нарушения сразу, а не первое найденное.
// Границы — в символах, не байтах: кириллический текст в UTF-8
// занимает два байта на букву.
func validateAnalyzeRequest(req AnalyzeRequest) []FieldIssue {
	var issues []FieldIssue

	if n := utf8.RuneCountInString(strings.TrimSpace(req.ResumeText)); n < minResumeTextLen || n > maxResumeTextLen {
		issues = append(issues, FieldIssue{
			Field:  "resumeText",
			Reason: "текст резюме обязателен, длина от 50 до 50000 символов",
		})
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.JobDescription)); n < minJobDescriptionLen || n > maxJobDescriptionLen {
		issues = append(issues, FieldIssue{
			Field:  "jobDescription",
			Reason: "описание вакансии обязательно, длина от 50 до 10000 символов",
		})
	}
	issues = append(issues, validateShortField("jobTitle", req.JobTitle)...)
	issues = append(issues, validateShortField("companyName", req.CompanyName)...)

	return issues
}

// validateShortField проверяет длину короткого текстового поля в [2, 100] символов.
func validateShortField(name, value string) []FieldIssue {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < minShortFieldLen || n > maxShortFieldLen {
		return []FieldIssue{{
			Field:  name,
			Reason: "длина должна быть от 2 до 100 символов",
		}}
	}
	return nil
}

// digest — sha256-дайджест сырого ответа upstream для диагностики.
// Сам сырой ответ не хранится.
func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
