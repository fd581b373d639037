// generation.go — оркестратор генерации улучшенного резюме.
//
// Потребляет ранее созданный AnalysisRecord по идентификатору, применяет
// выбранные клиентом правки через генеративный сервис и сохраняет готовый
// HTML-артефакт под новым generationId с собственным TTL. Запись генерации
// самодостаточна: истечение исходного анализа на неё не влияет.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
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

// Единообразное сообщение для "не существует", "истёк" и "чужой":
// клиент не должен отличать эти случаи.
const msgAnalysisNotFound = "Анализ не найден или истёк, выполните анализ заново"

// Границы валидации запроса генерации.
const (
	maxSelectedSections     = 10
	maxSelectedSkills       = 20
	maxExtraInstructionsLen = 500
)

// Prometheus-метрики генерации.
var (
	generationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_generation_total",
		Help: "Количество запросов генерации по исходам",
	}, []string{"outcome"})
	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ro_generation_duration_seconds",
		Help:    "Длительность генерации резюме в секундах",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// GenerateRequest — входные данные операции generate.
type GenerateRequest struct {
	AnalysisID        string
	EditType          string
	SelectedSections  []string
	SelectedSkills    []string
	ExtraInstructions string
}

// GenerationService — оркестратор операции generate.
type GenerationService struct {
	limiter  ratelimit.Admitter
	analyses *cache.Store[*model.AnalysisRecord]
	results  *cache.Store[*model.GenerationRecord]
	ai       Completer
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// GenerationOption — настройка GenerationService.
type GenerationOption func(*GenerationService)

// WithGenerationClock подменяет источник времени (для детерминированных тестов).
func WithGenerationClock(now func() time.Time) GenerationOption {
	return func(s *GenerationService) { s.now = now }
}

// NewGenerationService создаёт оркестратор генерации.
func NewGenerationService(
	limiter ratelimit.Admitter,
	analyses *cache.Store[*model.AnalysisRecord],
	results *cache.Store[*model.GenerationRecord],
	ai Completer,
	ttl time.Duration,
	logger *slog.Logger,
	opts ...GenerationOption,
) *GenerationService {
	s := &GenerationService{
		limiter:  limiter,
		analyses: analyses,
		results:  results,
		ai:       ai,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "generation_service")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate выполняет полный цикл генерации улучшенного резюме.
// Повторная генерация с теми же входными данными создаёт новый generationId;
// дедупликации нет, исходный AnalysisRecord не изменяется.
func (s *GenerationService) Generate(ctx context.Context, userID string, req GenerateRequest) (*model.GenerationRecord, error) {
	if issues := validateGenerateRequest(req); len(issues) > 0 {
		generationTotal.WithLabelValues("validation_error").Inc()
		return nil, validationErr(issues)
	}

	analysis, ok := s.analyses.Get(req.AnalysisID)
	if !ok || analysis.UserID != userID {
		generationTotal.WithLabelValues("not_found").Inc()
		return nil, notFoundErr(msgAnalysisNotFound)
	}

	decision := s.limiter.TryAcquire(userID, ratelimit.OpGenerate)
	if !decision.Admitted {
		generationTotal.WithLabelValues("rate_limited").Inc()
		return nil, rateLimitedErr(decision.Remaining, decision.ResetAt)
	}

	sections := pickSections(analysis.Sections, req.SelectedSections)
	skills := pickSkills(analysis.Skills, req.SelectedSkills)
	editType := model.EditType(req.EditType)

	start := time.Now()
	raw, err := s.ai.GenerateText(ctx, buildRenderPrompt(
		analysis, editType, sections, skills, req.ExtraInstructions,
	))
	if err != nil {
		s.logger.Error("Сбой генеративного сервиса при генерации",
			slog.String("user_id", userID),
			slog.String("analysis_id", req.AnalysisID),
			slog.String("error", err.Error()),
		)
		generationTotal.WithLabelValues("upstream_error").Inc()
		return nil, upstreamErr(err)
	}
	generationDuration.Observe(time.Since(start).Seconds())

	html := aiclient.StripFences(raw)
	if !looksLikeHTML(html) {
		generationTotal.WithLabelValues("upstream_error").Inc()
		return nil, upstreamErr(fmt.Errorf("ответ генерации не является HTML-документом"))
	}

	before, after := scoreComparison(analysis, sections, skills)
	record := &model.GenerationRecord{
		GenerationID:     uuid.NewString(),
		UserID:           userID,
		AnalysisID:       analysis.AnalysisID,
		CreatedAt:        s.now(),
		EditType:         editType,
		SelectedSections: req.SelectedSections,
		SelectedSkills:   req.SelectedSkills,
		Artifact:         []byte(html),
		ContentType:      "text/html; charset=utf-8",
		FileName:         buildFileName(analysis.CompanyName, s.now()),
		Before:           before,
		After:            after,
		Changelog:        buildChangelog(editType, sections, skills),
	}
	s.results.Put(record.GenerationID, record, s.ttl)

	s.logger.Info("Генерация завершена",
		slog.String("generation_id", record.GenerationID),
		slog.String("analysis_id", analysis.AnalysisID),
		slog.String("user_id", userID),
		slog.String("edit_type", string(editType)),
		slog.Int("artifact_bytes", len(record.Artifact)),
	)
	generationTotal.WithLabelValues("ok").Inc()
	return record, nil
}

// validateGenerateRequest проверяет форму запроса генерации.
// editType — закрытое множество: неизвестное значение — ошибка,
// а не молчаливый дефолт.
func validateGenerateRequest(req GenerateRequest) []FieldIssue {
	var issues []FieldIssue

	if strings.TrimSpace(req.AnalysisID) == "" {
		issues = append(issues, FieldIssue{
			Field:  "analysisId",
			Reason: "идентификатор анализа обязателен",
		})
	}
	if !model.ValidEditType(req.EditType) {
		issues = append(issues, FieldIssue{
			Field:  "editType",
			Reason: "допустимые значения: quick, full",
		})
	}
	if len(req.SelectedSections) > maxSelectedSections {
		issues = append(issues, FieldIssue{
			Field:  "selectedSections",
			Reason: "не более 10 секций за одну генерацию",
		})
	}
	if len(req.SelectedSkills) > maxSelectedSkills {
		issues = append(issues, FieldIssue{
			Field:  "selectedSkills",
			Reason: "не более 20 навыков за одну генерацию",
		})
	}
	if utf8.RuneCountInString(req.ExtraInstructions) > maxExtraInstructionsLen {
		issues = append(issues, FieldIssue{
			Field:  "extraInstructions",
			Reason: "не более 500 символов",
		})
	}

	return issues
}

// pickSections отбирает секции анализа по идентификаторам из запроса.
// Неизвестные идентификаторы молча пропускаются.
func pickSections(all []model.SuggestedSection, ids []string) []model.SuggestedSection {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.SuggestedSection
	for _, s := range all {
		if wanted[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// pickSkills отбирает навыки анализа по идентификаторам из запроса.
func pickSkills(all []model.SuggestedSkill, ids []string) []model.SuggestedSkill {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.SuggestedSkill
	for _, s := range all {
		if wanted[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// scoreComparison строит сравнение "до/после" для ответа клиенту.
// Оценка "после" — детерминированная аппроксимация: каждая применённая
// секция и каждый добавленный навык дают фиксированный прирост,
// результат зажимается в шкалу оценки.
func scoreComparison(
	analysis *model.AnalysisRecord,
	sections []model.SuggestedSection,
	skills []model.SuggestedSkill,
) (before, after model.ScoreComparison) {
	before = model.ScoreComparison{
		Score:          analysis.Summary.Score,
		KeywordMatches: len(analysis.Summary.KeywordMatches),
	}
	after = model.ScoreComparison{
		Score: clampFloat(
			analysis.Summary.Score+0.5*float64(len(sections))+0.3*float64(len(skills)),
			model.ScoreMin, model.ScoreMax,
		),
		KeywordMatches: len(analysis.Summary.KeywordMatches) + len(skills),
	}
	return before, after
}

// buildChangelog формирует человекочитаемый список применённых изменений.
func buildChangelog(editType model.EditType, sections []model.SuggestedSection, skills []model.SuggestedSkill) []string {
	var log []string
	if editType == model.EditTypeFull {
		log = append(log, "Резюме полностью переработано под вакансию")
	}
	for _, s := range sections {
		log = append(log, fmt.Sprintf("Обновлена секция %q", s.Name))
	}
	for _, s := range skills {
		log = append(log, fmt.Sprintf("Добавлен навык %q", s.Skill))
	}
	if len(log) == 0 {
		log = append(log, "Выполнены точечные стилистические правки")
	}
	return log
}

// looksLikeHTML — минимальная проверка, что артефакт — HTML-документ,
// а не отказ модели или обрывок текста.
func looksLikeHTML(text string) bool {
	head := strings.ToLower(text)
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// fileNameSanitizer — всё, кроме букв, цифр, дефиса и подчёркивания.
var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9а-яА-ЯёЁ_-]+`)

// buildFileName строит предлагаемое имя файла артефакта:
// resume_{company}_{timestamp}.html, company очищается от небезопасных символов.
func buildFileName(companyName string, now time.Time) string {
	company := fileNameSanitizer.ReplaceAllString(strings.TrimSpace(companyName), "_")
	company = strings.Trim(company, "_")
	if company == "" {
		company = "resume"
	}
	return fmt.Sprintf("resume_%s_%s.html", company, now.Format("20060102_150405"))
}
