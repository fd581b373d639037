// resume.go — обработчики pipeline анализа и генерации резюме.
//
// Три независимых HTTP-вызова связываются непрозрачными идентификаторами:
// analyze выдаёт analysisId, generate потребляет его и выдаёт generationId,
// download потребляет generationId. Владение идентификатором — единственный
// механизм доступа к артефакту, поэтому идентификаторы не перечислимы.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/resumeopt/internal/api/errors"
	"github.com/bigkaa/resumeopt/internal/api/middleware"
	"github.com/bigkaa/resumeopt/internal/domain/model"
	"github.com/bigkaa/resumeopt/internal/service"
)

// analyzeRequestBody — JSON-форма запроса анализа.
type analyzeRequestBody struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
	JobTitle       string `json:"jobTitle"`
	CompanyName    string `json:"companyName"`
}

// analyzeResponse — ответ операции analyze.
type analyzeResponse struct {
	AnalysisID string                    `json:"analysisId"`
	CreatedAt  time.Time                 `json:"createdAt"`
	Summary    model.AnalysisSummary     `json:"summary"`
	Sections   []model.SuggestedSection  `json:"sections"`
	Skills     []model.SuggestedSkill    `json:"skills"`
}

// generateRequestBody — JSON-форма запроса генерации.
type generateRequestBody struct {
	AnalysisID        string   `json:"analysisId"`
	EditType          string   `json:"editType"`
	SelectedSections  []string `json:"selectedSections"`
	SelectedSkills    []string `json:"selectedSkills"`
	ExtraInstructions string   `json:"extraInstructions"`
}

// generateResponse — ответ операции generate.
type generateResponse struct {
	GenerationID string                `json:"generationId"`
	AnalysisID   string                `json:"analysisId"`
	CreatedAt    time.Time             `json:"createdAt"`
	EditType     string                `json:"editType"`
	FileName     string                `json:"fileName"`
	DownloadURL  string                `json:"downloadUrl"`
	Before       model.ScoreComparison `json:"before"`
	After        model.ScoreComparison `json:"after"`
	Changelog    []string              `json:"changelog"`
}

// Analyze — POST /api/resume/analyze.
// Принимает JSON либо multipart (файл резюме + поля вакансии).
func (h *APIHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	req, ok := h.parseAnalyzeRequest(w, r)
	if !ok {
		return
	}

	record, err := h.analysis.Analyze(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		AnalysisID: record.AnalysisID,
		CreatedAt:  record.CreatedAt,
		Summary:    record.Summary,
		Sections:   record.Sections,
		Skills:     record.Skills,
	})
}

// parseAnalyzeRequest разбирает JSON- или multipart-форму запроса анализа.
// Ошибки формы пишет в ответ сам и возвращает ok=false.
func (h *APIHandler) parseAnalyzeRequest(w http.ResponseWriter, r *http.Request) (service.AnalyzeRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.parseAnalyzeMultipart(w, r)
	}

	var body analyzeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if tooLarge(err) {
			apierrors.FileTooLarge(w, "Тело запроса превышает лимит "+formatMB(h.maxFileSize))
			return service.AnalyzeRequest{}, false
		}
		apierrors.ValidationError(w, "Невалидный JSON в теле запроса")
		return service.AnalyzeRequest{}, false
	}

	return service.AnalyzeRequest{
		ResumeText:     body.ResumeText,
		JobDescription: body.JobDescription,
		JobTitle:       body.JobTitle,
		CompanyName:    body.CompanyName,
	}, true
}

// parseAnalyzeMultipart разбирает multipart-форму: файл резюме в поле file,
// параметры вакансии — в обычных полях. Файл трактуется как текст UTF-8;
// извлечение текста из бинарных форматов выполняется до этого сервиса.
func (h *APIHandler) parseAnalyzeMultipart(w http.ResponseWriter, r *http.Request) (service.AnalyzeRequest, bool) {
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		if tooLarge(err) {
			apierrors.FileTooLarge(w, "Файл превышает лимит "+formatMB(h.maxFileSize))
			return service.AnalyzeRequest{}, false
		}
		apierrors.ValidationError(w, "Невалидная multipart-форма")
		return service.AnalyzeRequest{}, false
	}

	resumeText := r.FormValue("resumeText")
	if resumeText == "" {
		file, _, err := r.FormFile("file")
		if err != nil {
			apierrors.ValidationFields(w, "Некорректные входные данные", []apierrors.FieldError{
				{Field: "file", Reason: "требуется файл резюме либо поле resumeText"},
			})
			return service.AnalyzeRequest{}, false
		}
		resumeText, err = readTextFile(file, h.maxFileSize)
		if err != nil {
			apierrors.ValidationFields(w, "Некорректные входные данные", []apierrors.FieldError{
				{Field: "file", Reason: err.Error()},
			})
			return service.AnalyzeRequest{}, false
		}
	}

	return service.AnalyzeRequest{
		ResumeText:     resumeText,
		JobDescription: r.FormValue("jobDescription"),
		JobTitle:       r.FormValue("jobTitle"),
		CompanyName:    r.FormValue("companyName"),
	}, true
}

// readTextFile читает файл резюме и проверяет, что это текст UTF-8.
func readTextFile(file multipart.File, limit int64) (string, error) {
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return "", errors.New("не удалось прочитать файл")
	}
	if !utf8.Valid(raw) {
		return "", errors.New("файл должен быть текстом в кодировке UTF-8")
	}
	return string(raw), nil
}

// Generate — POST /api/resume/generate.
func (h *APIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var body generateRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON в теле запроса")
		return
	}

	record, err := h.generation.Generate(r.Context(), userID, service.GenerateRequest{
		AnalysisID:        body.AnalysisID,
		EditType:          body.EditType,
		SelectedSections:  body.SelectedSections,
		SelectedSkills:    body.SelectedSkills,
		ExtraInstructions: body.ExtraInstructions,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		GenerationID: record.GenerationID,
		AnalysisID:   record.AnalysisID,
		CreatedAt:    record.CreatedAt,
		EditType:     string(record.EditType),
		FileName:     record.FileName,
		DownloadURL:  "/api/resume/download/" + record.GenerationID,
		Before:       record.Before,
		After:        record.After,
		Changelog:    record.Changelog,
	})
}

// Download — GET /api/resume/download/{generationId}.
// Артефакт отдаётся дословно, как attachment с предложенным именем файла.
func (h *APIHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	generationID := chi.URLParam(r, "generationId")
	record, err := h.download.Download(userID, generationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+record.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(record.Artifact)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record.Artifact)
}

// tooLarge распознаёт ошибку превышения MaxBytesReader.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// formatMB форматирует лимит в мегабайтах для сообщения об ошибке.
func formatMB(limit int64) string {
	return strconv.FormatInt(limit>>20, 10) + " MiB"
}
