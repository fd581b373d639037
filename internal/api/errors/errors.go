// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "...", "fields": [...]}}.
// Текст внутренних ошибок и ответы upstream клиенту никогда не раскрываются.
package errors //nolint:revive // конфликт имени со stdlib осознанный, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotFoundOrExpired = "NOT_FOUND_OR_EXPIRED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeUpstreamFailure   = "UPSTREAM_FAILURE"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// FieldError — ошибка валидации одного поля запроса.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message})
}

func writeBody(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные без привязки к полям.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ValidationFields — 400 со структурированным списком ошибок полей.
func ValidationFields(w http.ResponseWriter, message string, fields []FieldError) {
	writeBody(w, http.StatusBadRequest, errorDetail{
		Code:    CodeValidationError,
		Message: message,
		Fields:  fields,
	})
}

// NotFoundOrExpired — 404 идентификатор неизвестен или TTL истёк.
// Один и тот же ответ для "никогда не существовал" и "истёк":
// различие клиенту не раскрывается.
func NotFoundOrExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFoundOrExpired, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// RateLimited — 429 квота исчерпана.
// Выставляет Retry-After, X-RateLimit-Remaining и X-RateLimit-Reset,
// чтобы клиент мог построить корректный повтор без угадывания.
func RateLimited(w http.ResponseWriter, message string, remaining int, resetAt time.Time) {
	retryAfter := int(time.Until(resetAt).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// UpstreamFailure — 502 внешний сервис недоступен или вернул мусор.
// message всегда generic: текст ошибки upstream сюда попадать не должен.
func UpstreamFailure(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeUpstreamFailure, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
