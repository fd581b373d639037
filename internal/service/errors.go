// errors.go — классифицированные ошибки сервисного слоя.
//
// Handlers превращают Kind в HTTP-статус; сервисы о транспорте не знают.
// Нормализация выполняется здесь: ошибки валидации и владения никогда
// не доходят до upstream, ошибки upstream никогда не доносят до клиента
// свой исходный текст.
package service

import (
	"errors"
	"time"
)

// Kind — класс ошибки сервисного слоя.
type Kind int

const (
	// KindValidation — некорректная форма или границы входных данных.
	// Исправляется клиентом без перезапуска pipeline.
	KindValidation Kind = iota
	// KindRateLimited — квота операции исчерпана, повтор после ResetAt.
	KindRateLimited
	// KindNotFoundOrExpired — идентификатор неизвестен, истёк или
	// принадлежит другому пользователю. Три случая намеренно неразличимы.
	KindNotFoundOrExpired
	// KindUpstream — генеративный сервис недоступен или вернул мусор.
	KindUpstream
)

// FieldIssue — ошибка валидации одного поля.
type FieldIssue struct {
	Field  string
	Reason string
}

// Error — ошибка сервисного слоя с классом и деталями для ответа клиенту.
type Error struct {
	Kind    Kind
	Message string
	// Fields — заполнено только для KindValidation
	Fields []FieldIssue
	// Remaining, ResetAt — заполнены только для KindRateLimited
	Remaining int
	ResetAt   time.Time
	// Err — исходная причина, в ответ клиенту не попадает
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap отдаёт исходную причину для errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// AsServiceError извлекает *Error из цепочки ошибок.
func AsServiceError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}

// validationErr — конструктор ошибки валидации со списком полей.
func validationErr(issues []FieldIssue) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "Некорректные входные данные",
		Fields:  issues,
	}
}

// rateLimitedErr — конструктор ошибки исчерпанной квоты.
func rateLimitedErr(remaining int, resetAt time.Time) *Error {
	return &Error{
		Kind:      KindRateLimited,
		Message:   "Превышен лимит запросов, повторите позже",
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// notFoundErr — конструктор единообразного "не найдено или истекло".
func notFoundErr(message string) *Error {
	return &Error{
		Kind:    KindNotFoundOrExpired,
		Message: message,
	}
}

// upstreamErr — конструктор ошибки upstream; cause логируется, но не отдаётся.
func upstreamErr(cause error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: "Сервис анализа временно недоступен, попробуйте позже",
		Err:     cause,
	}
}
