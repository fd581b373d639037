// generation.go — модель сгенерированного артефакта резюме.
package model

import "time"

// EditType — закрытое перечисление режимов генерации.
type EditType string

const (
	// EditTypeQuick — точечная правка только выбранных секций.
	EditTypeQuick EditType = "quick"
	// EditTypeFull — полная переработка резюме.
	EditTypeFull EditType = "full"
)

// ValidEditType проверяет, входит ли значение в перечисление.
// Неизвестные значения — ошибка валидации, а не тихий дефолт.
func ValidEditType(s string) bool {
	switch EditType(s) {
	case EditTypeQuick, EditTypeFull:
		return true
	}
	return false
}

// ScoreComparison — сравнение оценок до и после генерации.
type ScoreComparison struct {
	// Score — оценка соответствия, [0, 10]
	Score float64 `json:"score"`
	// KeywordMatches — количество совпавших ключевых слов
	KeywordMatches int `json:"keywordMatches"`
}

// GenerationRecord — сгенерированный артефакт резюме.
// Хранит обратную ссылку на AnalysisID, но не зависит от дальнейшего
// существования AnalysisRecord: истечение анализа не делает артефакт
// недоступным до истечения его собственного TTL.
type GenerationRecord struct {
	// GenerationID — непрозрачный уникальный идентификатор (UUID v4)
	GenerationID string
	// UserID — владелец записи
	UserID string
	// AnalysisID — идентификатор исходного анализа (только ссылка)
	AnalysisID string
	// CreatedAt — время создания
	CreatedAt time.Time

	// EditType — режим генерации (quick / full)
	EditType EditType
	// SelectedSections — идентификаторы применённых секций
	SelectedSections []string
	// SelectedSkills — идентификаторы применённых навыков
	SelectedSkills []string

	// Artifact — байты сгенерированного документа.
	// Отдаётся при скачивании как есть, без повторной генерации.
	Artifact []byte
	// ContentType — MIME-тип артефакта
	ContentType string
	// FileName — предложенное имя файла для скачивания
	FileName string

	// Before/After — сравнение оценок до и после
	Before ScoreComparison
	After  ScoreComparison
	// Changelog — список внесённых изменений
	Changelog []string
}
