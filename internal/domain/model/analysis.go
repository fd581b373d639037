// Пакет model — доменные модели Resume Optimizer.
// AnalysisRecord — нормализованный результат анализа резюме.
package model

import "time"

// Границы нормализации результата анализа.
// Контракт с потребителями строже, чем гарантии upstream:
// всё, что выходит за эти пределы, обрезается при нормализации.
const (
	// ScoreMin/ScoreMax — диапазон оценки соответствия резюме вакансии.
	ScoreMin = 0.0
	ScoreMax = 10.0
	// MaxMissingSkills — максимум недостающих навыков в сводке.
	MaxMissingSkills = 10
	// MaxSuggestions — максимум текстовых рекомендаций в сводке.
	MaxSuggestions = 10
	// MaxSections — максимум секций с предложенными правками.
	MaxSections = 10
)

// AnalysisSummary — клиентская сводка анализа.
type AnalysisSummary struct {
	// Score — оценка соответствия резюме вакансии, [0, 10].
	Score float64 `json:"overallScore"`
	// KeywordMatches — ключевые слова вакансии, найденные в резюме.
	KeywordMatches []string `json:"keywordMatches"`
	// MissingSkills — недостающие навыки (не более MaxMissingSkills).
	MissingSkills []string `json:"missingSkills"`
	// Suggestions — текстовые рекомендации по улучшению.
	Suggestions []string `json:"suggestions"`
}

// SuggestedSection — предложенная правка одной секции резюме.
type SuggestedSection struct {
	// ID — идентификатор секции (для выбора при генерации)
	ID string `json:"id"`
	// Name — название секции (Experience, Skills, ...)
	Name string `json:"sectionName"`
	// Current — текущее содержимое (фрагмент)
	Current string `json:"currentContent"`
	// Suggested — предложенные изменения
	Suggested string `json:"suggestedChanges"`
	// Impact — ожидаемый эффект: high, medium, low
	Impact string `json:"impact"`
}

// SuggestedSkill — предложенный к добавлению навык.
type SuggestedSkill struct {
	// ID — идентификатор навыка (для выбора при генерации)
	ID string `json:"id"`
	// Skill — название навыка
	Skill string `json:"skill"`
	// Relevance — вес релевантности, [0, 1]
	Relevance float64 `json:"relevance"`
	// Reason — причина рекомендации
	Reason string `json:"reason"`
}

// AnalysisRecord — результат анализа резюме против вакансии.
// Запись иммутабельна после создания и живёт в ArtifactCache до истечения TTL.
// Сервисы передают только AnalysisID, никогда — ссылку на запись.
type AnalysisRecord struct {
	// AnalysisID — непрозрачный уникальный идентификатор (UUID v4).
	// Обладание идентификатором — единственный механизм доступа
	// помимо проверки владельца, поэтому он должен быть неугадываемым.
	AnalysisID string
	// UserID — владелец записи (sub из JWT)
	UserID string
	// CreatedAt — время создания
	CreatedAt time.Time

	// Summary — нормализованная сводка
	Summary AnalysisSummary
	// Sections — предложенные правки по секциям (не более MaxSections)
	Sections []SuggestedSection
	// Skills — предложенные навыки с весами релевантности
	Skills []SuggestedSkill

	// Исходные данные запроса — нужны оркестратору генерации.
	JobDescription string
	JobTitle       string
	CompanyName    string
	ResumeText     string

	// RawDigest — SHA-256 от сырого ответа upstream (для диагностики).
	// Сам сырой ответ не хранится и клиенту не возвращается.
	RawDigest string
}
