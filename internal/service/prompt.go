// prompt.go — построение промптов и нормализация ответов генеративного сервиса.
//
// Ответ upstream на границе бесструктурный: парсим в свободную форму
// и приводим к строгим доменным типам с жёсткими границами. Контракт
// с потребителями строже, чем гарантии upstream: всё лишнее отрезается,
// всё вышедшее за диапазон зажимается.
package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bigkaa/resumeopt/internal/domain/model"
)

// buildAnalysisPrompt собирает промпт анализа резюме под вакансию.
// Ответ запрашивается строго в JSON без markdown-обрамления;
// модели инструкцию регулярно нарушают, снятие обрамления — на парсере.
func buildAnalysisPrompt(resumeText, jobDescription, jobTitle, companyName string) string {
	var sb strings.Builder
	sb.WriteString("Ты — эксперт по подбору персонала. Проанализируй резюме кандидата ")
	sb.WriteString(fmt.Sprintf("на позицию %q в компании %q.\n\n", jobTitle, companyName))
	sb.WriteString("ОПИСАНИЕ ВАКАНСИИ:\n")
	sb.WriteString(jobDescription)
	sb.WriteString("\n\nРЕЗЮМЕ:\n")
	sb.WriteString(resumeText)
	sb.WriteString("\n\nВерни ТОЛЬКО JSON без пояснений и markdown, строго такой структуры:\n")
	sb.WriteString(`{
  "overallScore": <число 0-10, соответствие резюме вакансии>,
  "keywordMatches": [<ключевые слова вакансии, найденные в резюме>],
  "missingSkills": [<навыки из вакансии, отсутствующие в резюме, не более 10>],
  "suggestions": [<конкретные рекомендации по улучшению, не более 10>],
  "sections": [{"sectionName": "...", "currentContent": "...", "suggestedChanges": "...", "impact": "high|medium|low"}],
  "skills": [{"skill": "...", "relevance": <число 0-1>, "reason": "..."}]
}`)
	return sb.String()
}

// buildRenderPrompt собирает промпт генерации улучшенного резюме в HTML.
// editType определяет агрессивность правок: quick — точечные правки
// выбранных секций, full — полная переработка с учётом всех рекомендаций.
func buildRenderPrompt(
	rec *model.AnalysisRecord,
	editType model.EditType,
	sections []model.SuggestedSection,
	skills []model.SuggestedSkill,
	extraInstructions string,
) string {
	var sb strings.Builder
	sb.WriteString("Ты — профессиональный составитель резюме. ")
	if editType == model.EditTypeFull {
		sb.WriteString("Полностью переработай резюме под вакансию, применив все рекомендации.\n\n")
	} else {
		sb.WriteString("Внеси точечные правки в резюме, изменяя только указанные секции.\n\n")
	}

	sb.WriteString(fmt.Sprintf("ПОЗИЦИЯ: %s, КОМПАНИЯ: %s\n\n", rec.JobTitle, rec.CompanyName))
	sb.WriteString("ИСХОДНОЕ РЕЗЮМЕ:\n")
	sb.WriteString(rec.ResumeText)

	if len(sections) > 0 {
		sb.WriteString("\n\nПРИМЕНИ ПРАВКИ СЕКЦИЙ:\n")
		for _, s := range sections {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", s.Name, s.Suggested))
		}
	}
	if len(skills) > 0 {
		sb.WriteString("\nДОБАВЬ НАВЫКИ (органично, без выдуманного опыта):\n")
		for _, s := range skills {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", s.Skill, s.Reason))
		}
	}
	if extraInstructions != "" {
		sb.WriteString("\nДОПОЛНИТЕЛЬНЫЕ ИНСТРУКЦИИ:\n")
		sb.WriteString(extraInstructions)
		sb.WriteString("\n")
	}

	sb.WriteString("\nВерни ТОЛЬКО готовый HTML-документ резюме (полная страница с inline-стилями), без markdown и пояснений.")
	return sb.String()
}

// upstreamAnalysis — свободная форма ответа upstream до нормализации.
type upstreamAnalysis struct {
	OverallScore   float64  `json:"overallScore"`
	KeywordMatches []string `json:"keywordMatches"`
	MissingSkills  []string `json:"missingSkills"`
	Suggestions    []string `json:"suggestions"`
	Sections       []struct {
		SectionName      string `json:"sectionName"`
		CurrentContent   string `json:"currentContent"`
		SuggestedChanges string `json:"suggestedChanges"`
		Impact           string `json:"impact"`
	} `json:"sections"`
	Skills []struct {
		Skill     string  `json:"skill"`
		Relevance float64 `json:"relevance"`
		Reason    string  `json:"reason"`
	} `json:"skills"`
}

// parseAnalysis разбирает текст модели и приводит его к строгой доменной форме.
// Невалидный JSON — ошибка (вызывающий завернёт в KindUpstream);
// выход за границы — не ошибка, значения зажимаются и отрезаются молча.
func parseAnalysis(text string) (model.AnalysisSummary, []model.SuggestedSection, []model.SuggestedSkill, error) {
	var raw upstreamAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return model.AnalysisSummary{}, nil, nil, fmt.Errorf("разбор ответа анализа: %w", err)
	}

	summary := model.AnalysisSummary{
		Score:          clampFloat(raw.OverallScore, model.ScoreMin, model.ScoreMax),
		KeywordMatches: raw.KeywordMatches,
		MissingSkills:  capStrings(raw.MissingSkills, model.MaxMissingSkills),
		Suggestions:    capStrings(raw.Suggestions, model.MaxSuggestions),
	}

	n := len(raw.Sections)
	if n > model.MaxSections {
		n = model.MaxSections
	}
	sections := make([]model.SuggestedSection, 0, n)
	for i, s := range raw.Sections[:n] {
		sections = append(sections, model.SuggestedSection{
			ID:        fmt.Sprintf("section-%d", i+1),
			Name:      s.SectionName,
			Current:   s.CurrentContent,
			Suggested: s.SuggestedChanges,
			Impact:    normalizeImpact(s.Impact),
		})
	}

	skills := make([]model.SuggestedSkill, 0, len(raw.Skills))
	for i, s := range raw.Skills {
		if s.Skill == "" {
			continue
		}
		skills = append(skills, model.SuggestedSkill{
			ID:        fmt.Sprintf("skill-%d", i+1),
			Skill:     s.Skill,
			Relevance: clampFloat(s.Relevance, 0, 1),
			Reason:    s.Reason,
		})
	}

	return summary, sections, skills, nil
}

// normalizeImpact сводит impact к закрытому множеству {high, medium, low}.
func normalizeImpact(impact string) string {
	switch strings.ToLower(strings.TrimSpace(impact)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

// clampFloat зажимает v в [lo, hi].
func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// capStrings отрезает срез до max элементов, отбрасывая пустые строки.
func capStrings(items []string, max int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}
