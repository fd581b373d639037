// Пакет api — OpenAPI-описание HTTP-поверхности Resume Optimizer.
// Спецификация встраивается в бинарник, валидируется при старте
// и отдаётся клиентам на /openapi.json.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// LoadSpec разбирает и валидирует встроенную OpenAPI-спецификацию.
// Невалидная спецификация — ошибка сборки релиза, сервис не стартует.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI-спецификации: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI-спецификации: %w", err)
	}
	return doc, nil
}

// SpecHandler отдаёт спецификацию в JSON на /openapi.json.
func SpecHandler(doc *openapi3.T) http.HandlerFunc {
	// Сериализуем один раз при старте
	payload, err := json.Marshal(doc)
	return func(w http.ResponseWriter, _ *http.Request) {
		if err != nil {
			http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"спецификация недоступна"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}
