// Пакет aiclient — HTTP-клиент внешнего генеративного сервиса (Gemini API).
//
// Сервис рассматривается как непрозрачный ненадёжный коллаборатор:
// клиент ограничивает время вызова, повторяет транзиентные сбои
// ограниченное число раз и отдаёт наверх либо текст ответа модели,
// либо ошибку. Интерпретация содержимого — забота вызывающего слоя.
package aiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики вызовов upstream.
var (
	upstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ro_upstream_calls_total",
			Help: "Количество вызовов генеративного сервиса по исходам",
		},
		[]string{"outcome"},
	)
	upstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ro_upstream_call_duration_seconds",
			Help:    "Длительность вызовов генеративного сервиса в секундах",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// ErrUnavailable — сервис не ответил за отведённое время либо вернул 5xx
// после всех повторов.
var ErrUnavailable = errors.New("генеративный сервис недоступен")

// ErrBadResponse — ответ получен, но его структура не соответствует API.
var ErrBadResponse = errors.New("некорректный ответ генеративного сервиса")

// Client — клиент Gemini generateContent API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	maxRetries int
	logger     *slog.Logger
}

// New создаёт клиент генеративного сервиса.
// baseURL — базовый URL API (например, https://generativelanguage.googleapis.com).
// model — имя модели (RO_AI_MODEL).
// timeout — ограничение на один вызов (RO_AI_TIMEOUT).
// maxRetries — количество повторов транзиентных сбоев (RO_AI_MAX_RETRIES).
// caCertPath — опциональный CA-сертификат для TLS (пустая строка — стандартный пул).
func New(
	baseURL string,
	model string,
	apiKey string,
	timeout time.Duration,
	maxRetries int,
	caCertPath string,
	logger *slog.Logger,
) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата AI API: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат AI API добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		logger:     logger.With(slog.String("component", "ai_client")),
	}, nil
}

// generateRequest — тело запроса generateContent.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse — интересующая часть ответа generateContent.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateText выполняет один generateContent-вызов и возвращает текст
// первого кандидата. Транзиентные сбои (сетевая ошибка, 5xx, 429)
// повторяются до maxRetries раз с короткой паузой; 4xx не повторяются.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		text, retryable, callErr := c.call(ctx, reqURL, body)
		if callErr == nil {
			upstreamCallsTotal.WithLabelValues("ok").Inc()
			return text, nil
		}

		lastErr = callErr
		if !retryable {
			break
		}
		c.logger.Warn("Транзиентный сбой генеративного сервиса, повтор",
			slog.Int("attempt", attempt+1),
			slog.String("error", callErr.Error()),
		)
	}

	upstreamCallsTotal.WithLabelValues("error").Inc()
	return "", lastErr
}

// call выполняет один HTTP-вызов. Второй результат — можно ли повторять.
func (c *Client) call(ctx context.Context, reqURL string, body []byte) (string, bool, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "", true, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	upstreamDuration.Observe(time.Since(start).Seconds())

	// Тело ограничиваем: ответы модели умеренного размера,
	// мегабайтные аномалии не читаем целиком
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, fmt.Errorf("%w: чтение тела: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// разобрано ниже
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("%w: статус %d", ErrUnavailable, resp.StatusCode)
	default:
		return "", false, fmt.Errorf("%w: статус %d", ErrBadResponse, resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("%w: пустой список кандидатов", ErrBadResponse)
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), false, nil
}

// StripFences снимает обрамление ```json ... ``` с текста модели.
// Модели регулярно заворачивают JSON в markdown-блок вопреки инструкции.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```html")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// --- ReadinessChecker для генеративного сервиса ---

// ReadinessChecker — проверка сетевой достижимости генеративного сервиса.
// Любой HTTP-ответ считается признаком достижимости: без ключа и тела
// запроса API отвечает ошибкой, но отвечает.
type ReadinessChecker struct {
	baseURL string
	client  *http.Client
}

// NewReadinessChecker создаёт checker достижимости генеративного сервиса.
func NewReadinessChecker(baseURL string, timeout time.Duration, caCertPath string) (*ReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &ReadinessChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

// CheckReady проверяет достижимость генеративного сервиса.
func (rc *ReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rc.baseURL+"/", http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := rc.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "fail", fmt.Sprintf("генеративный сервис недоступен: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	return "ok", fmt.Sprintf("достижим, статус %d", resp.StatusCode)
}
