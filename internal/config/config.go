// Пакет config — загрузка и валидация конфигурации Resume Optimizer
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Resume Optimizer.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 120s — генерация долгая)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Генеративный сервис (upstream) ---

	// Базовый URL Gemini API
	AIBaseURL string
	// Имя модели
	AIModel string
	// API-ключ (обязателен)
	AIAPIKey string
	// Таймаут одного вызова upstream
	AITimeout time.Duration
	// Количество повторов транзиентных сбоев
	AIMaxRetries int
	// CA-сертификат для TLS к upstream (опционально)
	AICACertPath string

	// --- Кэш артефактов ---

	// TTL записи анализа (по умолчанию 60m)
	AnalysisTTL time.Duration
	// TTL сгенерированного артефакта (по умолчанию 60m, независим от анализа)
	GenerationTTL time.Duration
	// Интервал фонового sweep (по умолчанию 5m)
	CacheSweepInterval time.Duration

	// --- Rate limiting ---

	// Окно квоты (общее для всех операций, по умолчанию 1m)
	RateWindow time.Duration
	// Квоты по операциям внутри окна
	RateAnalyze  int
	RateGenerate int
	RateDownload int
	RateAuth     int
	// Интервал чистки неактивных бакетов
	RateJanitorInterval time.Duration

	// --- Лимиты запросов ---

	// Максимальный размер вложенного файла резюме в байтах
	MaxFileSize int64

	// --- Аутентификация ---

	// Секрет HS256 (Supabase-style). Задаётся он ИЛИ JWKSUrl.
	JWTSecret string
	// URL JWKS endpoint для RS256 (Keycloak-style)
	JWKSUrl string
	// CA-сертификат для TLS к JWKS (опционально)
	JWKSCACertPath string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Ожидаемый issuer JWT (пустой — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Dev-токены ---

	// Выдача dev-токенов через POST /api/auth/token (только HS256-режим)
	DevTokens bool
	// Срок жизни dev-токена
	DevTokenTTL time.Duration

	// --- Redis (опционально) ---

	// Адрес Redis; пустая строка — rate limiter работает in-memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Мониторинг зависимостей ---

	// Включение dephealth-метрик
	DephealthEnabled bool
	// Имя группы в метриках
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для зависимостей
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RO_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("RO_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RO_PORT: %w", err)
	}

	// RO_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("RO_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("RO_LOG_LEVEL: %w", err)
	}

	// RO_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RO_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RO_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("RO_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("RO_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("RO_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("RO_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Генеративный сервис ---

	cfg.AIBaseURL = getEnvDefault("RO_AI_URL", "https://generativelanguage.googleapis.com")
	cfg.AIModel = getEnvDefault("RO_AI_MODEL", "gemini-1.5-flash")

	// RO_AI_API_KEY — ключ доступа к генеративному сервису (обязателен)
	cfg.AIAPIKey, err = getEnvRequired("RO_AI_API_KEY")
	if err != nil {
		return nil, err
	}

	cfg.AITimeout, err = getEnvDuration("RO_AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_AI_TIMEOUT: %w", err)
	}
	cfg.AIMaxRetries, err = getEnvInt("RO_AI_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("RO_AI_MAX_RETRIES: %w", err)
	}
	if cfg.AIMaxRetries < 0 {
		return nil, fmt.Errorf("RO_AI_MAX_RETRIES: значение должно быть >= 0")
	}
	cfg.AICACertPath = getEnvDefault("RO_AI_CA_CERT_PATH", "")

	// --- Кэш артефактов ---

	cfg.AnalysisTTL, err = getEnvDuration("RO_ANALYSIS_TTL", 60*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RO_ANALYSIS_TTL: %w", err)
	}
	cfg.GenerationTTL, err = getEnvDuration("RO_GENERATION_TTL", 60*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RO_GENERATION_TTL: %w", err)
	}
	cfg.CacheSweepInterval, err = getEnvDuration("RO_CACHE_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RO_CACHE_SWEEP_INTERVAL: %w", err)
	}

	// --- Rate limiting ---

	cfg.RateWindow, err = getEnvDuration("RO_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_WINDOW: %w", err)
	}
	cfg.RateAnalyze, err = getEnvInt("RO_RATE_ANALYZE", 10)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_ANALYZE: %w", err)
	}
	cfg.RateGenerate, err = getEnvInt("RO_RATE_GENERATE", 5)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_GENERATE: %w", err)
	}
	cfg.RateDownload, err = getEnvInt("RO_RATE_DOWNLOAD", 20)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_DOWNLOAD: %w", err)
	}
	cfg.RateAuth, err = getEnvInt("RO_RATE_AUTH", 5)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_AUTH: %w", err)
	}
	cfg.RateJanitorInterval, err = getEnvDuration("RO_RATE_JANITOR_INTERVAL", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RO_RATE_JANITOR_INTERVAL: %w", err)
	}

	// --- Лимиты запросов ---

	maxFileMB, err := getEnvInt("RO_MAX_FILE_SIZE_MB", 10)
	if err != nil {
		return nil, fmt.Errorf("RO_MAX_FILE_SIZE_MB: %w", err)
	}
	if maxFileMB < 1 {
		return nil, fmt.Errorf("RO_MAX_FILE_SIZE_MB: значение должно быть >= 1")
	}
	cfg.MaxFileSize = int64(maxFileMB) << 20

	// --- Аутентификация ---

	cfg.JWTSecret = getEnvDefault("RO_JWT_SECRET", "")
	cfg.JWKSUrl = getEnvDefault("RO_JWKS_URL", "")
	if cfg.JWTSecret == "" && cfg.JWKSUrl == "" {
		return nil, fmt.Errorf("требуется RO_JWT_SECRET (HS256) или RO_JWKS_URL (RS256)")
	}
	if cfg.JWTSecret != "" && cfg.JWKSUrl != "" {
		return nil, fmt.Errorf("RO_JWT_SECRET и RO_JWKS_URL взаимоисключающие, задайте один режим")
	}

	cfg.JWKSCACertPath = getEnvDefault("RO_JWKS_CA_CERT_PATH", "")
	cfg.JWKSClientTimeout, err = getEnvDuration("RO_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("RO_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RO_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTIssuer = getEnvDefault("RO_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("RO_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_JWT_LEEWAY: %w", err)
	}

	// --- Dev-токены ---

	cfg.DevTokens, err = getEnvBool("RO_DEV_TOKENS", false)
	if err != nil {
		return nil, fmt.Errorf("RO_DEV_TOKENS: %w", err)
	}
	if cfg.DevTokens && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("RO_DEV_TOKENS: выдача dev-токенов требует RO_JWT_SECRET")
	}
	cfg.DevTokenTTL, err = getEnvDuration("RO_DEV_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RO_DEV_TOKEN_TTL: %w", err)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("RO_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("RO_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("RO_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("RO_REDIS_DB: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthEnabled, err = getEnvBool("RO_DEPHEALTH_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("RO_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("RO_DEPHEALTH_GROUP", "resume-optimizer")
	cfg.DephealthCheckInterval, err = getEnvDuration("RO_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RO_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("RO_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("RO_DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
