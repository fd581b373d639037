package config

import (
	"log/slog"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"RO_AI_API_KEY": "test-api-key",
		"RO_JWT_SECRET": "test-secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.AnalysisTTL != 60*time.Minute {
		t.Errorf("AnalysisTTL = %v, ожидается 60m", cfg.AnalysisTTL)
	}
	if cfg.GenerationTTL != 60*time.Minute {
		t.Errorf("GenerationTTL = %v, ожидается 60m", cfg.GenerationTTL)
	}
	if cfg.RateWindow != time.Minute {
		t.Errorf("RateWindow = %v, ожидается 1m", cfg.RateWindow)
	}
	if cfg.RateAnalyze != 10 || cfg.RateGenerate != 5 || cfg.RateDownload != 20 || cfg.RateAuth != 5 {
		t.Errorf("квоты = %d/%d/%d/%d, ожидается 10/5/20/5",
			cfg.RateAnalyze, cfg.RateGenerate, cfg.RateDownload, cfg.RateAuth)
	}
	if cfg.MaxFileSize != 10<<20 {
		t.Errorf("MaxFileSize = %d, ожидается 10 MiB", cfg.MaxFileSize)
	}
	if cfg.AIModel != "gemini-1.5-flash" {
		t.Errorf("AIModel = %q", cfg.AIModel)
	}
	if cfg.DevTokens {
		t.Error("DevTokens по умолчанию должен быть выключен")
	}
	if cfg.RedisAddr != "" {
		t.Error("RedisAddr по умолчанию должен быть пустым")
	}
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	setEnvs(t, map[string]string{"RO_JWT_SECRET": "s"})

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен требовать RO_AI_API_KEY")
	}
}

func TestLoad_RequiresAuthMode(t *testing.T) {
	setEnvs(t, map[string]string{"RO_AI_API_KEY": "k"})

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен требовать RO_JWT_SECRET или RO_JWKS_URL")
	}
}

func TestLoad_AuthModesMutuallyExclusive(t *testing.T) {
	setEnvs(t, map[string]string{
		"RO_AI_API_KEY": "k",
		"RO_JWT_SECRET": "s",
		"RO_JWKS_URL":   "https://idp.example.com/jwks",
	})

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен отклонять одновременные HS256 и JWKS режимы")
	}
}

func TestLoad_DevTokensRequireSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"RO_AI_API_KEY": "k",
		"RO_JWKS_URL":   "https://idp.example.com/jwks",
		"RO_DEV_TOKENS": "true",
	})

	if _, err := Load(); err == nil {
		t.Fatal("dev-токены без RO_JWT_SECRET должны быть ошибкой")
	}
}

func TestLoad_Overrides(t *testing.T) {
	envs := minimalEnvs()
	envs["RO_PORT"] = "9000"
	envs["RO_LOG_LEVEL"] = "debug"
	envs["RO_LOG_FORMAT"] = "text"
	envs["RO_RATE_ANALYZE"] = "3"
	envs["RO_ANALYSIS_TTL"] = "15m"
	envs["RO_MAX_FILE_SIZE_MB"] = "2"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.RateAnalyze != 3 {
		t.Errorf("RateAnalyze = %d", cfg.RateAnalyze)
	}
	if cfg.AnalysisTTL != 15*time.Minute {
		t.Errorf("AnalysisTTL = %v", cfg.AnalysisTTL)
	}
	if cfg.MaxFileSize != 2<<20 {
		t.Errorf("MaxFileSize = %d", cfg.MaxFileSize)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"некорректный порт", "RO_PORT", "not-a-number"},
		{"некорректный уровень логов", "RO_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "RO_LOG_FORMAT", "xml"},
		{"некорректная длительность", "RO_ANALYSIS_TTL", "60 minutes"},
		{"отрицательные повторы", "RO_AI_MAX_RETRIES", "-1"},
		{"нулевой лимит файла", "RO_MAX_FILE_SIZE_MB", "0"},
		{"некорректный bool", "RO_DEV_TOKENS", "да"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tc.key] = tc.val
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() должен отклонять %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		if err != nil {
			t.Errorf("parseLogLevel(%q) вернул ошибку: %v", in, err)
		}
		if got != want {
			t.Errorf("parseLogLevel(%q) = %v, ожидается %v", in, got, want)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Error("parseLogLevel должен отклонять неизвестный уровень")
	}
}
