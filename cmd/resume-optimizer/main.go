// main.go — точка входа Resume Optimizer.
// Собирает граф компонентов: config, logger, rate limiter (memory или Redis),
// кэши артефактов, клиент генеративного сервиса, оркестраторы, HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/resumeopt/internal/aiclient"
	"github.com/bigkaa/resumeopt/internal/api"
	"github.com/bigkaa/resumeopt/internal/api/handlers"
	"github.com/bigkaa/resumeopt/internal/api/middleware"
	"github.com/bigkaa/resumeopt/internal/cache"
	"github.com/bigkaa/resumeopt/internal/config"
	"github.com/bigkaa/resumeopt/internal/domain/model"
	"github.com/bigkaa/resumeopt/internal/ratelimit"
	"github.com/bigkaa/resumeopt/internal/server"
	"github.com/bigkaa/resumeopt/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Resume Optimizer запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Контекст фоновых горутин: janitor, sweepers, dephealth
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. OpenAPI-спецификация (валидация при старте)
	spec, err := api.LoadSpec(ctx)
	if err != nil {
		log.Fatalf("Ошибка OpenAPI-спецификации: %v", err)
	}

	// 4. Rate limiter: in-memory по умолчанию, Redis при RO_REDIS_ADDR
	limits := map[string]ratelimit.Limit{
		ratelimit.OpAnalyze:  {Max: cfg.RateAnalyze, Window: cfg.RateWindow},
		ratelimit.OpGenerate: {Max: cfg.RateGenerate, Window: cfg.RateWindow},
		ratelimit.OpDownload: {Max: cfg.RateDownload, Window: cfg.RateWindow},
		ratelimit.OpAuth:     {Max: cfg.RateAuth, Window: cfg.RateWindow},
	}

	var limiter ratelimit.Admitter
	var redisChecker handlers.ReadinessChecker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewRedis(rdb, limits)
		redisChecker = ratelimit.NewRedisReadinessChecker(rdb, 2*time.Second)
		logger.Info("Rate limiter: Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		mem := ratelimit.New(limits)
		mem.StartJanitor(ctx, cfg.RateJanitorInterval)
		limiter = mem
		logger.Info("Rate limiter: in-memory")
	}

	// 5. Кэши артефактов с фоновым sweep
	analyses := cache.New[*model.AnalysisRecord]("analyses")
	analyses.StartSweeper(ctx, cfg.CacheSweepInterval)
	defer analyses.Stop()

	results := cache.New[*model.GenerationRecord]("generations")
	results.StartSweeper(ctx, cfg.CacheSweepInterval)
	defer results.Stop()

	// 6. Клиент генеративного сервиса
	ai, err := aiclient.New(
		cfg.AIBaseURL, cfg.AIModel, cfg.AIAPIKey,
		cfg.AITimeout, cfg.AIMaxRetries, cfg.AICACertPath,
		logger,
	)
	if err != nil {
		log.Fatalf("Ошибка создания клиента генеративного сервиса: %v", err)
	}

	upstreamChecker, err := aiclient.NewReadinessChecker(cfg.AIBaseURL, 5*time.Second, cfg.AICACertPath)
	if err != nil {
		log.Fatalf("Ошибка создания readiness checker: %v", err)
	}

	// 7. Оркестраторы
	analysisSvc := service.NewAnalysisService(limiter, analyses, ai, cfg.AnalysisTTL, logger)
	generationSvc := service.NewGenerationService(limiter, analyses, results, ai, cfg.GenerationTTL, logger)
	downloadSvc := service.NewDownloadService(limiter, results, logger)

	// 8. Мониторинг зависимостей (опционально)
	if cfg.DephealthEnabled {
		dh, err := service.NewDephealthService(
			"resume-optimizer", cfg.DephealthGroup,
			cfg.AIBaseURL, cfg.JWKSUrl,
			cfg.DephealthCheckInterval, cfg.DephealthIsEntry,
			logger,
		)
		if err != nil {
			log.Fatalf("Ошибка создания dephealth: %v", err)
		}
		if err := dh.Start(ctx); err != nil {
			log.Fatalf("Ошибка запуска dephealth: %v", err)
		}
		defer dh.Stop()
	}

	// 9. JWT middleware: HS256 или JWKS
	var jwtAuth *middleware.JWTAuth
	var idpChecker handlers.ReadinessChecker
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuthHS256(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway, logger)
		logger.Info("JWT: режим HS256")
	} else {
		jwtAuth, err = middleware.NewJWTAuthJWKS(
			cfg.JWKSUrl, cfg.JWKSCACertPath, cfg.JWTIssuer,
			cfg.JWKSClientTimeout, cfg.JWKSRefreshInterval, cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			log.Fatalf("Ошибка создания JWT middleware: %v", err)
		}
		idpChecker, err = middleware.NewJWKSReadinessChecker(cfg.JWKSUrl, cfg.JWKSCACertPath, 5*time.Second)
		if err != nil {
			log.Fatalf("Ошибка создания JWKS readiness checker: %v", err)
		}
		logger.Info("JWT: режим JWKS", slog.String("url", cfg.JWKSUrl))
	}

	// 10. Handlers
	healthHandler := handlers.NewHealthHandler(upstreamChecker, redisChecker, idpChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler, analysisSvc, generationSvc, downloadSvc,
		cfg.MaxFileSize, logger,
	)

	routes := server.Routes{
		API:         apiHandler,
		SpecHandler: api.SpecHandler(spec),
	}
	if cfg.DevTokens {
		routes.TokenHandler = handlers.NewTokenHandler(
			cfg.JWTSecret, cfg.JWTIssuer, cfg.DevTokenTTL, limiter, logger,
		)
		logger.Warn("Включена выдача dev-токенов, не использовать в production")
	}

	// 11. HTTP-сервер: служебные endpoints и выдача токенов — без JWT
	srv := server.New(cfg, logger, routes,
		middleware.SecurityHeaders(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(),
			"/health", "/metrics", "/openapi.json", "/api/auth/token",
		),
	)

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Resume Optimizer остановлен")
}
