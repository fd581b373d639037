// redis.go — Redis-бэкенд rate limiter для многопроцессных развёртываний.
//
// Алгоритм — fixed window: счётчик INCR на ключе окна с EXPIRE.
// Принятое приближение: пользователь может отправить до 2×limit запросов,
// оседлав границу окна. Долгосрочная средняя скорость ограничена корректно.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter — распределённый rate limiter поверх Redis.
// Реализует Admitter тем же контрактом, что и in-memory Limiter.
type RedisLimiter struct {
	rdb    *redis.Client
	limits map[string]Limit
	prefix string
	// timeout — ограничение на обращение к Redis; при недоступности
	// Redis запрос допускается (fail-open), недоступность видна в readiness.
	timeout time.Duration
	now     func() time.Time
}

// RedisOption — настройка RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisClock подменяет источник времени (для тестов формирования ключей).
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) { l.now = now }
}

// NewRedis создаёт Redis-бэкенд rate limiter.
func NewRedis(rdb *redis.Client, limits map[string]Limit, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		rdb:     rdb,
		limits:  limits,
		prefix:  "ro:rl",
		timeout: 200 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// windowKey формирует ключ счётчика текущего окна.
// Формат: {prefix}:{operation}:{userID}:{unix-начало-окна}.
func (l *RedisLimiter) windowKey(userID, operation string, windowStart int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", l.prefix, operation, userID, windowStart)
}

// TryAcquire атомарно инкрементирует счётчик окна.
// Атомарность обеспечивает Redis INCR: двойного допуска последнего
// слота не бывает и между процессами.
func (l *RedisLimiter) TryAcquire(userID, operation string) Decision {
	limit, ok := l.limits[operation]
	if !ok || limit.Max <= 0 {
		return Decision{Admitted: true, Remaining: -1}
	}

	now := l.now()
	windowStart := now.Truncate(limit.Window)
	resetAt := windowStart.Add(limit.Window)
	key := l.windowKey(userID, operation, windowStart.Unix())

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Запас к EXPIRE, чтобы ключ гарантированно пережил своё окно
	pipe.Expire(ctx, key, limit.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		// fail-open: деградация Redis не должна ронять сервис
		acquireTotal.WithLabelValues(operation, "error").Inc()
		return Decision{Admitted: true, Remaining: -1, ResetAt: resetAt}
	}

	count := int(incr.Val())
	if count > limit.Max {
		acquireTotal.WithLabelValues(operation, "rejected").Inc()
		return Decision{Admitted: false, Remaining: 0, ResetAt: resetAt}
	}

	acquireTotal.WithLabelValues(operation, "admitted").Inc()
	return Decision{Admitted: true, Remaining: limit.Max - count, ResetAt: resetAt}
}

// --- ReadinessChecker для Redis ---

// RedisReadinessChecker — проверка доступности Redis через PING.
type RedisReadinessChecker struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewRedisReadinessChecker создаёт checker доступности Redis.
func NewRedisReadinessChecker(rdb *redis.Client, timeout time.Duration) *RedisReadinessChecker {
	return &RedisReadinessChecker{rdb: rdb, timeout: timeout}
}

// CheckReady выполняет PING.
func (rc *RedisReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
	defer cancel()

	if err := rc.rdb.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "PING успешен"
}
