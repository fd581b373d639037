// Пакет ratelimit — контроль допуска запросов per-user, per-operation.
//
// Реализация по умолчанию — sliding window log в памяти процесса:
// на каждую пару (userID, operation) хранится список отметок времени
// в пределах текущего окна. Точный long-run bound, без краевых всплесков
// fixed window. Лимиты настраиваются независимо для каждой операции.
//
// Состояние process-local. Для горизонтального масштабирования та же
// роль закрывается Redis-бэкендом (redis.go) за общим интерфейсом Admitter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики допуска.
var (
	acquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ro_ratelimit_decisions_total",
			Help: "Количество решений rate limiter по операциям и исходам",
		},
		[]string{"operation", "outcome"},
	)
)

// Операции, подлежащие контролю допуска.
const (
	OpAnalyze  = "analyze"
	OpGenerate = "generate"
	OpDownload = "download"
	OpAuth     = "auth"
)

// Limit — квота одной операции: не более Max запросов за Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Decision — результат попытки допуска.
// Отказ окончателен для данной попытки: никакой очереди и ожидания.
type Decision struct {
	// Admitted — запрос допущен
	Admitted bool
	// Remaining — остаток квоты в текущем окне после этого решения
	Remaining int
	// ResetAt — момент, когда освободится хотя бы один слот.
	// При отказе клиент строит из него Retry-After.
	ResetAt time.Time
}

// Admitter — контракт допуска запроса.
// Реализации: Limiter (in-memory sliding window) и RedisLimiter (fixed window).
type Admitter interface {
	TryAcquire(userID, operation string) Decision
}

// bucketKey — идентичность счётчика: пара (userID, operation).
type bucketKey struct {
	userID    string
	operation string
}

// bucket — отметки времени запросов одной пары в пределах окна.
type bucket struct {
	stamps []time.Time
}

// Limiter — in-memory rate limiter со скользящим окном.
// Потокобезопасен: решение принимается атомарно под общим мьютексом,
// два конкурентных вызова не могут оба занять последний слот.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	limits  map[string]Limit
	// now — источник времени, подменяется в тестах
	now func() time.Time
}

// Option — настройка Limiter.
type Option func(*Limiter)

// WithClock подменяет источник времени (для детерминированных тестов).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New создаёт Limiter с квотами по операциям.
// Операция без записи в limits не ограничивается (Admitted всегда true).
func New(limits map[string]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[bucketKey]*bucket),
		limits:  limits,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire атомарно проверяет и занимает слот для пары (userID, operation).
// Никогда не блокируется: при исчерпании квоты немедленно возвращает отказ
// с ResetAt = самая старая удержанная отметка + окно.
func (l *Limiter) TryAcquire(userID, operation string) Decision {
	limit, ok := l.limits[operation]
	if !ok || limit.Max <= 0 {
		// Операция не ограничена
		return Decision{Admitted: true, Remaining: -1}
	}

	now := l.now()
	key := bucketKey{userID: userID, operation: operation}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}

	// Ленивая чистка: отбрасываем отметки старше now - window.
	// Инвариант: хранится не больше, чем нужно для оценки текущего окна.
	cutoff := now.Add(-limit.Window)
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = kept

	if len(b.stamps) >= limit.Max {
		resetAt := b.stamps[0].Add(limit.Window)
		acquireTotal.WithLabelValues(operation, "rejected").Inc()
		return Decision{Admitted: false, Remaining: 0, ResetAt: resetAt}
	}

	b.stamps = append(b.stamps, now)
	acquireTotal.WithLabelValues(operation, "admitted").Inc()
	return Decision{
		Admitted:  true,
		Remaining: limit.Max - len(b.stamps),
		ResetAt:   b.stamps[0].Add(limit.Window),
	}
}

// Cleanup удаляет бакеты, все отметки которых вышли за окно своей операции.
// Вызывается janitor-горутиной; на корректность решений не влияет,
// только ограничивает память под неактивных пользователей.
func (l *Limiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		limit, ok := l.limits[key.operation]
		if !ok {
			delete(l.buckets, key)
			removed++
			continue
		}
		cutoff := now.Add(-limit.Window)
		idle := true
		for _, ts := range b.stamps {
			if ts.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartJanitor запускает периодическую чистку неактивных бакетов.
// Останавливается при отмене контекста.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Len возвращает количество активных бакетов (для тестов и метрик).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
