// Пакет cache — потокобезопасный in-memory кэш артефактов с TTL.
//
// Generic-хранилище ключ → значение, где каждый ключ — непрозрачный
// уникальный токен, а каждая запись имеет собственный срок жизни.
// Истечение логически мгновенно: Get просроченной записи неотличим
// от Get несуществующего ключа, даже если sweep ещё не прошёл.
// Фоновый sweep только ограничивает память, на видимость не влияет.
//
// Кэш единолично владеет записями: сервисы держат идентификаторы,
// а не ссылки, и не могут протащить устаревшее значение между запросами.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша артефактов, лейбл cache — имя экземпляра.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_cache_hits_total",
		Help: "Количество попаданий в кэш артефактов",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_cache_misses_total",
		Help: "Количество промахов кэша артефактов (включая истёкшие записи)",
	}, []string{"cache"})
	cacheSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ro_cache_swept_entries_total",
		Help: "Количество записей, удалённых фоновым sweep",
	}, []string{"cache"})
	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ro_cache_entries",
		Help: "Текущее количество записей в кэше (включая ещё не выметенные)",
	}, []string{"cache"})
)

// entry — контейнер одной записи: значение, время вставки, дедлайн TTL.
type entry[T any] struct {
	value      T
	insertedAt time.Time
	expiresAt  time.Time
}

// Store — generic-кэш с per-entry TTL.
// Потокобезопасен: RWMutex допускает конкурентные чтения.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	name    string
	// now — источник времени, подменяется в тестах
	now func() time.Time

	cancel context.CancelFunc
}

// Option — настройка Store.
type Option[T any] func(*Store[T])

// WithClock подменяет источник времени (для детерминированных тестов).
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// New создаёт пустой кэш. name идёт в лейблы Prometheus-метрик.
func New[T any](name string, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entries: make(map[string]entry[T]),
		name:    name,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put сохраняет значение под ключом с указанным TTL.
// Существующий ключ молча перезаписывается (используется для refresh).
func (s *Store[T]) Put(key string, value T, ttl time.Duration) {
	now := s.now()

	s.mu.Lock()
	s.entries[key] = entry[T]{
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	size := len(s.entries)
	s.mu.Unlock()

	cacheEntries.WithLabelValues(s.name).Set(float64(size))
}

// Get возвращает значение по ключу.
// Просроченная, но ещё не выметенная запись ведёт себя ровно как
// отсутствующая: (zero, false). Физическое удаление оставляется sweep'у,
// чтобы не брать write lock на пути чтения.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !s.now().Before(e.expiresAt) {
		cacheMissesTotal.WithLabelValues(s.name).Inc()
		var zero T
		return zero, false
	}

	cacheHitsTotal.WithLabelValues(s.name).Inc()
	return e.value, true
}

// Delete удаляет запись по ключу.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	size := len(s.entries)
	s.mu.Unlock()

	cacheEntries.WithLabelValues(s.name).Set(float64(size))
}

// Len возвращает количество записей, включая просроченные до sweep.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep удаляет все просроченные записи и возвращает их количество.
// Ключи-кандидаты собираются под read lock, удаление — короткий write
// lock с повторной проверкой дедлайна, чтобы не задерживать Get/Put.
func (s *Store[T]) Sweep() int {
	now := s.now()

	s.mu.RLock()
	var stale []string
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			stale = append(stale, key)
		}
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, key := range stale {
		if e, ok := s.entries[key]; ok && !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	cacheSweptTotal.WithLabelValues(s.name).Add(float64(removed))
	cacheEntries.WithLabelValues(s.name).Set(float64(size))
	return removed
}

// StartSweeper запускает фоновую горутину периодической чистки.
// Вызывается один раз при старте приложения; останавливается через Stop
// или отмену контекста.
func (s *Store[T]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Stop останавливает фоновый sweep.
func (s *Store[T]) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
