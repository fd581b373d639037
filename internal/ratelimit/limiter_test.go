package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock — управляемый источник времени для детерминированных тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TestLimiter_AdmitsUpToLimit проверяет, что N вызовов в окне допускаются,
// а N+1 отклоняется с положительным ResetAt.
func TestLimiter_AdmitsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Limit{
		OpAnalyze: {Max: 10, Window: time.Minute},
	}, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		d := l.TryAcquire("user-1", OpAnalyze)
		if !d.Admitted {
			t.Fatalf("вызов %d: ожидался допуск", i+1)
		}
		if d.Remaining != 10-i-1 {
			t.Errorf("вызов %d: Remaining = %d, ожидается %d", i+1, d.Remaining, 10-i-1)
		}
	}

	d := l.TryAcquire("user-1", OpAnalyze)
	if d.Admitted {
		t.Fatal("11-й вызов в окне должен быть отклонён")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, ожидается 0", d.Remaining)
	}
	if !d.ResetAt.After(clock.Now()) {
		t.Errorf("ResetAt = %v должен быть в будущем относительно %v", d.ResetAt, clock.Now())
	}
}

// TestLimiter_WindowElapses проверяет, что после истечения окна
// допуск возобновляется и устаревшие отметки вычищаются.
func TestLimiter_WindowElapses(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Limit{
		OpGenerate: {Max: 2, Window: time.Minute},
	}, WithClock(clock.Now))

	l.TryAcquire("user-1", OpGenerate)
	l.TryAcquire("user-1", OpGenerate)
	if d := l.TryAcquire("user-1", OpGenerate); d.Admitted {
		t.Fatal("квота должна быть исчерпана")
	}

	clock.Advance(time.Minute + time.Second)

	d := l.TryAcquire("user-1", OpGenerate)
	if !d.Admitted {
		t.Fatal("после истечения окна вызов должен быть допущен")
	}
	// Устаревшие отметки вычищены: осталась только новая
	if d.Remaining != 1 {
		t.Errorf("Remaining = %d, ожидается 1 (старые отметки вычищены)", d.Remaining)
	}
}

// TestLimiter_PartialWindowSlide проверяет скользящее окно: слот
// освобождается ровно тогда, когда самая старая отметка выходит за окно.
func TestLimiter_PartialWindowSlide(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Limit{
		OpDownload: {Max: 2, Window: time.Minute},
	}, WithClock(clock.Now))

	l.TryAcquire("user-1", OpDownload)
	clock.Advance(30 * time.Second)
	l.TryAcquire("user-1", OpDownload)

	// Обе отметки ещё в окне
	if d := l.TryAcquire("user-1", OpDownload); d.Admitted {
		t.Fatal("обе отметки в окне, вызов должен быть отклонён")
	}

	// Через 31 секунду первая отметка выходит за окно
	clock.Advance(31 * time.Second)
	if d := l.TryAcquire("user-1", OpDownload); !d.Admitted {
		t.Fatal("первая отметка вышла за окно, вызов должен быть допущен")
	}
}

// TestLimiter_IndependentOperations проверяет независимость квот
// разных операций и разных пользователей.
func TestLimiter_IndependentOperations(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Limit{
		OpAnalyze:  {Max: 1, Window: time.Minute},
		OpGenerate: {Max: 1, Window: time.Minute},
	}, WithClock(clock.Now))

	if d := l.TryAcquire("user-1", OpAnalyze); !d.Admitted {
		t.Fatal("первый analyze должен быть допущен")
	}
	if d := l.TryAcquire("user-1", OpAnalyze); d.Admitted {
		t.Fatal("второй analyze должен быть отклонён")
	}

	// Другая операция того же пользователя не затронута
	if d := l.TryAcquire("user-1", OpGenerate); !d.Admitted {
		t.Fatal("generate не должен зависеть от квоты analyze")
	}
	// Тот же op другого пользователя не затронут
	if d := l.TryAcquire("user-2", OpAnalyze); !d.Admitted {
		t.Fatal("квота user-2 не должна зависеть от user-1")
	}
}

// TestLimiter_UnknownOperationUnlimited проверяет, что операция
// без настроенной квоты всегда допускается.
func TestLimiter_UnknownOperationUnlimited(t *testing.T) {
	l := New(map[string]Limit{})

	for i := 0; i < 100; i++ {
		d := l.TryAcquire("user-1", "unknown")
		if !d.Admitted {
			t.Fatal("операция без квоты должна допускаться всегда")
		}
		if d.Remaining != -1 {
			t.Fatalf("Remaining = %d, ожидается -1 для безлимитной операции", d.Remaining)
		}
	}
}

// TestLimiter_ConcurrentNoDoubleAdmit проверяет атомарность решения:
// при конкурентной гонке на границе квоты допускается ровно Max вызовов.
func TestLimiter_ConcurrentNoDoubleAdmit(t *testing.T) {
	const limit = 50
	const callers = 200

	l := New(map[string]Limit{
		OpAnalyze: {Max: limit, Window: time.Minute},
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("user-1", OpAnalyze).Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("допущено %d вызовов, ожидается ровно %d", admitted, limit)
	}
}

// TestLimiter_Cleanup проверяет удаление неактивных бакетов.
func TestLimiter_Cleanup(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Limit{
		OpAnalyze: {Max: 5, Window: time.Minute},
	}, WithClock(clock.Now))

	l.TryAcquire("user-1", OpAnalyze)
	l.TryAcquire("user-2", OpAnalyze)
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, ожидается 2", l.Len())
	}

	// Внутри окна ничего не удаляется
	if removed := l.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() = %d, ожидается 0 внутри окна", removed)
	}

	clock.Advance(2 * time.Minute)
	if removed := l.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() = %d, ожидается 2 после истечения окна", removed)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, ожидается 0 после чистки", l.Len())
	}
}
