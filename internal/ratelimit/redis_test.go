package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

// TestRedisLimiter_WindowKey проверяет формат ключа и выравнивание
// начала окна: все вызовы внутри одного окна попадают на один ключ.
func TestRedisLimiter_WindowKey(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 30, 0, time.UTC)
	l := NewRedis(nil, map[string]Limit{
		OpAnalyze: {Max: 10, Window: time.Minute},
	}, WithRedisClock(func() time.Time { return base }))

	windowStart := base.Truncate(time.Minute)
	key := l.windowKey("user-1", OpAnalyze, windowStart.Unix())

	want := fmt.Sprintf("ro:rl:analyze:user-1:%d", windowStart.Unix())
	if key != want {
		t.Errorf("windowKey = %q, ожидается %q", key, want)
	}

	// Вызов в той же минуте даёт то же начало окна
	later := base.Add(20 * time.Second)
	if !later.Truncate(time.Minute).Equal(windowStart) {
		t.Error("вызовы внутри одной минуты должны попадать в одно окно")
	}
	// Следующая минута — новое окно
	next := base.Add(time.Minute)
	if next.Truncate(time.Minute).Equal(windowStart) {
		t.Error("вызов в следующей минуте должен попадать в новое окно")
	}
}

// TestRedisLimiter_UnlimitedOperation проверяет, что операция без квоты
// допускается без обращения к Redis.
func TestRedisLimiter_UnlimitedOperation(t *testing.T) {
	l := NewRedis(nil, map[string]Limit{})

	d := l.TryAcquire("user-1", "unknown")
	if !d.Admitted {
		t.Fatal("операция без квоты должна допускаться")
	}
	if d.Remaining != -1 {
		t.Errorf("Remaining = %d, ожидается -1", d.Remaining)
	}
}
