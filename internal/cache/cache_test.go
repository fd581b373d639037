package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock — управляемый источник времени.
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

// TestStore_PutGet проверяет базовые операции Put/Get до истечения TTL.
func TestStore_PutGet(t *testing.T) {
	clock := newFakeClock()
	s := New[string]("test", WithClock[string](clock.Now))

	// Cache miss для нового ключа
	if _, ok := s.Get("missing"); ok {
		t.Fatal("ожидался miss для несуществующего ключа")
	}

	s.Put("k1", "value-1", time.Hour)
	got, ok := s.Get("k1")
	if !ok {
		t.Fatal("ожидался hit после Put")
	}
	if got != "value-1" {
		t.Errorf("Get = %q, ожидается %q", got, "value-1")
	}
}

// TestStore_ExpiryWithoutSweep проверяет главный контракт:
// истёкшая запись невидима, даже если sweep не запускался.
func TestStore_ExpiryWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	s := New[int]("test", WithClock[int](clock.Now))

	s.Put("k1", 42, time.Minute)

	clock.Advance(59 * time.Second)
	if _, ok := s.Get("k1"); !ok {
		t.Fatal("запись не должна истечь до дедлайна")
	}

	clock.Advance(2 * time.Second)
	if _, ok := s.Get("k1"); ok {
		t.Fatal("истёкшая запись должна быть невидима без sweep")
	}
	// Физически запись ещё в памяти до sweep
	if s.Len() != 1 {
		t.Errorf("Len() = %d, ожидается 1 до sweep", s.Len())
	}
}

// TestStore_ExpiryAtDeadline проверяет границу: запись с expiresAt == now
// уже считается истёкшей.
func TestStore_ExpiryAtDeadline(t *testing.T) {
	clock := newFakeClock()
	s := New[int]("test", WithClock[int](clock.Now))

	s.Put("k1", 1, time.Minute)
	clock.Advance(time.Minute)

	if _, ok := s.Get("k1"); ok {
		t.Fatal("запись с истёкшим ровно сейчас дедлайном должна быть невидима")
	}
}

// TestStore_OverwriteRefreshesTTL проверяет молчаливую перезапись
// существующего ключа с новым TTL.
func TestStore_OverwriteRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	s := New[string]("test", WithClock[string](clock.Now))

	s.Put("k1", "old", time.Minute)
	clock.Advance(50 * time.Second)
	s.Put("k1", "new", time.Minute)

	// Старый дедлайн прошёл бы через 10 секунд, новый — через минуту
	clock.Advance(30 * time.Second)
	got, ok := s.Get("k1")
	if !ok {
		t.Fatal("перезаписанная запись должна жить по новому TTL")
	}
	if got != "new" {
		t.Errorf("Get = %q, ожидается %q", got, "new")
	}
}

// TestStore_Delete проверяет явное удаление.
func TestStore_Delete(t *testing.T) {
	s := New[string]("test")

	s.Put("k1", "v", time.Hour)
	s.Delete("k1")
	if _, ok := s.Get("k1"); ok {
		t.Fatal("ожидался miss после Delete")
	}
}

// TestStore_Sweep проверяет, что sweep удаляет только истёкшие записи.
func TestStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := New[int]("test", WithClock[int](clock.Now))

	s.Put("stale-1", 1, time.Minute)
	s.Put("stale-2", 2, time.Minute)
	s.Put("fresh", 3, time.Hour)

	clock.Advance(2 * time.Minute)

	if removed := s.Sweep(); removed != 2 {
		t.Errorf("Sweep() = %d, ожидается 2", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, ожидается 1 после sweep", s.Len())
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("живая запись не должна удаляться sweep'ом")
	}
}

// TestStore_ConcurrentAccess проверяет потокобезопасность конкурентных
// Put/Get/Sweep по одному ключу.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New[int]("test")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Put(fmt.Sprintf("k%d", n%10), n, time.Minute)
		}(i)
		go func(n int) {
			defer wg.Done()
			s.Get(fmt.Sprintf("k%d", n%10))
			if n%10 == 0 {
				s.Sweep()
			}
		}(i)
	}
	wg.Wait()

	if s.Len() > 10 {
		t.Errorf("Len() = %d, ожидается не больше 10 ключей", s.Len())
	}
}
