package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock — детерминированные часы для тестов. Время стоит на месте,
// пока не вызван Advance. Колбэки AfterFunc выполняются синхронно внутри
// Advance в порядке дедлайнов.
//
// Нельзя вызывать Advance из колбэка — будет дедлок.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Fake создаёт фейковые часы, выставленные на initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now возвращает текущее фейковое время.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc регистрирует колбэк. При d <= 0 колбэк вызывается сразу.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &fakeWaiter{deadline: c.current.Add(d), callback: f}
	c.waiters = append(c.waiters, w)

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// Advance сдвигает время на d и вызывает все истёкшие колбэки.
// Колбэки, зарегистрированные во время Advance с дедлайном в пределах
// нового времени, тоже срабатывают.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.collectExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.SliceStable(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, w := range expired {
			w.callback()
		}
	}
}

func (c *FakeClock) collectExpired(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, remaining []*fakeWaiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(target) {
			w.fired = true
			expired = append(expired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	return expired
}

// PendingCount — количество активных (не отменённых и не сработавших) таймеров.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
