package middleware

import (
	"sync"
	"time"

	"serotonyl.ru/support-bot/internal/clock"
)

// RateLimiter ограничивает количество запросов на пользователя.
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	requests map[int64][]time.Time
	limit    int
	window   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт лимитер и запускает фоновую очистку.
// limit <= 0 отключает ограничение.
func NewRateLimiter(clk clock.Clock, limit int, window time.Duration) *RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	rl := &RateLimiter{
		clock:    clk,
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow регистрирует запрос и сообщает, укладывается ли он в лимит.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	recent := recentSince(rl.requests[userID], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[userID] = recent
		return false
	}

	rl.requests[userID] = append(recent, now)
	return true
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup выкидывает пользователей без запросов в текущем окне.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.clock.Now().Add(-rl.window)
	for userID, times := range rl.requests {
		recent := recentSince(times, cutoff)
		if len(recent) == 0 {
			delete(rl.requests, userID)
		} else {
			rl.requests[userID] = recent
		}
	}
}

func recentSince(times []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}
