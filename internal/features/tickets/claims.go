// Package tickets — claims.go следит за взятыми тикетами и таймером
// бездействия исполнителя.
//
// Состояния темы:
//
//	нет записи                    тикет свободен
//	claimerID, timer == nil       взят, таймер не взведён
//	claimerID, timer != nil       взят, автор ждёт ответа
//
// Автор пишет → таймер перевзводится. Исполнитель отвечает → таймер
// снимается. Таймер сработал → запись удаляется и вызывается onExpire.
package tickets

import (
	"sync"
	"time"

	"serotonyl.ru/support-bot/internal/clock"
)

// DefaultUnclaimTimeout — сколько ждать ответа исполнителя.
const DefaultUnclaimTimeout = 20 * time.Minute

type claimEntry struct {
	claimerID  int64
	timer      *clock.Timer
	generation uint64 // номер последнего взвода или снятия таймера
}

// ExpireFunc вызывается, когда исполнитель не ответил вовремя.
// Вызывается вне блокировки трекера.
type ExpireFunc func(channelID, claimerID int64)

// ClaimTracker — единственный владелец таймеров. В каждой теме не больше
// одного взведённого таймера.
type ClaimTracker struct {
	mu       sync.Mutex
	clock    clock.Clock
	timeout  time.Duration
	onExpire ExpireFunc
	entries  map[int64]*claimEntry
	seq      uint64 // общий счётчик поколений, не повторяется между записями
}

// NewClaimTracker создаёт трекер. timeout <= 0 заменяется на DefaultUnclaimTimeout.
func NewClaimTracker(clk clock.Clock, timeout time.Duration, onExpire ExpireFunc) *ClaimTracker {
	if timeout <= 0 {
		timeout = DefaultUnclaimTimeout
	}
	return &ClaimTracker{
		clock:    clk,
		timeout:  timeout,
		onExpire: onExpire,
		entries:  make(map[int64]*claimEntry),
	}
}

// Timeout — текущий таймаут бездействия.
func (c *ClaimTracker) Timeout() time.Duration {
	return c.timeout
}

// Track начинает следить за взятым тикетом (таймер не взведён).
func (c *ClaimTracker) Track(channelID, claimerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[channelID]; ok {
		e.timer.Stop()
	}
	c.entries[channelID] = &claimEntry{claimerID: claimerID}
}

// TrackIf — Track, но только если holds() подтверждает, что тикет сейчас
// у claimerID. holds вызывается под блокировкой трекера, поэтому
// запоздавший Track прежнего исполнителя не затрёт запись нового.
func (c *ClaimTracker) TrackIf(channelID, claimerID int64, holds func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !holds() {
		return false
	}
	if e, ok := c.entries[channelID]; ok {
		e.timer.Stop()
	}
	c.entries[channelID] = &claimEntry{claimerID: claimerID}
	return true
}

// CreatorMessage перевзводит таймер после сообщения автора тикета.
// false — тикет никем не взят.
func (c *ClaimTracker) CreatorMessage(channelID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[channelID]
	if !ok {
		return false
	}
	e.timer.Stop()
	c.seq++
	e.generation = c.seq
	gen, claimer := e.generation, e.claimerID
	e.timer = c.clock.AfterFunc(c.timeout, func() {
		c.fire(channelID, claimer, gen)
	})
	return true
}

// ClaimerMessage снимает таймер, если ответил сам исполнитель.
func (c *ClaimTracker) ClaimerMessage(channelID, authorID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[channelID]
	if !ok || e.claimerID != authorID || e.timer == nil {
		return false
	}
	e.timer.Stop()
	e.timer = nil
	c.seq++
	e.generation = c.seq
	return true
}

// Release забывает тему: ручное освобождение, закрытие или удаление.
func (c *ClaimTracker) Release(channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[channelID]; ok {
		e.timer.Stop()
		delete(c.entries, channelID)
	}
}

// ReleaseIf забывает тему, только если её держит claimerID.
func (c *ClaimTracker) ReleaseIf(channelID, claimerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[channelID]; ok && e.claimerID == claimerID {
		e.timer.Stop()
		delete(c.entries, channelID)
	}
}

// State — исполнитель и взведён ли таймер. ok == false: тема не отслеживается.
func (c *ClaimTracker) State(channelID int64) (claimerID int64, armed bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[channelID]
	if !ok {
		return 0, false, false
	}
	return e.claimerID, e.timer != nil, true
}

// fire срабатывает по таймеру. Устаревший таймер (перевзведён, снят,
// тема отпущена или взята другим) ничего не делает.
func (c *ClaimTracker) fire(channelID, claimerID int64, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[channelID]
	if !ok || e.generation != gen || e.claimerID != claimerID || e.timer == nil {
		c.mu.Unlock()
		return
	}
	delete(c.entries, channelID)
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire(channelID, claimerID)
	}
}
