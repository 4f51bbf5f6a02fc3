// Package clock абстрагирует работу со временем, чтобы таймеры тикетов
// (авто-снятие клейма, задержка удаления канала) можно было детерминированно
// проверять в тестах. В проде используется Real(), в тестах — Fake().
package clock

import "time"

// Clock — источник времени и отложенных вызовов.
type Clock interface {
	// Now возвращает текущее время.
	Now() time.Time

	// AfterFunc вызывает f через d. Вернувшийся Timer позволяет отменить вызов.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer — отменяемый отложенный вызов.
type Timer struct {
	stopFunc func() bool
}

// Stop отменяет таймер. Возвращает true, если таймер был активен.
// Безопасно вызывать на nil.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real возвращает часы на базе пакета time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
