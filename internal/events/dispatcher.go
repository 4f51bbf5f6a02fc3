// Package events — синхронная шина доменных событий тикетов и выплат.
// Подписчики (аудит, HTTP-счётчики) не влияют на исход операции:
// ошибки подписчиков только логируются.
package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает опубликованное событие.
type Handler func(context.Context, Event) error

// Dispatcher публикует события и регистрирует подписчиков.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType Type, handler Handler)
}

type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[Type][]Handler
}

// NewInMemoryDispatcher создаёт диспетчер в памяти.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[Type][]Handler),
	}
}

// Publish по очереди вызывает подписчиков события.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event":    event.Type,
				"event_id": event.ID,
			}).Warn("Подписчик события вернул ошибку")
		}
	}
}

// Subscribe регистрирует обработчик для типа события.
func (d *inMemoryDispatcher) Subscribe(eventType Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Nop — диспетчер, который ничего не делает (для тестов и выключенного аудита).
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Subscribe(Type, Handler) {}
