// Package audit — service.go подписывается на события и пишет их в базу
// из отдельной горутины, чтобы обработчики Telegram не ждали PostgreSQL.
package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/events"
)

const (
	// DefaultBuffer — размер очереди событий.
	DefaultBuffer = 1024
	writeTimeout  = 5 * time.Second
)

// Service — асинхронный писатель архива.
type Service struct {
	repo    *Repository
	queue   chan events.Event
	dropped atomic.Int64
}

// NewService создаёт писателя с очередью на buffer событий.
func NewService(repo *Repository, buffer int) *Service {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Service{
		repo:  repo,
		queue: make(chan events.Event, buffer),
	}
}

// Subscribe подписывает архив на все события.
func (s *Service) Subscribe(d events.Dispatcher) {
	for _, t := range events.AllTypes {
		d.Subscribe(t, s.enqueue)
	}
}

// Dropped — сколько событий потеряно из-за переполнения очереди.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// enqueue не блокирует: при полной очереди событие теряется.
func (s *Service) enqueue(_ context.Context, e events.Event) error {
	select {
	case s.queue <- e:
		return nil
	default:
		s.dropped.Add(1)
		return fmt.Errorf("очередь аудита переполнена, событие %s (%s) потеряно", e.Type, e.ID)
	}
}

// Run пишет события до отмены ctx, затем дописывает остаток очереди.
func (s *Service) Run(ctx context.Context) error {
	log.WithField("component", "audit").Info("Архив аудита запущен")
	for {
		select {
		case <-ctx.Done():
			s.drain()
			log.WithField("component", "audit").Info("Архив аудита остановлен")
			return nil
		case e := <-s.queue:
			s.write(ctx, e)
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case e := <-s.queue:
			s.write(context.Background(), e)
		default:
			return
		}
	}
}

func (s *Service) write(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"component": "audit",
		"event_id":  e.ID,
		"type":      e.Type,
	})

	if err := s.repo.InsertEvent(ctx, e); err != nil {
		logger.WithError(err).Error("Не удалось записать событие")
		return
	}

	var err error
	switch p := e.Payload.(type) {
	case events.LedgerPayload:
		if e.Type == events.PayoutApproved {
			err = s.repo.InsertPayout(ctx, e, p)
		}
	case events.TicketPayload:
		if e.Type == events.TicketFinalized {
			err = s.repo.InsertTicket(ctx, e, p)
		}
	}
	if err != nil {
		logger.WithError(err).Error("Не удалось записать детали события")
		return
	}
	logger.Debug("событие записано в архив")
}
