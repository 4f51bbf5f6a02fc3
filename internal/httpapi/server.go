// Package httpapi — read-only HTTP API для мониторинга: здоровье процесса,
// статистика выплат, открытые и закрытые тикеты, ожидающие заявки.
// Ничего не меняет в состоянии бота.
package httpapi

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/rewards"
	"serotonyl.ru/support-bot/internal/features/tickets"
)

// Pinger — проверка зависимости для /readyz (пул PostgreSQL).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps — источники данных API.
type Deps struct {
	Tickets *tickets.Service
	Ledger  *ledger.Ledger
	Rewards *rewards.Service
	// DB может быть nil, если архив аудита выключен.
	DB      Pinger
	Version string
}

// Server — HTTP-сервер на fiber.
type Server struct {
	app  *fiber.App
	addr string
}

// New собирает приложение fiber с маршрутами.
func New(addr string, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          errorHandler,
	})
	registerMiddlewares(app)
	registerRoutes(app, newHandler(deps))
	return &Server{app: app, addr: addr}
}

// App — для тестов через app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Run слушает addr до отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.addr).Info("HTTP API запущен")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		log.Info("HTTP API остановлен")
		return nil
	}
}

// registerRoutes вешает обработчики.
func registerRoutes(app *fiber.App, h *handler) {
	app.Get("/healthz", h.live)
	app.Get("/readyz", h.ready)

	api := app.Group("/api")
	api.Get("/stats", h.stats)
	api.Get("/tickets", h.listTickets)
	api.Get("/tickets/:id", h.getTicket)
	api.Get("/payouts/pending", h.pending)
}
