// Package ledger — handlers.go обрабатывает команды:
// !баланс, !выплаты (история), !статистика (админы).
package ledger

import (
	"context"

	"serotonyl.ru/support-bot/internal/gateway"
)

// Handler обрабатывает команды леджера.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleBalance — команда !баланс.
//
//	💰 Баланс: 150 монет
func (h *Handler) HandleBalance(ctx context.Context, reply gateway.Responder, staffID int64) {
	reply(ctx, h.service.BalanceText(staffID))
}

// HandleHistory — команда !выплаты.
func (h *Handler) HandleHistory(ctx context.Context, reply gateway.Responder, staffID int64) {
	reply(ctx, h.service.HistoryText(staffID))
}

// HandleStatistics — команда !статистика. Права проверяет роутер.
func (h *Handler) HandleStatistics(ctx context.Context, reply gateway.Responder) {
	reply(ctx, h.service.StatisticsText(ctx))
}
