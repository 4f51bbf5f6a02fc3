// Package rewards — handlers.go обрабатывает команды:
// !выплата <сумма> <ссылка>, !начислить <user_id> <сумма>, кнопки одобрения.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/gateway"
)

// Handler обрабатывает заявки и решения.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandlePayoutCommand — !выплата 650 https://...
func (h *Handler) HandlePayoutCommand(ctx context.Context, reply gateway.Responder, staffID int64, args []string) {
	if len(args) < 2 {
		reply(ctx, fmt.Sprintf("❌ Формат: !выплата сумма ссылка (от %d до %d)", h.service.payoutMin, h.service.payoutMax))
		return
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, "❌ Сумма должна быть числом")
		return
	}
	h.HandlePayoutRequest(ctx, reply, staffID, amount, strings.Join(args[1:], " "))
}

// HandlePayoutRequest выставляет заявку и сообщает результат сотруднику.
func (h *Handler) HandlePayoutRequest(ctx context.Context, reply gateway.Responder, staffID, amount int64, ref string) {
	req, err := h.service.RequestPayout(ctx, staffID, amount, ref)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidAmount):
			reply(ctx, fmt.Sprintf("❌ Сумма выплаты — от %s до %s",
				common.FormatBalance(h.service.payoutMin), common.FormatBalance(h.service.payoutMax)))
		case errors.Is(err, common.ErrInsufficientBalance):
			reply(ctx, fmt.Sprintf("❌ Недостаточно монет. %s", h.balanceLine(staffID)))
		case errors.Is(err, ErrMissingRef):
			reply(ctx, "❌ Укажите ссылку для получения выплаты")
		case errors.Is(err, common.ErrGatewayPermissionDenied):
			reply(ctx, gateway.PermissionHint(err))
		default:
			log.WithError(err).Error("Ошибка запроса выплаты")
			reply(ctx, "❌ Не удалось отправить заявку")
		}
		return
	}
	reply(ctx, fmt.Sprintf("📨 Заявка на выплату %s отправлена администраторам", common.FormatBalance(req.Amount)))
}

// HandleCreditCommand — !начислить <user_id> <сумма> (только админы).
func (h *Handler) HandleCreditCommand(ctx context.Context, reply gateway.Responder, adminID int64, args []string) {
	if len(args) < 2 {
		reply(ctx, "❌ Формат: !начислить user_id сумма")
		return
	}
	staffID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || staffID <= 0 {
		reply(ctx, "❌ Некорректный user_id")
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctx, "❌ Сумма должна быть числом")
		return
	}
	h.HandleManualCredit(ctx, reply, adminID, staffID, amount)
}

// HandleManualCredit начисляет монеты и отвечает админу.
func (h *Handler) HandleManualCredit(ctx context.Context, reply gateway.Responder, adminID, staffID, amount int64) {
	balance, err := h.service.ManualCredit(ctx, adminID, staffID, amount)
	if err != nil {
		if errors.Is(err, common.ErrInvalidAmount) {
			reply(ctx, "❌ Сумма должна быть положительной")
			return
		}
		log.WithError(err).Error("Ошибка ручного начисления")
		reply(ctx, "❌ Не удалось начислить")
		return
	}
	reply(ctx, fmt.Sprintf("✅ Начислено %s пользователю id%d. Баланс: %s",
		common.FormatBalance(amount), staffID, common.FormatBalance(balance)))
}

// HandleDecision — кнопки «Одобрить» / «Отклонить».
func (h *Handler) HandleDecision(ctx context.Context, reply gateway.Responder, kind actions.ApprovalKind, approve bool, requestID uuid.UUID, adminID int64) {
	dec, err := h.service.Decide(ctx, kind, approve, requestID, adminID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			reply(ctx, "ℹ️ Заявка уже рассмотрена")
		case errors.Is(err, common.ErrBalanceChanged):
			reply(ctx, fmt.Sprintf("❌ Баланс сотрудника изменился (%s), выплата не проведена", common.FormatBalance(dec.Balance)))
		default:
			log.WithError(err).Error("Ошибка рассмотрения заявки")
			reply(ctx, "❌ Ошибка рассмотрения заявки, изменения отменены")
		}
		return
	}

	req := dec.Request
	switch {
	case !dec.Approved:
		reply(ctx, "❌ Заявка отклонена")
	case req.Kind == actions.PayoutDirect:
		reply(ctx, fmt.Sprintf("✅ Выплата %s одобрена, остаток %s", common.FormatBalance(req.Amount), common.FormatBalance(dec.Balance)))
	default:
		reply(ctx, fmt.Sprintf("✅ Награда %s начислена, баланс %s", common.FormatBalance(req.Amount), common.FormatBalance(dec.Balance)))
	}
}

func (h *Handler) balanceLine(staffID int64) string {
	return "Баланс: " + common.FormatBalance(h.service.ledger.Balance(staffID))
}
