// Package tickets — handlers.go переводит результаты движка в ответы
// пользователю. Каждый вызов отвечает ровно один раз.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/gateway"
)

// Handler обрабатывает команды и кнопки тикетов.
type Handler struct {
	service *Service
	gw      gateway.Gateway
}

// NewHandler создаёт обработчик тикетов.
func NewHandler(service *Service, gw gateway.Gateway) *Handler {
	return &Handler{service: service, gw: gw}
}

// HandlePanel публикует панель с кнопкой на каждую категорию (!панель).
func (h *Handler) HandlePanel(ctx context.Context, reply gateway.Responder, chatID int64) {
	var rows []gateway.Row
	for _, cat := range h.service.Catalog().Categories {
		rows = append(rows, gateway.Row{{Text: "🎫 " + cat.Title, Data: actions.OpenTicket(cat.Key)}})
	}
	text := "🛟 Поддержка\n\nВыберите тему обращения — бот создаст для вас отдельный тикет."
	if _, err := h.gw.SendToChat(ctx, chatID, text, rows...); err != nil {
		log.WithError(err).Error("Ошибка отправки панели тикетов")
		reply(ctx, "❌ Не удалось отправить панель")
		return
	}
	reply(ctx, "✅ Панель опубликована")
}

// HandleOpen — кнопка панели или команда !тикет <категория> [описание].
func (h *Handler) HandleOpen(ctx context.Context, reply gateway.Responder, userID int64, userName, category, details string) {
	t, err := h.service.OpenTicket(ctx, userID, userName, category, details)
	if err != nil {
		if errors.Is(err, common.ErrUnknownCategory) {
			reply(ctx, fmt.Sprintf("❌ Неизвестная категория. Доступны: %s", strings.Join(h.service.Catalog().Keys(), ", ")))
			return
		}
		h.replyError(ctx, reply, err, "❌ Не удалось создать тикет")
		return
	}
	reply(ctx, fmt.Sprintf("✅ Тикет создан: %s", t.Title))
}

// HandleClaimToggle — кнопка «Взять».
func (h *Handler) HandleClaimToggle(ctx context.Context, reply gateway.Responder, channelID, staffID int64) {
	claimed, err := h.service.ToggleClaim(ctx, channelID, staffID)
	if err != nil {
		h.replyError(ctx, reply, err, "❌ Не удалось изменить исполнителя")
		return
	}
	if claimed {
		reply(ctx, "✋ Тикет ваш")
	} else {
		reply(ctx, "🔓 Вы отпустили тикет")
	}
}

// HandleSoftClose — кнопка «Закрыть», !закрыть и !закрытьадмин.
func (h *Handler) HandleSoftClose(ctx context.Context, reply gateway.Responder, channelID, staffID int64, adminOverride bool) {
	t, err := h.service.SoftClose(ctx, channelID, staffID, adminOverride)
	if err != nil {
		if errors.Is(err, common.ErrNotClaimer) {
			reply(ctx, "❌ Тикет взят другим сотрудником — закрыть его может только исполнитель")
			return
		}
		h.replyError(ctx, reply, err, "❌ Не удалось закрыть тикет")
		return
	}
	if t.AdminOverride {
		reply(ctx, "🔒 Тикет закрыт поверх исполнителя, награда уйдёт ему")
		return
	}
	reply(ctx, "🔒 Тикет закрыт")
}

// HandleFinalize — кнопка «Удалить».
func (h *Handler) HandleFinalize(ctx context.Context, reply gateway.Responder, channelID, staffID int64, force bool) {
	if _, err := h.service.Finalize(ctx, channelID, staffID, force); err != nil {
		if errors.Is(err, common.ErrNotSoftClosed) {
			reply(ctx, "❌ Сначала закройте тикет")
			return
		}
		h.replyError(ctx, reply, err, "❌ Не удалось удалить тикет")
		return
	}
	reply(ctx, "🗑 Транскрипт сохранён, тема будет удалена")
}

// HandleForceDelete — команда админа !удалить в теме. Тикет с записью
// удаляется с транскриптом, тема без записи — просто удаляется.
func (h *Handler) HandleForceDelete(ctx context.Context, reply gateway.Responder, channelID, adminID int64) {
	if _, ok := h.service.Registry().GetActive(channelID); ok {
		h.HandleFinalize(ctx, reply, channelID, adminID, true)
		return
	}
	if err := h.service.ForceDeleteWithoutLog(ctx, channelID, adminID); err != nil {
		h.replyError(ctx, reply, err, "❌ Не удалось удалить тему")
		return
	}
	reply(ctx, "🗑 Тема удалена без транскрипта")
}

// replyError выбирает текст по типу ошибки.
func (h *Handler) replyError(ctx context.Context, reply gateway.Responder, err error, generic string) {
	switch {
	case errors.Is(err, common.ErrGatewayPermissionDenied):
		reply(ctx, gateway.PermissionHint(err))
	case errors.Is(err, common.ErrDuplicateOpenTicket),
		errors.Is(err, common.ErrAlreadyClaimed),
		errors.Is(err, common.ErrNotClaimer),
		errors.Is(err, common.ErrAlreadySoftClosed),
		errors.Is(err, common.ErrNotSoftClosed):
		reply(ctx, "❌ "+common.Capitalize(rootMessage(err)))
	case errors.Is(err, common.ErrNotFound):
		reply(ctx, "❌ Тикет не найден или уже удалён")
	case errors.Is(err, ErrHasRecord):
		reply(ctx, "❌ "+common.Capitalize(ErrHasRecord.Error()))
	default:
		log.WithError(err).Error(generic)
		reply(ctx, generic)
	}
}

// rootMessage — текст сентинела без обёрток.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		common.ErrDuplicateOpenTicket,
		common.ErrAlreadyClaimed,
		common.ErrNotClaimer,
		common.ErrAlreadySoftClosed,
		common.ErrNotSoftClosed,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
