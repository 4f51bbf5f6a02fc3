package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/bot/middleware"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/rewards"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway"
)

const (
	textForbidden    = "❌ Недостаточно прав"
	textOnlyInTicket = "❌ Команда работает только в теме тикета"
	textInternal     = "❌ Внутренняя ошибка, попробуйте ещё раз"
	textStaleButton  = "❌ Кнопка устарела"
	textRateLimited  = "⏳ Слишком часто, подождите немного"
)

// Roles — роли пользователей (config.Config).
type Roles interface {
	IsStaff(userID int64) bool
	IsAdmin(userID int64) bool
}

// Router переводит сообщения и нажатия кнопок в вызовы фич и проверяет
// роли. Ровно один ответ на каждое действие пользователя.
type Router struct {
	roles         Roles
	supportChatID int64
	gw            gateway.Gateway

	tickets       *tickets.Service
	ticketHandler *tickets.Handler
	rewardHandler *rewards.Handler
	ledgerHandler *ledger.Handler

	rateLimiter *middleware.RateLimiter
	parser      *CommandParser
}

// RouterDeps — зависимости роутера.
type RouterDeps struct {
	Roles         Roles
	SupportChatID int64
	Gateway       gateway.Gateway
	Tickets       *tickets.Service
	TicketHandler *tickets.Handler
	RewardHandler *rewards.Handler
	LedgerHandler *ledger.Handler
	// RateLimiter может быть nil — тогда команды не ограничиваются.
	RateLimiter *middleware.RateLimiter
}

func NewRouter(d RouterDeps) *Router {
	return &Router{
		roles:         d.Roles,
		supportChatID: d.SupportChatID,
		gw:            d.Gateway,
		tickets:       d.Tickets,
		ticketHandler: d.TicketHandler,
		rewardHandler: d.RewardHandler,
		ledgerHandler: d.LedgerHandler,
		rateLimiter:   d.RateLimiter,
		parser:        NewCommandParser(),
	}
}

// HandleMessage обрабатывает текстовое сообщение, уже прошедшее фильтр чатов.
func (r *Router) HandleMessage(ctx context.Context, msg *telego.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	user := msg.From
	name := gateway.UserName(*user)
	channelID := r.ticketChannel(msg)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	// всё, что пишут в теме тикета, идёт в транскрипт (включая команды)
	if channelID != 0 {
		content := text
		if content == "" {
			content = "[вложение]"
		}
		r.OnChatMessage(ctx, channelID, user.ID, name, content, user.IsBot)
	}

	if user.IsBot {
		return
	}
	cmd, args, isCommand := r.parser.ParseCommand(text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":        cmd,
		"args":       args,
		"channel_id": channelID,
	}).Debug("parsed command")

	reply := once(r.replyTo(msg.Chat.ID, channelID))
	defer middleware.RecoverFromPanic(func() { reply(ctx, textInternal) })

	if r.rateLimiter != nil && !r.rateLimiter.Allow(user.ID) {
		log.WithField("user_id", user.ID).Debug("rate limited")
		reply(ctx, textRateLimited)
		return
	}

	r.routeCommand(ctx, reply, msg.Chat.ID, channelID, user.ID, name, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (r *Router) routeCommand(ctx context.Context, reply gateway.Responder, chatID, channelID, userID int64, name, cmd string, args []string) {
	switch cmd {
	case "start", "help", "помощь":
		reply(ctx, r.helpText(userID))

	case "тикет":
		if len(args) == 0 {
			reply(ctx, "❌ Формат: !тикет категория [описание]\nКатегории: "+strings.Join(r.tickets.Catalog().Keys(), ", "))
			return
		}
		r.OnTicketOpenRequested(ctx, reply, userID, name, strings.ToLower(args[0]), strings.Join(args[1:], " "))

	case "панель":
		if !r.roles.IsAdmin(userID) {
			reply(ctx, textForbidden)
			return
		}
		r.ticketHandler.HandlePanel(ctx, reply, chatID)

	case "взять":
		if channelID == 0 {
			reply(ctx, textOnlyInTicket)
			return
		}
		r.OnClaimToggle(ctx, reply, channelID, userID)

	case "закрыть", "закрытьадмин":
		if channelID == 0 {
			reply(ctx, textOnlyInTicket)
			return
		}
		r.OnSoftCloseRequested(ctx, reply, channelID, userID, cmd == "закрытьадмин")

	case "удалить":
		if channelID == 0 {
			reply(ctx, textOnlyInTicket)
			return
		}
		r.OnFinalizeRequested(ctx, reply, channelID, userID, true)

	case "выплата":
		if !r.roles.IsStaff(userID) {
			reply(ctx, textForbidden)
			return
		}
		r.rewardHandler.HandlePayoutCommand(ctx, reply, userID, args)

	case "начислить":
		if !r.roles.IsAdmin(userID) {
			reply(ctx, textForbidden)
			return
		}
		r.rewardHandler.HandleCreditCommand(ctx, reply, userID, args)

	case "баланс":
		if !r.roles.IsStaff(userID) {
			reply(ctx, textForbidden)
			return
		}
		r.ledgerHandler.HandleBalance(ctx, reply, userID)

	case "выплаты", "история":
		if !r.roles.IsStaff(userID) {
			reply(ctx, textForbidden)
			return
		}
		target := userID
		// админ может посмотреть историю сотрудника: !история <user_id>
		if len(args) > 0 && r.roles.IsAdmin(userID) {
			if id, err := strconv.ParseInt(args[0], 10, 64); err == nil && id > 0 {
				target = id
			}
		}
		r.ledgerHandler.HandleHistory(ctx, reply, target)

	case "статистика":
		if !r.roles.IsAdmin(userID) {
			reply(ctx, textForbidden)
			return
		}
		r.ledgerHandler.HandleStatistics(ctx, reply)
	}
}

// HandleCallback обрабатывает нажатие inline-кнопки. reply отвечает на
// callback (всплывающее уведомление).
func (r *Router) HandleCallback(ctx context.Context, reply gateway.Responder, userID int64, userName, data string) {
	reply = once(reply)
	defer middleware.RecoverFromPanic(func() { reply(ctx, textInternal) })

	if r.rateLimiter != nil && !r.rateLimiter.Allow(userID) {
		reply(ctx, textRateLimited)
		return
	}

	a, err := actions.Decode(data)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("unknown callback")
		reply(ctx, textStaleButton)
		return
	}

	switch a.Kind {
	case actions.KindOpenTicket:
		r.OnTicketOpenRequested(ctx, reply, userID, userName, a.Category, "")
	case actions.KindClaimToggle:
		r.OnClaimToggle(ctx, reply, a.ChannelID, userID)
	case actions.KindSoftClose:
		r.OnSoftCloseRequested(ctx, reply, a.ChannelID, userID, false)
	case actions.KindFinalize:
		r.OnFinalizeRequested(ctx, reply, a.ChannelID, userID, false)
	case actions.KindApprove, actions.KindDeny:
		r.OnApprovalDecision(ctx, reply, a.Approval, a.Kind == actions.KindApprove, a.RequestID, userID)
	default:
		reply(ctx, textStaleButton)
	}
}

// OnTicketOpenRequested — открыть тикет может любой пользователь.
func (r *Router) OnTicketOpenRequested(ctx context.Context, reply gateway.Responder, requesterID int64, requesterName, category, details string) {
	r.ticketHandler.HandleOpen(ctx, reply, requesterID, requesterName, category, details)
}

// OnClaimToggle — взять/отпустить тикет (сотрудники).
func (r *Router) OnClaimToggle(ctx context.Context, reply gateway.Responder, channelID, staffID int64) {
	if !r.roles.IsStaff(staffID) {
		reply(ctx, textForbidden)
		return
	}
	r.ticketHandler.HandleClaimToggle(ctx, reply, channelID, staffID)
}

// OnSoftCloseRequested — закрыть тикет; закрытие поверх исполнителя только
// для админов.
func (r *Router) OnSoftCloseRequested(ctx context.Context, reply gateway.Responder, channelID, staffID int64, adminOverride bool) {
	if !r.roles.IsStaff(staffID) || (adminOverride && !r.roles.IsAdmin(staffID)) {
		reply(ctx, textForbidden)
		return
	}
	r.ticketHandler.HandleSoftClose(ctx, reply, channelID, staffID, adminOverride)
}

// OnFinalizeRequested — удалить тему с транскриптом. viaAdminForce
// (команда !удалить) пропускает проверку закрытия и доступно только админам.
func (r *Router) OnFinalizeRequested(ctx context.Context, reply gateway.Responder, channelID, staffID int64, viaAdminForce bool) {
	if viaAdminForce {
		if !r.roles.IsAdmin(staffID) {
			reply(ctx, textForbidden)
			return
		}
		r.ticketHandler.HandleForceDelete(ctx, reply, channelID, staffID)
		return
	}
	if !r.roles.IsStaff(staffID) {
		reply(ctx, textForbidden)
		return
	}
	r.ticketHandler.HandleFinalize(ctx, reply, channelID, staffID, false)
}

// OnChatMessage — сообщение в теме тикета (без ответа пользователю).
func (r *Router) OnChatMessage(ctx context.Context, channelID, authorID int64, authorName, text string, isBot bool) {
	r.tickets.OnChatMessage(ctx, channelID, authorID, authorName, text, isBot)
}

// OnPayoutRequested — заявка сотрудника на вывод монет.
func (r *Router) OnPayoutRequested(ctx context.Context, reply gateway.Responder, staffID, amount int64, externalRef string) {
	if !r.roles.IsStaff(staffID) {
		reply(ctx, textForbidden)
		return
	}
	r.rewardHandler.HandlePayoutRequest(ctx, reply, staffID, amount, externalRef)
}

// OnManualCredit — ручное начисление (админы).
func (r *Router) OnManualCredit(ctx context.Context, reply gateway.Responder, adminID, staffID, amount int64) {
	if !r.roles.IsAdmin(adminID) {
		reply(ctx, textForbidden)
		return
	}
	r.rewardHandler.HandleManualCredit(ctx, reply, adminID, staffID, amount)
}

// OnApprovalDecision — кнопки карточки одобрения (админы).
func (r *Router) OnApprovalDecision(ctx context.Context, reply gateway.Responder, kind actions.ApprovalKind, approve bool, requestID uuid.UUID, adminID int64) {
	if !r.roles.IsAdmin(adminID) {
		reply(ctx, textForbidden)
		return
	}
	r.rewardHandler.HandleDecision(ctx, reply, kind, approve, requestID, adminID)
}

// ticketChannel — ID темы, если сообщение пришло из темы группы поддержки.
func (r *Router) ticketChannel(msg *telego.Message) int64 {
	if msg.Chat.ID != r.supportChatID || !msg.IsTopicMessage || msg.MessageThreadID == 0 {
		return 0
	}
	return int64(msg.MessageThreadID)
}

// replyTo отвечает в тему тикета (с записью в транскрипт) или в чат.
func (r *Router) replyTo(chatID, channelID int64) gateway.Responder {
	if channelID != 0 {
		return func(ctx context.Context, text string) {
			r.tickets.Reply(ctx, channelID, text)
		}
	}
	return func(ctx context.Context, text string) {
		if _, err := r.gw.SendToChat(ctx, chatID, text); err != nil {
			log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
		}
	}
}

func (r *Router) helpText(userID int64) string {
	var b strings.Builder
	b.WriteString("🛟 Бот поддержки\n\n")
	fmt.Fprintf(&b, "!тикет <категория> [описание] — открыть тикет\nКатегории: %s\n",
		strings.Join(r.tickets.Catalog().Keys(), ", "))
	if r.roles.IsStaff(userID) {
		b.WriteString("\nСотрудникам:\n")
		b.WriteString("!взять — взять/отпустить тикет (в теме)\n")
		b.WriteString("!закрыть — закрыть тикет (в теме)\n")
		b.WriteString("!баланс, !выплаты — монеты и история\n")
		b.WriteString("!выплата <сумма> <ссылка> — заявка на вывод\n")
	}
	if r.roles.IsAdmin(userID) {
		b.WriteString("\nАдминам:\n")
		b.WriteString("!панель — опубликовать панель тикетов\n")
		b.WriteString("!закрытьадмин, !удалить — закрыть/удалить чужой тикет\n")
		b.WriteString("!начислить <user_id> <сумма>, !статистика\n")
	}
	return b.String()
}

// once пропускает только первый ответ.
func once(reply gateway.Responder) gateway.Responder {
	var o sync.Once
	return func(ctx context.Context, text string) {
		o.Do(func() { reply(ctx, text) })
	}
}
