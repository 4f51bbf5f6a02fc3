// Package rewards — service.go содержит оба потока одобрения.
//
// Заявки никогда не одобряются автоматически. Проверка баланса и
// списание при одобрении выплаты — одна критическая секция леджера.
// Ошибка уведомления после записи в леджер ничего не откатывает.
package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/events"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway"
)

var (
	// ErrRequestNotFound — заявки нет: уже рассмотрена или неверный вид.
	ErrRequestNotFound = fmt.Errorf("%w: заявка уже рассмотрена", common.ErrNotFound)
	// ErrMissingRef — в заявке на выплату нет ссылки на получение.
	ErrMissingRef = errors.New("не указана ссылка для выплаты")
)

// Options — зависимости сервиса.
type Options struct {
	Ledger         *ledger.Ledger
	Gateway        gateway.Gateway
	Catalog        *config.Catalog
	Events         events.Dispatcher
	Clock          clock.Clock
	ApprovalChatID int64
	PayoutMin      int64
	PayoutMax      int64
}

// Service — заявки на выплаты и награды за тикеты.
type Service struct {
	ledger  *ledger.Ledger
	pending *PendingStore
	gw      gateway.Gateway
	catalog *config.Catalog
	events  events.Dispatcher
	clock   clock.Clock

	approvalChatID int64
	payoutMin      int64
	payoutMax      int64

	// recordTx — запись выплаты в журнал; подменяется в тестах.
	recordTx func(staffID, amount int64, ref string, approverID int64) (ledger.Transaction, error)
}

var _ tickets.RewardRequester = (*Service)(nil)

// NewService создаёт сервис.
func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Catalog == nil {
		opts.Catalog = config.DefaultCatalog()
	}
	s := &Service{
		ledger:         opts.Ledger,
		pending:        NewPendingStore(),
		gw:             opts.Gateway,
		catalog:        opts.Catalog,
		events:         opts.Events,
		clock:          opts.Clock,
		approvalChatID: opts.ApprovalChatID,
		payoutMin:      opts.PayoutMin,
		payoutMax:      opts.PayoutMax,
	}
	s.recordTx = s.ledger.RecordTransaction
	return s
}

// Pending — хранилище нерассмотренных заявок.
func (s *Service) Pending() *PendingStore { return s.pending }

// RequestPayout выставляет заявку на выплату. Сумма должна быть в
// [PayoutMin, PayoutMax] и не больше текущего баланса.
func (s *Service) RequestPayout(ctx context.Context, staffID, amount int64, externalRef string) (Request, error) {
	if amount < s.payoutMin || amount > s.payoutMax {
		return Request{}, fmt.Errorf("%w: допустимо от %d до %d", common.ErrInvalidAmount, s.payoutMin, s.payoutMax)
	}
	if externalRef == "" {
		return Request{}, ErrMissingRef
	}
	balance := s.ledger.Balance(staffID)
	if amount > balance {
		return Request{}, fmt.Errorf("%w: на балансе %d", common.ErrInsufficientBalance, balance)
	}

	req := Request{
		ID:          uuid.New(),
		Kind:        actions.PayoutDirect,
		StaffID:     staffID,
		Amount:      amount,
		ExternalRef: externalRef,
		RequestedAt: s.clock.Now(),
	}
	text := fmt.Sprintf("💸 Запрос выплаты\n\nСотрудник: %s (id%d)\nСумма: %s\nБаланс: %s\nСсылка: %s",
		s.displayName(ctx, staffID), staffID,
		common.FormatBalance(amount), common.FormatBalance(balance), externalRef)
	if err := s.submit(ctx, &req, text); err != nil {
		return Request{}, err
	}

	log.WithFields(log.Fields{
		"component":  "rewards",
		"request_id": req.ID,
		"user_id":    staffID,
		"amount":     amount,
	}).Info("Запрошена выплата")
	s.publish(ctx, events.PayoutRequested, 0, staffID, events.LedgerPayload{
		RequestID: req.ID.String(), StaffID: staffID, Amount: amount, Balance: balance, ExternalRef: externalRef,
	})
	return req, nil
}

// RequestTicketReward выставляет награду за мягко закрытый тикет.
// Сумма берётся из каталога; нулевая награда на одобрение не выставляется.
func (s *Service) RequestTicketReward(ctx context.Context, t tickets.Ticket) error {
	amount := s.catalog.Reward(t.Category)
	logger := log.WithFields(log.Fields{
		"component":  "rewards",
		"channel_id": t.ChannelID,
		"user_id":    t.Beneficiary,
		"category":   t.Category,
	})
	if amount <= 0 {
		logger.Info("За категорию награда не положена")
		return nil
	}

	req := Request{
		ID:          uuid.New(),
		Kind:        actions.TicketReward,
		StaffID:     t.Beneficiary,
		Amount:      amount,
		ChannelID:   t.ChannelID,
		Category:    t.Category,
		RequestedAt: s.clock.Now(),
	}
	title := t.Category
	if cat, ok := s.catalog.Lookup(t.Category); ok {
		title = cat.Title
	}
	text := fmt.Sprintf("🎫 Награда за тикет\n\nСотрудник: %s (id%d)\nКатегория: %s\nТикет: %s\nСумма: %s",
		s.displayName(ctx, t.Beneficiary), t.Beneficiary, title, t.Title, common.FormatBalance(amount))
	if t.AdminOverride {
		text += fmt.Sprintf("\n⚠️ Закрыт администратором id%d поверх исполнителя", t.ClosedBy)
	}
	if err := s.submit(ctx, &req, text); err != nil {
		return err
	}
	logger.WithField("request_id", req.ID).Info("Награда за тикет выставлена на одобрение")
	return nil
}

// submit регистрирует заявку и публикует карточку с кнопками.
func (s *Service) submit(ctx context.Context, req *Request, text string) error {
	s.pending.Put(*req)
	ref, err := s.gw.SendToChat(ctx, s.approvalChatID, text, gateway.Row{
		{Text: "✅ Одобрить", Data: actions.Decision(req.Kind, true, req.ID)},
		{Text: "❌ Отклонить", Data: actions.Decision(req.Kind, false, req.ID)},
	})
	if err != nil {
		s.pending.Drop(req.ID)
		return fmt.Errorf("отправка заявки на одобрение: %w", err)
	}
	s.pending.SetMessage(req.ID, ref)
	req.Message = ref
	return nil
}

// Decide рассматривает заявку. Кнопки карточки снимаются сразу, при любом
// исходе; повторное нажатие получит ErrRequestNotFound.
func (s *Service) Decide(ctx context.Context, kind actions.ApprovalKind, approve bool, requestID uuid.UUID, adminID int64) (Decision, error) {
	req, ok := s.pending.Take(requestID, kind)
	if !ok {
		return Decision{}, ErrRequestNotFound
	}
	if err := s.gw.ClearButtons(ctx, req.Message); err != nil {
		log.WithError(err).WithField("request_id", req.ID).Warn("Не удалось снять кнопки с заявки")
	}

	switch {
	case kind == actions.PayoutDirect && approve:
		return s.approvePayout(ctx, req, adminID)
	case kind == actions.TicketReward && approve:
		return s.approveReward(ctx, req, adminID), nil
	default:
		return s.deny(ctx, req, adminID), nil
	}
}

// approvePayout повторно проверяет баланс и списывает сумму. Если после
// списания запись выплаты не удалась (ошибка или паника), сумма
// возвращается на баланс.
func (s *Service) approvePayout(ctx context.Context, req Request, adminID int64) (dec Decision, err error) {
	logger := log.WithFields(log.Fields{
		"component":  "rewards",
		"request_id": req.ID,
		"user_id":    req.StaffID,
		"amount":     req.Amount,
		"admin_id":   adminID,
	})

	balance, err := s.ledger.DebitIfSufficient(req.StaffID, req.Amount)
	if err != nil {
		if errors.Is(err, common.ErrInsufficientBalance) {
			logger.WithField("balance", balance).Warn("Баланс изменился, выплата отменена")
			s.notify(ctx, req.StaffID, fmt.Sprintf("❌ Выплата %s не проведена: баланс изменился (сейчас %s). Отправьте заявку заново.",
				common.FormatBalance(req.Amount), common.FormatBalance(balance)))
			return Decision{Request: req, Balance: balance}, fmt.Errorf("%w: на балансе %d", common.ErrBalanceChanged, balance)
		}
		return Decision{}, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		restored := s.ledger.AdjustBalance(req.StaffID, req.Amount)
		s.ledger.RecordReward(req.StaffID, req.Amount, ledger.RewardSourceRefund, 0, adminID)
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при проведении выплаты: %v", r)
		}
		logger.WithError(err).WithField("balance", restored).Error("Выплата не проведена, сумма возвращена на баланс")
		dec = Decision{Request: req, Balance: restored}
	}()

	tx, err := s.recordTx(req.StaffID, req.Amount, req.ExternalRef, adminID)
	if err != nil {
		return Decision{}, fmt.Errorf("запись выплаты: %w", err)
	}
	committed = true

	logger.WithField("tx_id", tx.ID).Info("Выплата одобрена")
	s.notify(ctx, req.StaffID, fmt.Sprintf("✅ Выплата %s одобрена (№%d).\nОстаток: %s",
		common.FormatBalance(req.Amount), tx.ID, common.FormatBalance(balance)))
	s.publish(ctx, events.PayoutApproved, 0, adminID, events.LedgerPayload{
		RequestID: req.ID.String(), StaffID: req.StaffID, Amount: req.Amount, Balance: balance, ExternalRef: req.ExternalRef,
	})
	return Decision{Request: req, Approved: true, Balance: balance, Transaction: &tx}, nil
}

func (s *Service) approveReward(ctx context.Context, req Request, adminID int64) Decision {
	balance := s.ledger.AdjustBalance(req.StaffID, req.Amount)
	s.ledger.RecordReward(req.StaffID, req.Amount, ledger.RewardSourceTicket, req.ChannelID, adminID)

	log.WithFields(log.Fields{
		"component":  "rewards",
		"request_id": req.ID,
		"user_id":    req.StaffID,
		"amount":     req.Amount,
		"admin_id":   adminID,
	}).Info("Награда за тикет начислена")
	s.notify(ctx, req.StaffID, fmt.Sprintf("🎉 Награда за тикет одобрена: %s.\nБаланс: %s",
		common.FormatCoinsAmount(req.Amount), common.FormatBalance(balance)))
	s.publish(ctx, events.RewardCredited, req.ChannelID, adminID, events.LedgerPayload{
		RequestID: req.ID.String(), StaffID: req.StaffID, Amount: req.Amount, Balance: balance, Source: string(ledger.RewardSourceTicket),
	})
	return Decision{Request: req, Approved: true, Balance: balance}
}

func (s *Service) deny(ctx context.Context, req Request, adminID int64) Decision {
	balance := s.ledger.Balance(req.StaffID)
	typ := events.RewardDenied
	text := fmt.Sprintf("❌ Награда за тикет (%s) отклонена.", common.FormatBalance(req.Amount))
	if req.Kind == actions.PayoutDirect {
		typ = events.PayoutDenied
		text = fmt.Sprintf("❌ Заявка на выплату %s отклонена.", common.FormatBalance(req.Amount))
	}

	log.WithFields(log.Fields{
		"component":  "rewards",
		"request_id": req.ID,
		"kind":       req.Kind,
		"user_id":    req.StaffID,
		"admin_id":   adminID,
	}).Info("Заявка отклонена")
	s.notify(ctx, req.StaffID, text)
	s.publish(ctx, typ, req.ChannelID, adminID, events.LedgerPayload{
		RequestID: req.ID.String(), StaffID: req.StaffID, Amount: req.Amount, Balance: balance,
	})
	return Decision{Request: req, Balance: balance}
}

// ManualCredit — ручное начисление админом.
func (s *Service) ManualCredit(ctx context.Context, adminID, staffID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	balance := s.ledger.AdjustBalance(staffID, amount)
	s.ledger.RecordReward(staffID, amount, ledger.RewardSourceManual, 0, adminID)

	log.WithFields(log.Fields{
		"component": "rewards",
		"user_id":   staffID,
		"amount":    amount,
		"admin_id":  adminID,
	}).Info("Ручное начисление")
	s.notify(ctx, staffID, fmt.Sprintf("💰 Вам начислено %s.\nБаланс: %s",
		common.FormatCoinsAmount(amount), common.FormatBalance(balance)))
	s.publish(ctx, events.RewardCredited, 0, adminID, events.LedgerPayload{
		StaffID: staffID, Amount: amount, Balance: balance, Source: string(ledger.RewardSourceManual),
	})
	return balance, nil
}

// notify пишет сотруднику в ЛС; ошибка доставки только логируется.
func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if err := s.gw.DirectMessage(ctx, userID, text); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось отправить уведомление")
	}
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	name, err := s.gw.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return fmt.Sprintf("id%d", userID)
	}
	return name
}

func (s *Service) publish(ctx context.Context, typ events.Type, channelID, actorID int64, payload events.LedgerPayload) {
	s.events.Publish(ctx, events.New(typ, channelID, actorID, s.clock.Now(), payload))
}
