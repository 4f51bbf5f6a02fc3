// Package tickets — service.go управляет переходами тикета и побочными
// эффектами в мессенджере. Состояние сначала меняется в реестре, затем
// идут вызовы мессенджера; отказ в правах откатывает изменение.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/events"
	"serotonyl.ru/support-bot/internal/gateway"
)

// DefaultFinalizeGrace — пауза между удалением тикета и удалением темы.
const DefaultFinalizeGrace = 5 * time.Second

// ErrHasRecord — у темы есть тикет, удалять её нужно через Finalize.
var ErrHasRecord = errors.New("у темы есть тикет, используйте закрытие")

// RewardRequester выставляет награду за закрытый тикет на одобрение.
type RewardRequester interface {
	RequestTicketReward(ctx context.Context, t Ticket) error
}

// Options — зависимости и настройки сервиса.
type Options struct {
	Gateway          gateway.Gateway
	Catalog          *config.Catalog
	Rewards          RewardRequester
	Events           events.Dispatcher
	Clock            clock.Clock
	TranscriptChatID int64
	UnclaimTimeout   time.Duration
	FinalizeGrace    time.Duration
	Location         *time.Location
}

// Service — движок жизненного цикла тикетов.
type Service struct {
	registry *Registry
	claims   *ClaimTracker
	gw       gateway.Gateway
	catalog  *config.Catalog
	rewards  RewardRequester
	events   events.Dispatcher
	clock    clock.Clock

	transcriptChatID int64
	grace            time.Duration
	loc              *time.Location
}

// NewService собирает движок вместе с реестром и трекером.
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
	if opts.FinalizeGrace <= 0 {
		opts.FinalizeGrace = DefaultFinalizeGrace
	}

	s := &Service{
		registry:         NewRegistry(opts.Clock),
		gw:               opts.Gateway,
		catalog:          opts.Catalog,
		rewards:          opts.Rewards,
		events:           opts.Events,
		clock:            opts.Clock,
		transcriptChatID: opts.TranscriptChatID,
		grace:            opts.FinalizeGrace,
		loc:              opts.Location,
	}
	s.claims = NewClaimTracker(opts.Clock, opts.UnclaimTimeout, s.onClaimExpired)
	return s
}

// Registry — реестр тикетов (для чтения из HTTP и задач).
func (s *Service) Registry() *Registry { return s.registry }

// Claims — трекер взятых тикетов.
func (s *Service) Claims() *ClaimTracker { return s.claims }

// Catalog — справочник категорий.
func (s *Service) Catalog() *config.Catalog { return s.catalog }

// Clock — часы сервиса (общие с таймерами).
func (s *Service) Clock() clock.Clock { return s.clock }

// OpenTicket создаёт тему в группе категории и регистрирует тикет.
func (s *Service) OpenTicket(ctx context.Context, requesterID int64, requesterName, category, details string) (Ticket, error) {
	cat, ok := s.catalog.Lookup(category)
	if !ok {
		return Ticket{}, fmt.Errorf("%w: %q", common.ErrUnknownCategory, category)
	}
	if err := s.registry.Reserve(requesterID); err != nil {
		return Ticket{}, err
	}

	spec := gateway.ChannelSpec{
		Title:     fmt.Sprintf("%s — %s", cat.Title, requesterName),
		Group:     cat.Group,
		IconColor: cat.IconColor,
	}
	channelID, err := s.gw.CreateChannel(ctx, spec)
	if err != nil {
		s.registry.Release(requesterID)
		return Ticket{}, fmt.Errorf("создание темы: %w", err)
	}

	t, err := s.registry.Open(channelID, spec.Name(), requesterID, requesterName, cat.Key, details)
	if err != nil {
		s.registry.Release(requesterID)
		if delErr := s.gw.DeleteChannel(ctx, channelID); delErr != nil {
			log.WithError(delErr).WithField("channel_id", channelID).Warn("Не удалось удалить лишнюю тему")
		}
		return Ticket{}, err
	}

	text := fmt.Sprintf("🎫 Новый тикет: %s\nАвтор: %s", cat.Title, requesterName)
	if details != "" {
		text += "\n\n" + details
	}
	text += "\n\nСотрудник поддержки скоро ответит. Нажмите «Взять», чтобы стать исполнителем."
	s.post(ctx, channelID, text, gateway.Row{
		{Text: "✋ Взять", Data: actions.ClaimToggle(channelID)},
		{Text: "🔒 Закрыть", Data: actions.SoftClose(channelID)},
	})

	log.WithFields(log.Fields{
		"component":  "tickets",
		"channel_id": channelID,
		"user_id":    requesterID,
		"category":   cat.Key,
	}).Info("Тикет открыт")
	s.publish(ctx, events.TicketOpened, t, requesterID, events.TicketPayload{})
	return t, nil
}

// ToggleClaim берёт свободный тикет или отпускает свой.
// Возвращает true, если тикет теперь взят staffID.
func (s *Service) ToggleClaim(ctx context.Context, channelID, staffID int64) (bool, error) {
	current, ok := s.registry.GetActive(channelID)
	if !ok {
		return false, common.ErrNotFound
	}
	if current.IsClaimed && current.ClaimerID == staffID && !current.IsSoftClosed {
		return false, s.unclaim(ctx, current, staffID)
	}
	return true, s.claim(ctx, channelID, staffID)
}

func (s *Service) claim(ctx context.Context, channelID, staffID int64) error {
	t, err := s.registry.Claim(channelID, staffID)
	if err != nil {
		return err
	}
	s.track(channelID, staffID)

	name := s.displayName(ctx, staffID)
	if err := s.gw.SetChannelTitle(ctx, channelID, claimedTitle(t.Title, name)); err != nil {
		if errors.Is(err, common.ErrGatewayPermissionDenied) {
			s.claims.ReleaseIf(channelID, staffID)
			if rbErr := s.registry.UnclaimIf(channelID, staffID); rbErr != nil {
				log.WithError(rbErr).WithField("channel_id", channelID).Warn("Откат взятия тикета не выполнен")
			}
			return err
		}
		log.WithError(err).WithField("channel_id", channelID).Warn("Не удалось переименовать тему")
	}

	s.post(ctx, channelID, fmt.Sprintf("✋ Тикет взял %s. Остальные сотрудники, пожалуйста, не вмешивайтесь.", name))
	log.WithFields(log.Fields{
		"component":  "tickets",
		"channel_id": channelID,
		"user_id":    staffID,
	}).Info("Тикет взят")
	s.publish(ctx, events.TicketClaimed, t, staffID, events.TicketPayload{ClaimerID: staffID})
	return nil
}

func (s *Service) unclaim(ctx context.Context, t Ticket, staffID int64) error {
	if err := s.registry.UnclaimIf(t.ChannelID, staffID); err != nil {
		return err
	}
	s.claims.ReleaseIf(t.ChannelID, staffID)

	if err := s.gw.SetChannelTitle(ctx, t.ChannelID, t.Title); err != nil {
		if errors.Is(err, common.ErrGatewayPermissionDenied) {
			if _, rbErr := s.registry.Claim(t.ChannelID, staffID); rbErr == nil {
				s.track(t.ChannelID, staffID)
			}
			return err
		}
		log.WithError(err).WithField("channel_id", t.ChannelID).Warn("Не удалось переименовать тему")
	}

	s.post(ctx, t.ChannelID, fmt.Sprintf("🔓 %s отпустил тикет, он снова свободен.", s.displayName(ctx, staffID)))
	s.publish(ctx, events.TicketUnclaimed, t, staffID, events.TicketPayload{ClaimerID: staffID, Reason: "manual"})
	return nil
}

// track ставит тему на учёт трекера, если в реестре её держит staffID.
// Блокировка реестра берётся внутри блокировки трекера, не наоборот.
func (s *Service) track(channelID, staffID int64) {
	s.claims.TrackIf(channelID, staffID, func() bool {
		return s.registry.HeldBy(channelID, staffID)
	})
}

// onClaimExpired — исполнитель не ответил автору вовремя.
func (s *Service) onClaimExpired(channelID, claimerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"component":  "tickets",
		"channel_id": channelID,
		"user_id":    claimerID,
	})
	if err := s.registry.UnclaimIf(channelID, claimerID); err != nil {
		logger.WithError(err).Debug("Таймер устарел, тикет не трогаем")
		return
	}
	t, ok := s.registry.GetActive(channelID)
	if !ok {
		return
	}

	if err := s.gw.SetChannelTitle(ctx, channelID, t.Title); err != nil {
		logger.WithError(err).Warn("Не удалось вернуть название темы")
	}
	name := s.displayName(ctx, claimerID)
	s.post(ctx, channelID, fmt.Sprintf("⏰ %s не ответил за %s, тикет снова свободен.",
		name, common.FormatDuration(s.claims.Timeout())))
	if err := s.gw.DirectMessage(ctx, claimerID, fmt.Sprintf("⏰ Тикет «%s» снят с вас: автор ждал ответа %s.",
		t.Title, common.FormatDuration(s.claims.Timeout()))); err != nil {
		logger.WithError(err).Debug("Не удалось написать исполнителю в ЛС")
	}

	logger.Info("Тикет освобождён по таймауту")
	s.publish(ctx, events.TicketUnclaimed, t, claimerID, events.TicketPayload{ClaimerID: claimerID, Reason: "timeout"})
}

// SoftClose закрывает тикет для переписки и выставляет награду на одобрение.
func (s *Service) SoftClose(ctx context.Context, channelID, staffID int64, adminOverride bool) (Ticket, error) {
	t, err := s.registry.SoftClose(channelID, staffID, adminOverride)
	if err != nil {
		return Ticket{}, err
	}
	s.claims.Release(channelID)

	logger := log.WithFields(log.Fields{
		"component":   "tickets",
		"channel_id":  channelID,
		"user_id":     staffID,
		"beneficiary": t.Beneficiary,
	})

	if err := s.gw.LockChannel(ctx, channelID); err != nil {
		if errors.Is(err, common.ErrGatewayPermissionDenied) {
			s.registry.ReopenSoftClosed(channelID)
			if t.IsClaimed {
				s.track(channelID, t.ClaimerID)
			}
			return Ticket{}, err
		}
		logger.WithError(err).Warn("Не удалось закрыть тему")
	}

	if t.AdminOverride {
		logger.WithField("claimer_id", t.ClaimerID).Warn("Тикет закрыт администратором поверх исполнителя")
	} else {
		logger.Info("Тикет закрыт")
	}

	s.post(ctx, channelID, fmt.Sprintf("🔒 Тикет закрыл %s. Награда за тикет отправлена на одобрение.\nНажмите «Удалить», чтобы сохранить транскрипт и удалить тему.",
		s.displayName(ctx, staffID)), gateway.Row{
		{Text: "🗑 Удалить", Data: actions.Finalize(channelID)},
	})

	if s.rewards != nil {
		if err := s.rewards.RequestTicketReward(ctx, t); err != nil {
			logger.WithError(err).Error("Не удалось выставить награду за тикет")
		}
	}
	s.publish(ctx, events.TicketSoftClosed, t, staffID, events.TicketPayload{
		ClaimerID:     t.ClaimerID,
		Beneficiary:   t.Beneficiary,
		AdminOverride: t.AdminOverride,
	})
	return t, nil
}

// Finalize сохраняет транскрипт и удаляет тему после паузы.
// force — удаление админом без мягкого закрытия.
func (s *Service) Finalize(ctx context.Context, channelID, staffID int64, force bool) (Ticket, error) {
	snapshot, ok := s.registry.GetActive(channelID)
	if !ok {
		return Ticket{}, common.ErrNotFound
	}
	if !force && !snapshot.IsSoftClosed {
		return Ticket{}, common.ErrNotSoftClosed
	}

	doc, err := RenderTranscript(snapshot, s.clock.Now(), s.loc)
	if err != nil {
		return Ticket{}, err
	}
	ref := TranscriptRef(doc)

	t, err := s.registry.Finalize(channelID, force, ref)
	if err != nil {
		return Ticket{}, err
	}
	s.claims.Release(channelID)

	logger := log.WithFields(log.Fields{
		"component":  "tickets",
		"channel_id": channelID,
		"user_id":    staffID,
		"forced":     force,
		"transcript": ref,
	})

	if _, err := s.gw.SendToChannel(ctx, channelID, fmt.Sprintf("🗑 Тема будет удалена через %s.", formatGrace(s.grace))); err != nil {
		logger.WithError(err).Debug("Не удалось предупредить об удалении")
	}

	caption := fmt.Sprintf("📄 Тикет #%d · %s\nАвтор: %s (id%d)\nТранскрипт: %s", channelID, t.Category, t.CreatorName, t.CreatorID, ref)
	if err := s.gw.SendDocument(ctx, s.transcriptChatID, fmt.Sprintf("ticket-%d.html", channelID), doc, caption); err != nil {
		logger.WithError(err).Error("Не удалось выгрузить транскрипт")
	}

	if err := s.gw.DirectMessage(ctx, t.CreatorID, fmt.Sprintf("✅ Ваш тикет «%s» закрыт. Спасибо за обращение!", t.Title)); err != nil {
		logger.WithError(err).Debug("Не удалось написать автору в ЛС")
	}

	s.clock.AfterFunc(s.grace, func() { s.purge(channelID) })

	logger.Info("Тикет удалён")
	s.publish(ctx, events.TicketFinalized, t, staffID, events.TicketPayload{
		ClaimerID:     t.ClaimerID,
		Beneficiary:   t.Beneficiary,
		AdminOverride: t.AdminOverride,
		TranscriptRef: ref,
		Forced:        force,
	})
	return t, nil
}

// purge удаляет тему и убирает тикет из реестра.
func (s *Service) purge(channelID int64) {
	if !s.registry.Purge(channelID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.gw.DeleteChannel(ctx, channelID); err != nil {
		log.WithError(err).WithField("channel_id", channelID).Error("Не удалось удалить тему")
	}
}

// ForceDeleteWithoutLog удаляет тему, у которой нет записи тикета
// (например, осталась после перезапуска бота). Транскрипт не создаётся.
func (s *Service) ForceDeleteWithoutLog(ctx context.Context, channelID, adminID int64) error {
	if _, ok := s.registry.GetActive(channelID); ok {
		return ErrHasRecord
	}
	if err := s.gw.DeleteChannel(ctx, channelID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"component":  "tickets",
		"channel_id": channelID,
		"user_id":    adminID,
	}).Warn("Тема удалена без транскрипта")
	return nil
}

// OnChatMessage записывает сообщение в транскрипт и двигает таймер
// бездействия.
func (s *Service) OnChatMessage(ctx context.Context, channelID, authorID int64, authorName, text string, isBot bool) {
	t, ok := s.registry.GetActive(channelID)
	if !ok {
		return
	}
	s.registry.AppendMessage(channelID, TranscriptEntry{
		AuthorID:   authorID,
		AuthorName: authorName,
		IsBot:      isBot,
		Content:    text,
	})
	if isBot || t.IsSoftClosed || !t.IsClaimed {
		return
	}

	switch authorID {
	case t.CreatorID:
		if s.claims.CreatorMessage(channelID) {
			log.WithFields(log.Fields{
				"channel_id": channelID,
				"claimer_id": t.ClaimerID,
			}).Debug("Таймер ответа взведён")
		}
	case t.ClaimerID:
		s.claims.ClaimerMessage(channelID, authorID)
	}
}

// StaleTickets — свободные тикеты, ждущие дольше olderThan.
func (s *Service) StaleTickets(olderThan time.Duration) []Ticket {
	now := s.clock.Now()
	var out []Ticket
	for _, t := range s.registry.Active() {
		if t.IsClaimed || t.IsSoftClosed {
			continue
		}
		if now.Sub(t.StartTime) >= olderThan {
			out = append(out, t)
		}
	}
	return out
}

// Reply — ответ бота на команду внутри темы тикета.
func (s *Service) Reply(ctx context.Context, channelID int64, text string) {
	s.post(ctx, channelID, text)
}

// post отправляет сообщение бота в тему и пишет его в транскрипт.
func (s *Service) post(ctx context.Context, channelID int64, text string, rows ...gateway.Row) {
	if _, err := s.gw.SendToChannel(ctx, channelID, text, rows...); err != nil {
		log.WithError(err).WithField("channel_id", channelID).Warn("Не удалось отправить сообщение в тему")
		return
	}
	s.registry.AppendMessage(channelID, TranscriptEntry{AuthorName: "Бот поддержки", IsBot: true, Content: text})
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	name, err := s.gw.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return fmt.Sprintf("id%d", userID)
	}
	return name
}

func (s *Service) publish(ctx context.Context, typ events.Type, t Ticket, actorID int64, payload events.TicketPayload) {
	payload.CreatorID = t.CreatorID
	payload.Category = t.Category
	s.events.Publish(ctx, events.New(typ, t.ChannelID, actorID, s.clock.Now(), payload))
}

// claimedTitle — название темы со значком исполнителя.
func claimedTitle(base, claimer string) string {
	return gateway.ChannelSpec{Title: "✋ " + claimer + " · " + base}.Name()
}

func formatGrace(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d сек.", int(d/time.Second))
	}
	return common.FormatDuration(d)
}
