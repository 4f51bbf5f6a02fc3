// Package jobs управляет фоновыми задачами (cron): ежедневный отчёт по
// выплатам в чат одобрений и напоминания о тикетах, которые никто не взял.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway"
)

// Options — расписание и зависимости.
type Options struct {
	Tickets        *tickets.Service
	Ledger         *ledger.Service
	Gateway        gateway.Gateway
	ApprovalChatID int64
	StaleAfter     time.Duration
	StatsSpec      string // по умолчанию «0 9 * * *»
	StaleSpec      string // по умолчанию «0 * * * *»
	Location       *time.Location
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron *cron.Cron
	opts Options

	mu       sync.Mutex
	reminded map[int64]time.Time // тема -> когда напоминали
}

// NewScheduler создаёт планировщик в часовом поясе opts.Location.
func NewScheduler(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.StatsSpec == "" {
		opts.StatsSpec = "0 9 * * *"
	}
	if opts.StaleSpec == "" {
		opts.StaleSpec = "0 * * * *"
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 12 * time.Hour
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(opts.Location)),
		opts:     opts,
		reminded: make(map[int64]time.Time),
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.opts.StatsSpec, func() {
		log.Info("[CRON] Ежедневный отчёт по выплатам")
		if err := s.ReportStats(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка отчёта")
		}
	}); err != nil {
		return fmt.Errorf("расписание отчёта %q: %w", s.opts.StatsSpec, err)
	}

	if _, err := s.cron.AddFunc(s.opts.StaleSpec, func() {
		log.Debug("[CRON] Проверка зависших тикетов")
		s.RemindStale(ctx)
	}); err != nil {
		return fmt.Errorf("расписание напоминаний %q: %w", s.opts.StaleSpec, err)
	}

	s.cron.Start()
	log.WithField("tz", s.opts.Location.String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// ReportStats отправляет статистику выплат в чат одобрений.
func (s *Scheduler) ReportStats(ctx context.Context) error {
	text := s.opts.Ledger.StatisticsText(ctx)
	if _, err := s.opts.Gateway.SendToChat(ctx, s.opts.ApprovalChatID, text); err != nil {
		return fmt.Errorf("отправка отчёта: %w", err)
	}
	return nil
}

// RemindStale пишет в темы, которые ждут сотрудника дольше StaleAfter.
// В одну тему напоминание уходит не чаще раза в StaleAfter.
// Возвращает число напоминаний.
func (s *Scheduler) RemindStale(ctx context.Context) int {
	stale := s.opts.Tickets.StaleTickets(s.opts.StaleAfter)

	now := s.opts.Tickets.Clock().Now()

	s.mu.Lock()
	var due []tickets.Ticket
	alive := make(map[int64]bool, len(stale))
	for _, t := range stale {
		alive[t.ChannelID] = true
		if last, ok := s.reminded[t.ChannelID]; ok && now.Sub(last) < s.opts.StaleAfter {
			continue
		}
		s.reminded[t.ChannelID] = now
		due = append(due, t)
	}
	// забываем темы, которые взяли или удалили
	for ch := range s.reminded {
		if !alive[ch] {
			delete(s.reminded, ch)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}

	titles := make([]string, 0, len(due))
	for _, t := range due {
		waiting := common.FormatDuration(now.Sub(t.StartTime))
		s.opts.Tickets.Reply(ctx, t.ChannelID, fmt.Sprintf("⏳ Тикет ждёт сотрудника уже %s. Нажмите «✋ Взять».", waiting))
		titles = append(titles, "• "+t.Title)
	}
	log.WithField("count", len(due)).Info("[CRON] Напоминания о зависших тикетах отправлены")

	summary := fmt.Sprintf("⏳ Без исполнителя дольше %s: %d\n%s",
		common.FormatDuration(s.opts.StaleAfter), len(due), strings.Join(titles, "\n"))
	if _, err := s.opts.Gateway.SendToChat(ctx, s.opts.ApprovalChatID, summary); err != nil {
		log.WithError(err).Warn("[CRON] Не удалось отправить сводку зависших тикетов")
	}
	return len(due)
}
