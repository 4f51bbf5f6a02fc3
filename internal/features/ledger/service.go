// Package ledger — service.go форматирует баланс, историю выплат и статистику.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/common"
)

// NameResolver возвращает отображаемое имя сотрудника.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Service — обёртка над Ledger для команд чата и отчётов.
type Service struct {
	ledger *Ledger
	names  NameResolver
	loc    *time.Location
}

// NewService создаёт сервис леджера.
func NewService(ledger *Ledger, names NameResolver, loc *time.Location) *Service {
	return &Service{ledger: ledger, names: names, loc: loc}
}

// Ledger отдаёт хранилище (нужно сервису выплат).
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// BalanceText — «💰 Баланс: 150 монет».
func (s *Service) BalanceText(staffID int64) string {
	return fmt.Sprintf("💰 Баланс: %s", common.FormatBalance(s.ledger.Balance(staffID)))
}

// HistoryText — последние выплаты и начисления сотрудника.
func (s *Service) HistoryText(staffID int64) string {
	txs := s.ledger.Transactions(staffID, 10)
	rewards := s.ledger.Rewards(staffID, 10)
	if len(txs) == 0 && len(rewards) == 0 {
		return "📋 У вас пока нет начислений и выплат"
	}

	var sb strings.Builder
	if len(rewards) > 0 {
		sb.WriteString(fmt.Sprintf("📥 Последние начисления (%d):\n", len(rewards)))
		for i, r := range rewards {
			sb.WriteString(fmt.Sprintf("%d. %s | %s | %s\n",
				i+1,
				common.FormatDateTime(r.Timestamp, s.loc),
				common.FormatCoinsAmount(r.Amount),
				rewardSourceTitle(r.Source),
			))
		}
	}
	if len(txs) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("📤 Последние выплаты (%d):\n", len(txs)))
		for _, tx := range txs {
			sb.WriteString(fmt.Sprintf("#%d. %s | %s | %s\n",
				tx.ID,
				common.FormatDateTime(tx.Timestamp, s.loc),
				common.FormatCoinsAmount(-tx.AmountPaid),
				tx.ExternalRef,
			))
		}
	}
	return sb.String()
}

// StatisticsText — сводка для админов (команда !статистика и ежедневный отчёт).
func (s *Service) StatisticsText(ctx context.Context) string {
	st := s.ledger.Statistics(5, 5)

	var sb strings.Builder
	sb.WriteString("📊 Статистика выплат\n\n")
	sb.WriteString(fmt.Sprintf("Выплат: %d на %s\n", st.TotalTransactions, common.FormatBalance(st.TotalPaid)))
	sb.WriteString(fmt.Sprintf("Счетов с балансом: %d\n", st.ActiveAccountCount))
	sb.WriteString(fmt.Sprintf("Не выплачено: %s\n", common.FormatBalance(st.TotalOutstandingBalance)))

	if len(st.TopBalances) > 0 {
		sb.WriteString("\n🏆 Топ балансов:\n")
		for i, e := range st.TopBalances {
			sb.WriteString(fmt.Sprintf("%d. %s — %s\n", i+1, s.displayName(ctx, e.StaffID), common.FormatBalance(e.Balance)))
		}
	}
	if len(st.RecentTransactions) > 0 {
		sb.WriteString("\n🧾 Последние выплаты:\n")
		for _, tx := range st.RecentTransactions {
			sb.WriteString(fmt.Sprintf("#%d %s — %s (%s)\n",
				tx.ID, s.displayName(ctx, tx.StaffID), common.FormatBalance(tx.AmountPaid),
				common.FormatDateTime(tx.Timestamp, s.loc)))
		}
	}
	return sb.String()
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	if s.names == nil {
		return fmt.Sprintf("id%d", userID)
	}
	name, err := s.names.DisplayName(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось получить имя")
		return fmt.Sprintf("id%d", userID)
	}
	return name
}

func rewardSourceTitle(src RewardSource) string {
	switch src {
	case RewardSourceTicket:
		return "тикет"
	case RewardSourceManual:
		return "ручное начисление"
	case RewardSourceRefund:
		return "возврат"
	default:
		return string(src)
	}
}
