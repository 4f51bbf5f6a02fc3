// Package ledger хранит балансы сотрудников поддержки и журнал выплат.
// models.go описывает счета, транзакции выплат, записи наград и статистику.
package ledger

import "time"

// Account — счёт сотрудника. Создаётся лениво при первом изменении,
// никогда не удаляется.
type Account struct {
	StaffID int64
	Balance int64 // накопленные, ещё не выплаченные монеты
}

// Transaction — одобренная выплата. Журнал только дополняется.
type Transaction struct {
	ID          int64     // последовательный, с 1
	StaffID     int64     // кому выплачено
	AmountPaid  int64     // всегда > 0
	Timestamp   time.Time // момент одобрения
	ExternalRef string    // ссылка на получение выплаты
	ApproverID  int64     // кто одобрил
}

// RewardSource — откуда пришло начисление.
type RewardSource string

const (
	RewardSourceTicket RewardSource = "ticket" // награда за закрытый тикет
	RewardSourceManual RewardSource = "manual" // ручное начисление админом
	RewardSourceRefund RewardSource = "refund" // компенсация сорвавшейся выплаты
)

// Reward — запись о начислении.
type Reward struct {
	ID         int64
	StaffID    int64
	Amount     int64
	Source     RewardSource
	ChannelID  int64 // тема тикета (для RewardSourceTicket)
	ApproverID int64
	Timestamp  time.Time
}

// BalanceEntry — строка рейтинга балансов.
type BalanceEntry struct {
	StaffID int64
	Balance int64
}

// Statistics — агрегаты по леджеру.
type Statistics struct {
	TotalTransactions       int
	TotalPaid               int64
	ActiveAccountCount      int // счета с положительным балансом
	TotalOutstandingBalance int64
	TopBalances             []BalanceEntry // по убыванию, при равенстве — кто раньше завёл счёт
	RecentTransactions      []Transaction  // сначала самые свежие
}
