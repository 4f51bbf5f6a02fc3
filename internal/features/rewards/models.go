// Package rewards — двухэтапное одобрение наград за тикеты и выплат:
// заявка → карточка админам → решение (ровно одно) → уведомление.
package rewards

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/gateway"
)

// Request — заявка, ожидающая решения админа.
type Request struct {
	ID          uuid.UUID
	Kind        actions.ApprovalKind
	StaffID     int64
	Amount      int64
	ExternalRef string // для выплат: ссылка на получение
	ChannelID   int64  // для наград: тема тикета
	Category    string
	RequestedAt time.Time
	Message     gateway.MessageRef // карточка с кнопками
}

// Decision — итог рассмотрения заявки.
type Decision struct {
	Request     Request
	Approved    bool
	Balance     int64               // баланс сотрудника после решения
	Transaction *ledger.Transaction // для одобренной выплаты
}
