// ledger.go хранит счета и журналы в памяти. Все проверки «проверить-и-записать»
// выполняются под одним мьютексом: награда за тикет и выплата одному
// сотруднику не затирают друг друга.
package ledger

import (
	"fmt"
	"sync"

	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
)

// Ledger — владелец счетов, выплат и начислений.
type Ledger struct {
	mu    sync.RWMutex
	clock clock.Clock

	accounts     map[int64]*Account
	order        []int64 // порядок заведения счетов (для равных балансов)
	transactions []Transaction
	rewards      []Reward
}

// New создаёт пустой леджер.
func New(clk clock.Clock) *Ledger {
	return &Ledger{
		clock:    clk,
		accounts: make(map[int64]*Account),
	}
}

// account возвращает счёт, заводя его при необходимости. Вызывать под mu.
func (l *Ledger) account(staffID int64) *Account {
	acc, ok := l.accounts[staffID]
	if !ok {
		acc = &Account{StaffID: staffID}
		l.accounts[staffID] = acc
		l.order = append(l.order, staffID)
	}
	return acc
}

// AdjustBalance прибавляет delta (может быть отрицательной) и возвращает
// новый баланс. Нижняя граница здесь не проверяется — достаточность
// баланса проверяет DebitIfSufficient.
func (l *Ledger) AdjustBalance(staffID, delta int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(staffID)
	acc.Balance += delta
	return acc.Balance
}

// DebitIfSufficient списывает amount, только если баланса хватает.
// Проверка и списание — одна критическая секция.
func (l *Ledger) DebitIfSufficient(staffID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(staffID)
	if acc.Balance < amount {
		return acc.Balance, fmt.Errorf("%w: нужно %d, есть %d", common.ErrInsufficientBalance, amount, acc.Balance)
	}
	acc.Balance -= amount
	return acc.Balance, nil
}

// Balance — текущий баланс (0, если счёта нет).
func (l *Ledger) Balance(staffID int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[staffID]; ok {
		return acc.Balance
	}
	return 0
}

// RecordTransaction добавляет выплату в журнал. Прошлые записи не меняются.
func (l *Ledger) RecordTransaction(staffID, amountPaid int64, externalRef string, approverID int64) (Transaction, error) {
	if amountPaid <= 0 {
		return Transaction{}, common.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := Transaction{
		ID:          int64(len(l.transactions)) + 1,
		StaffID:     staffID,
		AmountPaid:  amountPaid,
		Timestamp:   l.clock.Now(),
		ExternalRef: externalRef,
		ApproverID:  approverID,
	}
	l.transactions = append(l.transactions, tx)
	return tx, nil
}

// RecordReward добавляет запись о начислении.
func (l *Ledger) RecordReward(staffID, amount int64, source RewardSource, channelID, approverID int64) Reward {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := Reward{
		ID:         int64(len(l.rewards)) + 1,
		StaffID:    staffID,
		Amount:     amount,
		Source:     source,
		ChannelID:  channelID,
		ApproverID: approverID,
		Timestamp:  l.clock.Now(),
	}
	l.rewards = append(l.rewards, r)
	return r
}

// Transactions — последние limit выплат сотрудника, свежие первыми.
func (l *Ledger) Transactions(staffID int64, limit int) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Transaction
	for i := len(l.transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.transactions[i].StaffID == staffID {
			out = append(out, l.transactions[i])
		}
	}
	return out
}

// Rewards — последние limit начислений сотрудника, свежие первыми.
func (l *Ledger) Rewards(staffID int64, limit int) []Reward {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Reward
	for i := len(l.rewards) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.rewards[i].StaffID == staffID {
			out = append(out, l.rewards[i])
		}
	}
	return out
}

// Statistics считает агрегаты за один проход по журналу и счетам.
// top — размер рейтинга, recent — сколько последних выплат вернуть.
func (l *Ledger) Statistics(top, recent int) Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s Statistics
	s.TotalTransactions = len(l.transactions)
	for _, tx := range l.transactions {
		s.TotalPaid += tx.AmountPaid
	}
	for i := len(l.transactions) - 1; i >= 0 && len(s.RecentTransactions) < recent; i-- {
		s.RecentTransactions = append(s.RecentTransactions, l.transactions[i])
	}

	for _, id := range l.order {
		acc := l.accounts[id]
		if acc.Balance > 0 {
			s.ActiveAccountCount++
		}
		s.TotalOutstandingBalance += acc.Balance
		s.TopBalances = insertTop(s.TopBalances, BalanceEntry{StaffID: id, Balance: acc.Balance}, top)
	}
	return s
}

// insertTop вставляет e в отсортированный по убыванию срез длиной не
// больше k. Равные балансы не обгоняют уже стоящие (порядок заведения).
func insertTop(list []BalanceEntry, e BalanceEntry, k int) []BalanceEntry {
	if k <= 0 {
		return list
	}
	pos := len(list)
	for pos > 0 && list[pos-1].Balance < e.Balance {
		pos--
	}
	if pos >= k {
		return list
	}
	list = append(list, BalanceEntry{})
	copy(list[pos+1:], list[pos:])
	list[pos] = e
	if len(list) > k {
		list = list[:k]
	}
	return list
}
