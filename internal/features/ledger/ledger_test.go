package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger() (*Ledger, *clock.FakeClock) {
	clk := clock.Fake(t0)
	return New(clk), clk
}

func TestAdjustBalanceCreatesAccount(t *testing.T) {
	l, _ := newTestLedger()
	if got := l.Balance(7); got != 0 {
		t.Fatalf("balance of unknown account = %d", got)
	}
	if got := l.AdjustBalance(7, 15); got != 15 {
		t.Fatalf("balance = %d, want 15", got)
	}
	if got := l.AdjustBalance(7, -5); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}
}

func TestDebitIfSufficient(t *testing.T) {
	l, _ := newTestLedger()
	l.AdjustBalance(1, 700)

	left, err := l.DebitIfSufficient(1, 650)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if left != 50 {
		t.Fatalf("left = %d, want 50", left)
	}

	if _, err := l.DebitIfSufficient(1, 51); !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Balance(1); got != 50 {
		t.Fatalf("failed debit changed balance to %d", got)
	}
	if _, err := l.DebitIfSufficient(1, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, _ := newTestLedger()
	l.AdjustBalance(1, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.DebitIfSufficient(1, 300); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("successful debits = %d, want 3", ok)
	}
	if got := l.Balance(1); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestRecordTransactionSequentialIDs(t *testing.T) {
	l, clk := newTestLedger()

	tx1, err := l.RecordTransaction(1, 300, "https://pay/1", 99)
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	tx2, err := l.RecordTransaction(2, 400, "https://pay/2", 99)
	if err != nil {
		t.Fatal(err)
	}

	if tx1.ID != 1 || tx2.ID != 2 {
		t.Fatalf("ids = %d, %d", tx1.ID, tx2.ID)
	}
	if !tx2.Timestamp.Equal(t0.Add(time.Minute)) {
		t.Fatalf("timestamp = %v", tx2.Timestamp)
	}
	if _, err := l.RecordTransaction(1, 0, "", 99); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := len(l.Transactions(1, 0)); got != 1 {
		t.Fatalf("transactions of staff 1 = %d", got)
	}
}

func TestStatistics(t *testing.T) {
	l, _ := newTestLedger()
	l.AdjustBalance(1, 100) // заведён первым
	l.AdjustBalance(2, 300)
	l.AdjustBalance(3, 100)
	l.AdjustBalance(4, 0)
	l.AdjustBalance(5, 50)

	l.RecordTransaction(2, 300, "a", 9)
	l.RecordTransaction(1, 500, "b", 9)
	l.RecordTransaction(3, 700, "c", 9)

	st := l.Statistics(3, 2)

	if st.TotalTransactions != 3 || st.TotalPaid != 1500 {
		t.Fatalf("totals = %d/%d", st.TotalTransactions, st.TotalPaid)
	}
	if st.ActiveAccountCount != 4 {
		t.Fatalf("active accounts = %d, want 4", st.ActiveAccountCount)
	}
	if st.TotalOutstandingBalance != 550 {
		t.Fatalf("outstanding = %d, want 550", st.TotalOutstandingBalance)
	}

	wantTop := []int64{2, 1, 3}
	if len(st.TopBalances) != len(wantTop) {
		t.Fatalf("top = %+v", st.TopBalances)
	}
	for i, id := range wantTop {
		if st.TopBalances[i].StaffID != id {
			t.Fatalf("top[%d] = %d, want %d (%+v)", i, st.TopBalances[i].StaffID, id, st.TopBalances)
		}
	}

	if len(st.RecentTransactions) != 2 || st.RecentTransactions[0].ExternalRef != "c" || st.RecentTransactions[1].ExternalRef != "b" {
		t.Fatalf("recent = %+v", st.RecentTransactions)
	}
}

func TestInsertTopKeepsOrderForTies(t *testing.T) {
	var list []BalanceEntry
	for i, b := range []int64{10, 20, 20, 5, 20} {
		list = insertTop(list, BalanceEntry{StaffID: int64(i), Balance: b}, 3)
	}
	want := []int64{1, 2, 4}
	for i, id := range want {
		if list[i].StaffID != id {
			t.Fatalf("list = %+v", list)
		}
	}
}

type staticNames map[int64]string

func (n staticNames) DisplayName(_ context.Context, id int64) (string, error) {
	if name, ok := n[id]; ok {
		return name, nil
	}
	return "", errors.New("unknown")
}

func TestServiceTexts(t *testing.T) {
	l, _ := newTestLedger()
	svc := NewService(l, staticNames{2: "Анна"}, time.UTC)

	if got := svc.BalanceText(1); got != "💰 Баланс: 0 монет" {
		t.Fatalf("BalanceText = %q", got)
	}
	if got := svc.HistoryText(1); !strings.Contains(got, "нет начислений") {
		t.Fatalf("HistoryText = %q", got)
	}

	l.AdjustBalance(2, 2350)
	l.RecordReward(2, 15, RewardSourceTicket, 101, 9)
	l.RecordTransaction(2, 300, "https://pay/x", 9)

	history := svc.HistoryText(2)
	for _, want := range []string{"+15 монет", "тикет", "-300 монет", "https://pay/x"} {
		if !strings.Contains(history, want) {
			t.Fatalf("history %q lacks %q", history, want)
		}
	}

	stats := svc.StatisticsText(context.Background())
	for _, want := range []string{"Выплат: 1 на 300 монет", "Анна — 2 350 монет"} {
		if !strings.Contains(stats, want) {
			t.Fatalf("stats %q lacks %q", stats, want)
		}
	}
}
