package rewards

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/events"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway"
	"serotonyl.ru/support-bot/internal/gateway/gatewaytest"
)

const (
	approvalChat = int64(-1002)
	staffA       = int64(20)
	adminID      = int64(99)
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	ledger *ledger.Ledger
	gw     *gatewaytest.Recorder
	events *[]events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(t0)
	l := ledger.New(clk)
	gw := gatewaytest.New(-1001)

	var published []events.Event
	d := events.NewInMemoryDispatcher()
	for _, typ := range []events.Type{events.PayoutApproved, events.PayoutDenied, events.RewardCredited, events.RewardDenied} {
		d.Subscribe(typ, func(_ context.Context, e events.Event) error {
			published = append(published, e)
			return nil
		})
	}

	svc := NewService(Options{
		Ledger:         l,
		Gateway:        gw,
		Catalog:        config.DefaultCatalog(),
		Events:         d,
		Clock:          clk,
		ApprovalChatID: approvalChat,
		PayoutMin:      300,
		PayoutMax:      5000,
	})
	return &fixture{svc: svc, ledger: l, gw: gw, events: &published}
}

func TestPayoutInsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestPayout(context.Background(), staffA, 300, "https://pay/1")
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.ledger.Balance(staffA) != 0 {
		t.Fatal("balance changed")
	}
	if len(f.gw.ChatMessages(approvalChat)) != 0 || len(f.svc.Pending().List()) != 0 {
		t.Fatal("rejected request must have no side effects")
	}
}

func TestPayoutBounds(t *testing.T) {
	f := newFixture(t)
	f.ledger.AdjustBalance(staffA, 10000)

	for _, amount := range []int64{0, 299, 5001} {
		if _, err := f.svc.RequestPayout(context.Background(), staffA, amount, "ref"); !errors.Is(err, common.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	for _, amount := range []int64{300, 5000} {
		if _, err := f.svc.RequestPayout(context.Background(), staffA, amount, "ref"); err != nil {
			t.Fatalf("amount %d: %v", amount, err)
		}
	}
	if _, err := f.svc.RequestPayout(context.Background(), staffA, 500, ""); !errors.Is(err, ErrMissingRef) {
		t.Fatalf("expected ErrMissingRef, got %v", err)
	}
}

func TestPayoutApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)

	req, err := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")
	if err != nil {
		t.Fatal(err)
	}
	cards := f.gw.ChatMessages(approvalChat)
	if len(cards) != 1 || len(cards[0].Rows) != 1 || len(cards[0].Rows[0]) != 2 {
		t.Fatalf("approval card = %+v", cards)
	}
	if f.ledger.Balance(staffA) != 700 {
		t.Fatal("request must not debit before approval")
	}

	dec, err := f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Approved || dec.Balance != 50 {
		t.Fatalf("decision = %+v", dec)
	}
	if f.ledger.Balance(staffA) != 50 {
		t.Fatalf("balance = %d, want 50", f.ledger.Balance(staffA))
	}
	txs := f.ledger.Transactions(staffA, 0)
	if len(txs) != 1 || txs[0].AmountPaid != 650 || txs[0].ApproverID != adminID || txs[0].ExternalRef != "https://pay/1" {
		t.Fatalf("transactions = %+v", txs)
	}

	cleared := f.gw.ClearedRefs()
	if len(cleared) != 1 || cleared[0] != cards[0].Ref {
		t.Fatalf("cleared = %+v", cleared)
	}
	if dms := f.gw.DMsTo(staffA); len(dms) != 1 || !strings.Contains(dms[0], "одобрена") {
		t.Fatalf("dms = %v", dms)
	}
	if len(*f.events) != 1 || (*f.events)[0].Type != events.PayoutApproved {
		t.Fatalf("events = %+v", *f.events)
	}
}

func TestPayoutBalanceChangedBeforeApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)

	req, err := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")
	if err != nil {
		t.Fatal(err)
	}
	other, err := f.svc.RequestPayout(ctx, staffA, 400, "https://pay/2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Decide(ctx, actions.PayoutDirect, true, other.ID, adminID); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID)
	if !errors.Is(err, common.ErrBalanceChanged) {
		t.Fatalf("expected ErrBalanceChanged, got %v", err)
	}
	if f.ledger.Balance(staffA) != 300 {
		t.Fatalf("balance = %d, want 300", f.ledger.Balance(staffA))
	}
	if n := len(f.ledger.Transactions(staffA, 0)); n != 1 {
		t.Fatalf("transactions = %d, want 1", n)
	}
	if len(f.gw.ClearedRefs()) != 2 {
		t.Fatal("buttons must be cleared even when the payout fails")
	}
}

func TestPayoutDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)

	req, _ := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")
	dec, err := f.svc.Decide(ctx, actions.PayoutDirect, false, req.ID, adminID)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Approved || f.ledger.Balance(staffA) != 700 || len(f.ledger.Transactions(staffA, 0)) != 0 {
		t.Fatal("denial must not touch the ledger")
	}
	if dms := f.gw.DMsTo(staffA); len(dms) != 1 || !strings.Contains(dms[0], "отклонена") {
		t.Fatalf("dms = %v", dms)
	}
}

func TestDecisionIsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 5000)
	req, _ := f.svc.RequestPayout(ctx, staffA, 1000, "https://pay/1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, notFound := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_, err := f.svc.Decide(ctx, actions.PayoutDirect, approve, req.ID, adminID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrRequestNotFound):
				notFound++
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if ok != 1 || notFound != 9 {
		t.Fatalf("ok=%d notFound=%d", ok, notFound)
	}
	if b := f.ledger.Balance(staffA); b != 5000 && b != 4000 {
		t.Fatalf("balance = %d", b)
	}
}

func TestDecisionKindMustMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)
	req, _ := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")

	if _, err := f.svc.Decide(ctx, actions.TicketReward, true, req.ID, adminID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, actions.PayoutDirect, true, uuid.New(), adminID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("unknown id must be NotFound-class, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID); err != nil {
		t.Fatalf("request must survive a mismatched decision: %v", err)
	}
}

func TestPayoutCompensatesWhenRecordFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)
	req, _ := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")

	f.svc.recordTx = func(int64, int64, string, int64) (ledger.Transaction, error) {
		return ledger.Transaction{}, errors.New("disk full")
	}
	if _, err := f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID); err == nil {
		t.Fatal("expected error")
	}
	if f.ledger.Balance(staffA) != 700 {
		t.Fatalf("balance = %d, want 700 after compensation", f.ledger.Balance(staffA))
	}
	refunds := f.ledger.Rewards(staffA, 0)
	if len(refunds) != 1 || refunds[0].Source != ledger.RewardSourceRefund || refunds[0].Amount != 650 || refunds[0].ApproverID != adminID {
		t.Fatalf("refund record = %+v", refunds)
	}
}

func TestPayoutCompensatesOnPanic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)
	req, _ := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")

	f.svc.recordTx = func(int64, int64, string, int64) (ledger.Transaction, error) {
		panic("boom")
	}
	dec, err := f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
	if dec.Balance != 700 || f.ledger.Balance(staffA) != 700 {
		t.Fatalf("balance = %d / %d, want 700", dec.Balance, f.ledger.Balance(staffA))
	}
}

func TestNotificationFailureKeepsPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)
	req, _ := f.svc.RequestPayout(ctx, staffA, 650, "https://pay/1")

	f.gw.Set(func(r *gatewaytest.Recorder) {
		r.FailDM = &gateway.PermissionError{Op: "direct message", Right: gateway.RightSendMessages}
	})
	if _, err := f.svc.Decide(ctx, actions.PayoutDirect, true, req.ID, adminID); err != nil {
		t.Fatal(err)
	}
	if f.ledger.Balance(staffA) != 50 || len(f.ledger.Transactions(staffA, 0)) != 1 {
		t.Fatal("payout must stay recorded when the notification fails")
	}
}

// Сценарий: тикет закрыт, админ одобряет награду 15.
func TestTicketRewardApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := tickets.Ticket{ChannelID: 101, Title: "Общая поддержка — Иван", Category: "general", IsSoftClosed: true, Beneficiary: staffA}

	if err := f.svc.RequestTicketReward(ctx, tk); err != nil {
		t.Fatal(err)
	}
	pending := f.svc.Pending().List()
	if len(pending) != 1 || pending[0].Amount != 15 || pending[0].StaffID != staffA {
		t.Fatalf("pending = %+v", pending)
	}

	dec, err := f.svc.Decide(ctx, actions.TicketReward, true, pending[0].ID, adminID)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Balance != 15 || f.ledger.Balance(staffA) != 15 {
		t.Fatalf("balance = %d", f.ledger.Balance(staffA))
	}
	rewards := f.ledger.Rewards(staffA, 0)
	if len(rewards) != 1 || rewards[0].Amount != 15 || rewards[0].Source != ledger.RewardSourceTicket || rewards[0].ChannelID != 101 {
		t.Fatalf("rewards = %+v", rewards)
	}
	if dms := f.gw.DMsTo(staffA); len(dms) != 1 || !strings.Contains(dms[0], "15 монет") {
		t.Fatalf("dms = %v", dms)
	}
}

func TestTicketRewardDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.RequestTicketReward(ctx, tickets.Ticket{ChannelID: 101, Category: "appeal", Beneficiary: staffA})
	req := f.svc.Pending().List()[0]
	if req.Amount != 30 {
		t.Fatalf("amount = %d", req.Amount)
	}

	if _, err := f.svc.Decide(ctx, actions.TicketReward, false, req.ID, adminID); err != nil {
		t.Fatal(err)
	}
	if f.ledger.Balance(staffA) != 0 || len(f.ledger.Rewards(staffA, 0)) != 0 {
		t.Fatal("denied reward must not credit")
	}
	if len(*f.events) != 1 || (*f.events)[0].Type != events.RewardDenied {
		t.Fatalf("events = %+v", *f.events)
	}
}

func TestTicketRewardUnknownCategoryIsZero(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RequestTicketReward(context.Background(), tickets.Ticket{ChannelID: 101, Category: "legacy", Beneficiary: staffA}); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.Pending().List()) != 0 || len(f.gw.ChatMessages(approvalChat)) != 0 {
		t.Fatal("zero reward must not be sent for approval")
	}
}

func TestRequestDroppedWhenCardFails(t *testing.T) {
	f := newFixture(t)
	f.ledger.AdjustBalance(staffA, 700)
	f.gw.Set(func(r *gatewaytest.Recorder) { r.FailSend = errors.New("network") })

	if _, err := f.svc.RequestPayout(context.Background(), staffA, 650, "ref"); err == nil {
		t.Fatal("expected error")
	}
	if len(f.svc.Pending().List()) != 0 {
		t.Fatal("request without a card must not stay pending")
	}
}

func TestManualCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ManualCredit(ctx, adminID, staffA, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	balance, err := f.svc.ManualCredit(ctx, adminID, staffA, 250)
	if err != nil || balance != 250 {
		t.Fatalf("credit = %d, %v", balance, err)
	}
	rewards := f.ledger.Rewards(staffA, 0)
	if len(rewards) != 1 || rewards[0].Source != ledger.RewardSourceManual || rewards[0].ApproverID != adminID {
		t.Fatalf("rewards = %+v", rewards)
	}
}

func TestHandlerReplies(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	ctx := context.Background()

	var replies []string
	reply := func(_ context.Context, text string) { replies = append(replies, text) }

	h.HandlePayoutCommand(ctx, reply, staffA, []string{"300", "https://pay/1"})
	h.HandlePayoutCommand(ctx, reply, staffA, []string{"сто"})
	h.HandleCreditCommand(ctx, reply, adminID, []string{"20", "700"})
	h.HandlePayoutRequest(ctx, reply, staffA, 650, "https://pay/1")
	h.HandleDecision(ctx, reply, actions.PayoutDirect, true, f.svc.Pending().List()[0].ID, adminID)

	want := []string{"Недостаточно монет", "Формат", "Начислено 700 монет", "отправлена", "одобрена, остаток 50 монет"}
	if len(replies) != len(want) {
		t.Fatalf("replies = %v", replies)
	}
	for i, w := range want {
		if !strings.Contains(replies[i], w) {
			t.Fatalf("reply %d = %q, want %q", i, replies[i], w)
		}
	}
}

func TestRequestNotFoundIsSingleLineNotFound(t *testing.T) {
	if !errors.Is(ErrRequestNotFound, common.ErrNotFound) {
		t.Fatal("ErrRequestNotFound must wrap common.ErrNotFound")
	}
	if strings.Contains(ErrRequestNotFound.Error(), "\n") {
		t.Fatalf("message spans lines: %q", ErrRequestNotFound.Error())
	}
}
