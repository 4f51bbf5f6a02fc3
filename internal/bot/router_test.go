package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"serotonyl.ru/support-bot/internal/actions"
	"serotonyl.ru/support-bot/internal/bot/middleware"
	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/rewards"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway/gatewaytest"
)

const (
	supportChat    = int64(-1001)
	approvalChat   = int64(-1002)
	transcriptChat = int64(-1003)

	creatorID = int64(10)
	staffA    = int64(20)
	staffB    = int64(30)
	adminID   = int64(99)
)

type replies struct {
	mu   sync.Mutex
	list []string
}

func (r *replies) reply(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, text)
}

func (r *replies) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) == 0 {
		t.Fatal("no replies")
	}
	return r.list[len(r.list)-1]
}

type routerFixture struct {
	router  *Router
	gw      *gatewaytest.Recorder
	clk     *clock.FakeClock
	ledger  *ledger.Ledger
	tickets *tickets.Service
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := &config.Config{StaffIDs: []int64{staffA, staffB}, AdminIDs: []int64{adminID}}
	gw := gatewaytest.New(supportChat)
	gw.Names[creatorID] = "Иван"
	gw.Names[staffA] = "Анна"
	clk := clock.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	catalog := config.DefaultCatalog()
	l := ledger.New(clk)

	rewardService := rewards.NewService(rewards.Options{
		Ledger:         l,
		Gateway:        gw,
		Catalog:        catalog,
		Clock:          clk,
		ApprovalChatID: approvalChat,
		PayoutMin:      300,
		PayoutMax:      5000,
	})
	ticketService := tickets.NewService(tickets.Options{
		Gateway:          gw,
		Catalog:          catalog,
		Rewards:          rewardService,
		Clock:            clk,
		TranscriptChatID: transcriptChat,
		Location:         time.UTC,
	})

	router := NewRouter(RouterDeps{
		Roles:         cfg,
		SupportChatID: supportChat,
		Gateway:       gw,
		Tickets:       ticketService,
		TicketHandler: tickets.NewHandler(ticketService, gw),
		RewardHandler: rewards.NewHandler(rewardService),
		LedgerHandler: ledger.NewHandler(ledger.NewService(l, gw, time.UTC)),
	})
	return &routerFixture{router: router, gw: gw, clk: clk, ledger: l, tickets: ticketService}
}

func topicMessage(channelID, userID int64, text string) *telego.Message {
	return &telego.Message{
		Chat:            telego.Chat{ID: supportChat, Type: telego.ChatTypeSupergroup},
		From:            &telego.User{ID: userID, FirstName: "u"},
		MessageThreadID: int(channelID),
		IsTopicMessage:  true,
		Text:            text,
	}
}

func privateMessage(userID int64, text string) *telego.Message {
	return &telego.Message{
		Chat: telego.Chat{ID: userID, Type: telego.ChatTypePrivate},
		From: &telego.User{ID: userID, FirstName: "u"},
		Text: text,
	}
}

func (f *routerFixture) press(t *testing.T, userID int64, data string) string {
	t.Helper()
	var r replies
	f.router.HandleCallback(context.Background(), r.reply, userID, "u", data)
	if len(r.list) != 1 {
		t.Fatalf("callback %q: %d replies, want exactly 1: %v", data, len(r.list), r.list)
	}
	return r.list[0]
}

func TestRouterTicketLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	if got := f.press(t, creatorID, actions.OpenTicket("general")); !strings.Contains(got, "Тикет создан") {
		t.Fatalf("open reply = %q", got)
	}
	ch := int64(101)

	if got := f.press(t, creatorID, actions.ClaimToggle(ch)); got != textForbidden {
		t.Fatalf("creator claim reply = %q", got)
	}
	if got := f.press(t, staffA, actions.ClaimToggle(ch)); !strings.Contains(got, "Тикет ваш") {
		t.Fatalf("claim reply = %q", got)
	}
	if got := f.press(t, staffB, actions.ClaimToggle(ch)); !strings.HasPrefix(got, "❌") {
		t.Fatalf("second claim reply = %q", got)
	}

	// переписка в теме попадает в транскрипт
	f.router.HandleMessage(ctx, topicMessage(ch, creatorID, "Где мой заказ?"))
	tk, _ := f.tickets.Registry().GetActive(ch)
	found := false
	for _, m := range tk.Messages {
		if m.Content == "Где мой заказ?" && m.AuthorID == creatorID {
			found = true
		}
	}
	if !found {
		t.Fatalf("message not recorded: %+v", tk.Messages)
	}

	// !закрыть в теме отвечает в тему
	f.router.HandleMessage(ctx, topicMessage(ch, staffA, "!закрыть"))
	if f.gw.CountContaining(ch, "Тикет закрыт") == 0 {
		t.Fatalf("no close reply in topic: %v", f.gw.ChannelTexts(ch))
	}

	cards := f.gw.ChatMessages(approvalChat)
	if len(cards) != 1 {
		t.Fatalf("approval cards = %+v", cards)
	}
	approve := cards[0].Rows[0][0].Data

	if got := f.press(t, staffA, approve); got != textForbidden {
		t.Fatalf("staff approve reply = %q", got)
	}
	if got := f.press(t, adminID, approve); !strings.Contains(got, "начислена") {
		t.Fatalf("approve reply = %q", got)
	}
	if got := f.press(t, adminID, approve); !strings.Contains(got, "уже рассмотрена") {
		t.Fatalf("repeat approve reply = %q", got)
	}
	if f.ledger.Balance(staffA) != 15 {
		t.Fatalf("balance = %d, want 15", f.ledger.Balance(staffA))
	}

	if got := f.press(t, staffA, actions.Finalize(ch)); !strings.Contains(got, "Транскрипт сохранён") {
		t.Fatalf("finalize reply = %q", got)
	}
	f.clk.Advance(5 * time.Second)
	if f.gw.DeletedCount(ch) != 1 {
		t.Fatal("topic must be deleted after grace")
	}
}

func TestRouterCommandsInPrivateChat(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.ledger.AdjustBalance(staffA, 700)

	f.router.HandleMessage(ctx, privateMessage(staffA, "!баланс"))
	if sent := f.gw.ChatMessages(staffA); len(sent) != 1 || !strings.Contains(sent[0].Text, "700") {
		t.Fatalf("balance reply = %+v", sent)
	}

	f.router.HandleMessage(ctx, privateMessage(creatorID, "!баланс"))
	if sent := f.gw.ChatMessages(creatorID); len(sent) != 1 || sent[0].Text != textForbidden {
		t.Fatalf("non-staff reply = %+v", sent)
	}

	f.router.HandleMessage(ctx, privateMessage(staffA, "!выплата 650 https://pay/1"))
	if len(f.gw.ChatMessages(approvalChat)) != 1 {
		t.Fatal("payout card not posted")
	}

	f.router.HandleMessage(ctx, privateMessage(staffA, "!закрыть"))
	if sent := f.gw.ChatMessages(staffA); sent[len(sent)-1].Text != textOnlyInTicket {
		t.Fatalf("close outside topic = %q", sent[len(sent)-1].Text)
	}

	// обычный текст в личке — без ответа
	before := len(f.gw.ChatMessages(staffA))
	f.router.HandleMessage(ctx, privateMessage(staffA, "спасибо"))
	if len(f.gw.ChatMessages(staffA)) != before {
		t.Fatal("plain text must not be answered")
	}
}

func TestRouterAdminOnlyActions(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	var r replies

	f.router.OnManualCredit(ctx, r.reply, staffA, staffA, 100)
	if r.last(t) != textForbidden || f.ledger.Balance(staffA) != 0 {
		t.Fatal("staff must not credit")
	}
	f.router.OnManualCredit(ctx, r.reply, adminID, staffA, 100)
	if f.ledger.Balance(staffA) != 100 {
		t.Fatalf("balance = %d", f.ledger.Balance(staffA))
	}

	f.press(t, creatorID, actions.OpenTicket("general"))
	f.router.OnSoftCloseRequested(ctx, r.reply, 101, staffA, true)
	if r.last(t) != textForbidden {
		t.Fatal("override close needs admin")
	}
	f.router.OnFinalizeRequested(ctx, r.reply, 101, staffA, true)
	if r.last(t) != textForbidden {
		t.Fatal("force delete needs admin")
	}
	f.router.OnFinalizeRequested(ctx, r.reply, 101, adminID, true)
	if !strings.Contains(r.last(t), "Транскрипт сохранён") {
		t.Fatalf("force delete reply = %q", r.last(t))
	}
}

func TestRouterRateLimitedCommandIsAnswered(t *testing.T) {
	f := newRouterFixture(t)
	f.router.rateLimiter = middleware.NewRateLimiter(f.clk, 1, time.Minute)
	defer f.router.rateLimiter.Close()
	ctx := context.Background()

	f.router.HandleMessage(ctx, privateMessage(staffA, "!баланс"))
	f.router.HandleMessage(ctx, privateMessage(staffA, "!баланс"))

	sent := f.gw.ChatMessages(staffA)
	if len(sent) != 2 {
		t.Fatalf("replies = %+v, want one per command", sent)
	}
	if sent[1].Text != textRateLimited {
		t.Fatalf("second reply = %q", sent[1].Text)
	}

	if got := f.press(t, staffA, actions.OpenTicket("general")); got != textRateLimited {
		t.Fatalf("callback reply = %q", got)
	}
}

func TestRouterUnknownCallback(t *testing.T) {
	f := newRouterFixture(t)
	if got := f.press(t, staffA, "casino:spin"); got != textStaleButton {
		t.Fatalf("reply = %q", got)
	}
}

func TestOnceDropsSecondReply(t *testing.T) {
	var r replies
	reply := once(r.reply)
	reply(context.Background(), "a")
	reply(context.Background(), "b")
	if len(r.list) != 1 || r.list[0] != "a" {
		t.Fatalf("replies = %v", r.list)
	}
}
