// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: Telegram API, шлюз, шина событий, леджер,
// тикеты, заявки, роутер, фоновые задачи, HTTP API и (опционально) архив
// аудита в PostgreSQL.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/support-bot/internal/bot"
	"serotonyl.ru/support-bot/internal/bot/filters"
	"serotonyl.ru/support-bot/internal/bot/middleware"
	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/common"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/db/postgres"
	"serotonyl.ru/support-bot/internal/events"
	"serotonyl.ru/support-bot/internal/features/audit"
	"serotonyl.ru/support-bot/internal/features/ledger"
	"serotonyl.ru/support-bot/internal/features/rewards"
	"serotonyl.ru/support-bot/internal/features/tickets"
	"serotonyl.ru/support-bot/internal/gateway"
	"serotonyl.ru/support-bot/internal/httpapi"
	"serotonyl.ru/support-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot         *bot.Bot
	Scheduler   *jobs.Scheduler
	HTTP        *httpapi.Server  // nil, если HTTP_ADDR пуст
	Audit       *audit.Service   // nil, если AUDIT_ENABLED=false
	DB          *pgxpool.Pool    // nil без аудита
	BotAPI      *telego.Bot
	RateLimiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	clk := clock.Real()
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 1. Telegram Bot API ===
	var botOpts []telego.BotOption
	if cfg.AppEnv == "development" {
		botOpts = append(botOpts, telego.WithDefaultDebugLogger())
	}
	botAPI, err := telego.NewBot(cfg.TelegramBotToken, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := botAPI.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	gw := gateway.NewTelegram(botAPI, cfg.SupportChatID)
	dispatcher := events.NewInMemoryDispatcher()

	a := &App{BotAPI: botAPI}

	// === 2. Архив аудита (опционально) ===
	if cfg.AuditEnabled {
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, audit.Migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		a.Audit = audit.NewService(audit.NewRepository(pool), audit.DefaultBuffer)
		a.Audit.Subscribe(dispatcher)
	}

	// === 3. Сервисы ===
	ledgerStore := ledger.New(clk)
	ledgerService := ledger.NewService(ledgerStore, gw, loc)

	rewardService := rewards.NewService(rewards.Options{
		Ledger:         ledgerStore,
		Gateway:        gw,
		Catalog:        cfg.Categories,
		Events:         dispatcher,
		Clock:          clk,
		ApprovalChatID: cfg.ApprovalChatID,
		PayoutMin:      cfg.PayoutMin,
		PayoutMax:      cfg.PayoutMax,
	})

	ticketService := tickets.NewService(tickets.Options{
		Gateway:          gw,
		Catalog:          cfg.Categories,
		Rewards:          rewardService,
		Events:           dispatcher,
		Clock:            clk,
		TranscriptChatID: cfg.TranscriptChatID,
		UnclaimTimeout:   cfg.TicketUnclaimTimeout,
		FinalizeGrace:    cfg.TicketFinalizeGrace,
		Location:         loc,
	})

	// === 4. Роутер, фильтры, бот ===
	a.RateLimiter = middleware.NewRateLimiter(clk, cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := bot.NewRouter(bot.RouterDeps{
		Roles:         cfg,
		SupportChatID: cfg.SupportChatID,
		Gateway:       gw,
		Tickets:       ticketService,
		TicketHandler: tickets.NewHandler(ticketService, gw),
		RewardHandler: rewards.NewHandler(rewardService),
		LedgerHandler: ledger.NewHandler(ledgerService),
		RateLimiter:   a.RateLimiter,
	})
	chatFilter := filters.NewChatFilter(cfg.SupportChatID, cfg.ApprovalChatID, cfg, gw, gw, clk)
	a.Bot = bot.New(botAPI, cfg, router, chatFilter)

	// === 5. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(jobs.Options{
		Tickets:        ticketService,
		Ledger:         ledgerService,
		Gateway:        gw,
		ApprovalChatID: cfg.ApprovalChatID,
		StaleAfter:     cfg.TicketStaleAfter,
		StatsSpec:      cfg.JobsStatsCron,
		StaleSpec:      cfg.JobsStaleCron,
		Location:       loc,
	})

	// === 6. HTTP API ===
	if cfg.HTTPAddr != "" {
		deps := httpapi.Deps{
			Tickets: ticketService,
			Ledger:  ledgerStore,
			Rewards: rewardService,
			Version: version,
		}
		if a.DB != nil {
			deps.DB = a.DB
		}
		a.HTTP = httpapi.New(cfg.HTTPAddr, deps)
	}

	return a, nil
}

// Run запускает бота, HTTP API, архив и cron и ждёт отмены ctx
// (или падения любого из компонентов).
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Bot.Start(gctx) })
	if a.HTTP != nil {
		g.Go(func() error { return a.HTTP.Run(gctx) })
	}
	if a.Audit != nil {
		g.Go(func() error { return a.Audit.Run(gctx) })
	}
	return g.Wait()
}

// Close освобождает ресурсы после Run.
func (a *App) Close() {
	if a.RateLimiter != nil {
		a.RateLimiter.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
