// Package bot — приём апдейтов Telegram (long polling) и маршрутизация
// сообщений и нажатий кнопок по фичам.
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/bot/filters"
	"serotonyl.ru/support-bot/internal/bot/middleware"
	"serotonyl.ru/support-bot/internal/config"
	"serotonyl.ru/support-bot/internal/gateway"
)

// Bot — главная структура бота: polling, фильтр чатов, роутер.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	chatFilter *filters.ChatFilter
	router     *Router

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота.
func New(api *telego.Bot, cfg *config.Config, router *Router, chatFilter *filters.ChatFilter) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:        api,
		cfg:        cfg,
		chatFilter: chatFilter,
		router:     router,
		inflight:   make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling и блокируется до отмены ctx.
// Перед возвратом дожидается обработчиков, которые уже запущены.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			wg.Add(1)
			go func(upd telego.Update) {
				defer wg.Done()
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *telego.Message) {
	middleware.LogMessage(message)

	// Проверяем доступ (рабочие чаты или личка участника группы поддержки)
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}
	b.router.HandleMessage(ctx, message)
}

func (b *Bot) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	middleware.LogCallback(query)

	answer := once(b.answerCallback(query.ID))
	// Telegram ждёт ответа на любой callback, иначе кнопка «крутится»
	defer answer(ctx, "")

	b.router.HandleCallback(ctx, answer, query.From.ID, gateway.UserName(query.From), query.Data)
}

// answerCallback — всплывающее уведомление в ответ на нажатие кнопки.
func (b *Bot) answerCallback(queryID string) gateway.Responder {
	return func(ctx context.Context, text string) {
		params := tu.CallbackQuery(queryID)
		if text != "" {
			params = params.WithText(text)
		}
		if err := b.api.AnswerCallbackQuery(ctx, params); err != nil {
			log.WithError(err).Debug("Не удалось ответить на callback")
		}
	}
}
