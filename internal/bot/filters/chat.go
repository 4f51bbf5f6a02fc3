// Package filters решает, какие сообщения бот вообще обрабатывает.
package filters

import (
	"context"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/support-bot/internal/clock"
	"serotonyl.ru/support-bot/internal/gateway"
)

// memberTTL — сколько помним подтверждённое членство в группе поддержки.
const memberTTL = 30 * time.Minute

// Roles — проверка ролей из конфигурации.
type Roles interface {
	IsStaff(userID int64) bool
}

// MemberChecker проверяет членство в супергруппе поддержки через Telegram.
type MemberChecker interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// Notifier отправляет отказ в личку.
type Notifier interface {
	SendToChat(ctx context.Context, chatID int64, text string, rows ...gateway.Row) (gateway.MessageRef, error)
}

// ChatFilter пропускает сообщения из группы поддержки, чата одобрений и
// личек участников группы поддержки. Остальные чаты игнорируются.
type ChatFilter struct {
	supportChatID  int64
	approvalChatID int64
	roles          Roles
	members        MemberChecker
	notifier       Notifier
	clock          clock.Clock

	mu    sync.Mutex
	known map[int64]time.Time // user_id -> до какого момента доверяем
}

func NewChatFilter(supportChatID, approvalChatID int64, roles Roles, members MemberChecker, notifier Notifier, clk clock.Clock) *ChatFilter {
	if clk == nil {
		clk = clock.Real()
	}
	return &ChatFilter{
		supportChatID:  supportChatID,
		approvalChatID: approvalChatID,
		roles:          roles,
		members:        members,
		notifier:       notifier,
		clock:          clk,
		known:          make(map[int64]time.Time),
	}
}

func (f *ChatFilter) CheckAccess(ctx context.Context, message *telego.Message) bool {
	if message == nil {
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   chatID,
		"chat_type": message.Chat.Type,
		"user_id":   userID,
	})

	// 1) Рабочие чаты
	if chatID == f.supportChatID || chatID == f.approvalChatID {
		return true
	}

	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Info("deny: not a working chat and not private")
		return false
	}

	// 2) Личка: сотрудники всегда, остальные — если состоят в группе поддержки
	if f.roles != nil && f.roles.IsStaff(userID) {
		return true
	}
	if f.isKnown(userID) {
		return true
	}
	if f.members == nil {
		logger.Error("member checker is nil")
		return false
	}

	ok, err := f.members.IsMember(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("member check failed (telegram GetChatMember)")
		return false
	}
	if ok {
		f.remember(userID)
		logger.Debug("allow: private (support group member)")
		return true
	}

	logger.Info("deny: private (not a support group member)")
	if f.notifier != nil {
		if _, err := f.notifier.SendToChat(ctx, chatID, "❌ Бот работает только для участников группы поддержки"); err != nil {
			logger.WithError(err).Warn("failed to send deny message")
		}
	}
	return false
}

func (f *ChatFilter) isKnown(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.known[userID]
	if !ok {
		return false
	}
	if f.clock.Now().After(until) {
		delete(f.known, userID)
		return false
	}
	return true
}

func (f *ChatFilter) remember(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[userID] = f.clock.Now().Add(memberTTL)
}
