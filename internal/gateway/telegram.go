package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Telegram — реализация Gateway поверх telego.
// Все темы тикетов живут в одной супергруппе supportChatID.
type Telegram struct {
	bot           *telego.Bot
	supportChatID int64
}

// NewTelegram создаёт шлюз.
func NewTelegram(bot *telego.Bot, supportChatID int64) *Telegram {
	return &Telegram{bot: bot, supportChatID: supportChatID}
}

// SendToChannel отправляет сообщение в тему тикета.
func (t *Telegram) SendToChannel(ctx context.Context, channelID int64, text string, rows ...Row) (MessageRef, error) {
	params := tu.Message(tu.ID(t.supportChatID), text).WithMessageThreadID(int(channelID))
	if len(rows) > 0 {
		params = params.WithReplyMarkup(keyboard(rows))
	}
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return MessageRef{}, mapError("send to channel", RightSendMessages, err)
	}
	return MessageRef{ChatID: t.supportChatID, MessageID: msg.MessageID}, nil
}

// SendToChat отправляет сообщение в обычный чат.
func (t *Telegram) SendToChat(ctx context.Context, chatID int64, text string, rows ...Row) (MessageRef, error) {
	params := tu.Message(tu.ID(chatID), text)
	if len(rows) > 0 {
		params = params.WithReplyMarkup(keyboard(rows))
	}
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return MessageRef{}, mapError("send to chat", RightSendMessages, err)
	}
	return MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// DirectMessage пишет пользователю в личку. Пользователь должен был
// хотя бы раз написать боту, иначе Telegram вернёт 403.
func (t *Telegram) DirectMessage(ctx context.Context, userID int64, text string) error {
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return mapError("direct message", RightSendMessages, err)
	}
	return nil
}

// ClearButtons убирает inline-клавиатуру у сообщения.
func (t *Telegram) ClearButtons(ctx context.Context, ref MessageRef) error {
	_, err := t.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:    tu.ID(ref.ChatID),
		MessageID: ref.MessageID,
	})
	if err != nil {
		return mapError("clear buttons", RightSendMessages, err)
	}
	return nil
}

// CreateChannel создаёт тему в супергруппе поддержки.
func (t *Telegram) CreateChannel(ctx context.Context, spec ChannelSpec) (int64, error) {
	topic, err := t.bot.CreateForumTopic(ctx, &telego.CreateForumTopicParams{
		ChatID:    tu.ID(t.supportChatID),
		Name:      spec.Name(),
		IconColor: spec.IconColor,
	})
	if err != nil {
		return 0, mapError("create topic", RightManageTopics, err)
	}
	log.WithFields(log.Fields{
		"component":  "gateway",
		"channel_id": topic.MessageThreadID,
		"name":       topic.Name,
	}).Debug("тема создана")
	return int64(topic.MessageThreadID), nil
}

// SetChannelTitle переименовывает тему.
func (t *Telegram) SetChannelTitle(ctx context.Context, channelID int64, title string) error {
	err := t.bot.EditForumTopic(ctx, &telego.EditForumTopicParams{
		ChatID:          tu.ID(t.supportChatID),
		MessageThreadID: int(channelID),
		Name:            ChannelSpec{Title: title}.Name(),
	})
	if err != nil {
		return mapError("edit topic", RightManageTopics, err)
	}
	return nil
}

// LockChannel закрывает тему.
func (t *Telegram) LockChannel(ctx context.Context, channelID int64) error {
	err := t.bot.CloseForumTopic(ctx, &telego.CloseForumTopicParams{
		ChatID:          tu.ID(t.supportChatID),
		MessageThreadID: int(channelID),
	})
	if err != nil {
		return mapError("close topic", RightManageTopics, err)
	}
	return nil
}

// DeleteChannel удаляет тему вместе с сообщениями.
func (t *Telegram) DeleteChannel(ctx context.Context, channelID int64) error {
	err := t.bot.DeleteForumTopic(ctx, &telego.DeleteForumTopicParams{
		ChatID:          tu.ID(t.supportChatID),
		MessageThreadID: int(channelID),
	})
	if err != nil {
		return mapError("delete topic", RightDeleteMessages, err)
	}
	return nil
}

// SendDocument выгружает файл в чат.
func (t *Telegram) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	params := tu.Document(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(data), filename))).
		WithCaption(caption)
	if _, err := t.bot.SendDocument(ctx, params); err != nil {
		return mapError("send document", RightSendDocuments, err)
	}
	return nil
}

// DisplayName берёт имя участника супергруппы поддержки.
func (t *Telegram) DisplayName(ctx context.Context, userID int64) (string, error) {
	member, err := t.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(t.supportChatID),
		UserID: userID,
	})
	if err != nil {
		return "", mapError("get chat member", RightSendMessages, err)
	}
	return UserName(member.MemberUser()), nil
}

// UserName — «Имя Фамилия» или @username, если имени нет.
func UserName(u telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	if name == "" {
		name = fmt.Sprintf("id%d", u.ID)
	}
	return name
}

func keyboard(rows []Row) *telego.InlineKeyboardMarkup {
	out := make([][]telego.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tu.InlineKeyboardButton(b.Text).WithCallbackData(b.Data))
		}
		out = append(out, tu.InlineKeyboardRow(buttons...))
	}
	return tu.InlineKeyboard(out...)
}

// mapError переводит ответ Telegram об отсутствии прав в PermissionError.
func mapError(op, right string, err error) error {
	var apiErr *ta.Error
	if errors.As(err, &apiErr) && isPermissionDenied(apiErr.ErrorCode, apiErr.Description) {
		return &PermissionError{Op: op, Right: right, Detail: apiErr.Description}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPermissionDenied(code int, description string) bool {
	if code == http.StatusForbidden {
		return true
	}
	d := strings.ToLower(description)
	return strings.Contains(d, "not enough rights") ||
		strings.Contains(d, "have no rights") ||
		strings.Contains(d, "chat_admin_required")
}

// IsMember проверяет, состоит ли пользователь в супергруппе поддержки.
func (t *Telegram) IsMember(ctx context.Context, userID int64) (bool, error) {
	member, err := t.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(t.supportChatID),
		UserID: userID,
	})
	if err != nil {
		return false, mapError("get chat member", RightSendMessages, err)
	}
	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator,
		telego.MemberStatusMember, telego.MemberStatusRestricted:
		return true, nil
	}
	return false, nil
}
