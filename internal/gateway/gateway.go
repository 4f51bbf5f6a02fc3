// Package gateway описывает транспорт сообщений, через который ядро тикетов
// и выплат общается с Telegram: отправка карточек с кнопками, ЛС,
// создание/закрытие/удаление тем, выгрузка транскриптов.
//
// Канал тикета — тема (forum topic) в супергруппе поддержки, его
// идентификатор — message_thread_id.
package gateway

import (
	"context"
)

// Button — inline-кнопка с callback-данными.
type Button struct {
	Text string
	Data string
}

// Row — строка кнопок.
type Row []Button

// MessageRef указывает на отправленное сообщение (нужно, чтобы потом
// снять с него кнопки).
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Gateway — всё, что ядру нужно от мессенджера.
//
// Реализации возвращают common.ErrGatewayPermissionDenied (обёрнутую),
// если у бота нет прав на действие.
type Gateway interface {
	// SendToChannel отправляет сообщение в тему тикета.
	SendToChannel(ctx context.Context, channelID int64, text string, rows ...Row) (MessageRef, error)
	// SendToChat отправляет сообщение в обычный чат (карточки одобрения, отчёты).
	SendToChat(ctx context.Context, chatID int64, text string, rows ...Row) (MessageRef, error)
	// DirectMessage пишет пользователю в личку.
	DirectMessage(ctx context.Context, userID int64, text string) error
	// ClearButtons убирает кнопки у сообщения.
	ClearButtons(ctx context.Context, ref MessageRef) error

	// CreateChannel создаёт тему тикета и возвращает её ID.
	CreateChannel(ctx context.Context, spec ChannelSpec) (int64, error)
	// SetChannelTitle переименовывает тему (отметка «взят» вместо прав на отправку).
	SetChannelTitle(ctx context.Context, channelID int64, title string) error
	// LockChannel закрывает тему для переписки.
	LockChannel(ctx context.Context, channelID int64) error
	// DeleteChannel удаляет тему целиком.
	DeleteChannel(ctx context.Context, channelID int64) error

	// SendDocument выгружает файл в чат.
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
	// DisplayName возвращает отображаемое имя пользователя.
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// ChannelSpec — параметры создаваемой темы.
type ChannelSpec struct {
	Title     string
	Group     string
	IconColor int
}

// Name — название темы с префиксом группы назначения.
func (s ChannelSpec) Name() string {
	name := s.Title
	if s.Group != "" {
		name = "[" + s.Group + "] " + name
	}
	// лимит Telegram на название темы — 128 символов
	if r := []rune(name); len(r) > 128 {
		name = string(r[:128])
	}
	return name
}

// Responder отвечает в тот же чат (и тему), откуда пришла команда.
// Каждое действие пользователя получает ровно один ответ.
type Responder func(ctx context.Context, text string)
