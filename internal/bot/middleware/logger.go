// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, thread_id, username, текст (первые 50 символов).
func LogMessage(message *telego.Message) {
	if message == nil {
		return
	}

	fields := log.Fields{
		"chat_id":   message.Chat.ID,
		"thread_id": message.MessageThreadID,
		"text":      truncate(message.Text, 50),
	}
	if message.From != nil {
		fields["user_id"] = message.From.ID
		fields["username"] = message.From.Username
	}
	log.WithFields(fields).Debug("Входящее сообщение")
}

// LogCallback логирует нажатие inline-кнопки.
func LogCallback(query *telego.CallbackQuery) {
	if query == nil {
		return
	}
	log.WithFields(log.Fields{
		"user_id":  query.From.ID,
		"username": query.From.Username,
		"data":     query.Data,
	}).Debug("Нажатие кнопки")
}

// truncate режет по рунам, чтобы не ломать кириллицу.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
