package gateway

import (
	"errors"
	"fmt"

	"serotonyl.ru/support-bot/internal/common"
)

// Права бота, которых может не хватать.
const (
	RightManageTopics   = "управление темами"
	RightSendMessages   = "отправка сообщений"
	RightDeleteMessages = "удаление сообщений"
	RightSendDocuments  = "отправка файлов"
)

// PermissionError — отказ мессенджера из-за прав бота.
// errors.Is(err, common.ErrGatewayPermissionDenied) == true.
type PermissionError struct {
	Op     string
	Right  string
	Detail string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: нет права «%s»: %s", e.Op, e.Right, e.Detail)
}

func (e *PermissionError) Unwrap() error { return common.ErrGatewayPermissionDenied }

// MissingRight достаёт название недостающего права из ошибки.
func MissingRight(err error) (string, bool) {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return pe.Right, true
	}
	return "", false
}

// PermissionHint — текст для пользователя: какого права не хватает боту.
func PermissionHint(err error) string {
	if right, ok := MissingRight(err); ok {
		return fmt.Sprintf("❌ У бота нет права «%s». Попросите администратора группы выдать его.", right)
	}
	return "❌ У бота недостаточно прав для этого действия."
}
