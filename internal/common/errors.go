// Package common — errors.go определяет ошибки, общие для тикетов,
// леджера и согласования выплат.
// Обработчики различают их через errors.Is и отвечают пользователю
// понятным текстом.
package common

import "errors"

// Ошибки тикетов
var (
	// ErrDuplicateOpenTicket — у автора уже есть открытый тикет
	ErrDuplicateOpenTicket = errors.New("у вас уже есть открытый тикет")
	// ErrAlreadyClaimed — тикет уже взят (или закрыт и заморожен)
	ErrAlreadyClaimed = errors.New("тикет уже взят другим сотрудником")
	// ErrNotClaimer — действие доступно только тому, кто взял тикет
	ErrNotClaimer = errors.New("тикет взят другим сотрудником")
	// ErrAlreadySoftClosed — тикет уже закрыт
	ErrAlreadySoftClosed = errors.New("тикет уже закрыт")
	// ErrNotSoftClosed — финализировать можно только закрытый тикет
	ErrNotSoftClosed = errors.New("тикет ещё не закрыт")
	// ErrNotFound — тикет/запрос не найден или уже завершён
	ErrNotFound = errors.New("не найдено")
	// ErrUnknownCategory — категории нет в каталоге
	ErrUnknownCategory = errors.Join(ErrNotFound, errors.New("неизвестная категория"))
	// ErrUnknownAction — нераспознанная кнопка/действие
	ErrUnknownAction = errors.Join(ErrNotFound, errors.New("неизвестное действие"))
)

// Ошибки леджера и выплат
var (
	// ErrInvalidAmount — сумма вне допустимых границ
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrInsufficientBalance — на балансе недостаточно монет
	ErrInsufficientBalance = errors.New("недостаточно монет на балансе")
	// ErrBalanceChanged — баланс уменьшился между запросом и одобрением
	ErrBalanceChanged = errors.New("баланс изменился, выплата невозможна")
)

// Ошибки доступа
var (
	// ErrForbidden — у пользователя нет нужной роли
	ErrForbidden = errors.New("недостаточно прав")
	// ErrGatewayPermissionDenied — у бота нет прав в Telegram на действие
	ErrGatewayPermissionDenied = errors.New("у бота нет прав на это действие")
)
