package middleware

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic вызывается через defer в начале обработки апдейта.
// onPanic (если задан) выполняется после восстановления: так роутер
// успевает ответить пользователю, если обработчик упал до ответа.
func RecoverFromPanic(onPanic ...func()) {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"component": "panic_recovery",
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("ПАНИКА в обработчике — восстановлено")

		for _, f := range onPanic {
			f()
		}
	}
}
