package httpapi

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// registerMiddlewares — восстановление после паники и лог запросов.
func registerMiddlewares(app *fiber.App) {
	app.Use(recoverMiddleware)
	app.Use(requestLogger)
}

func recoverMiddleware(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"component": "http",
				"panic":     fmt.Sprintf("%v", r),
				"stack":     string(debug.Stack()),
			}).Error("ПАНИКА в HTTP-обработчике — восстановлено")
			err = fiber.ErrInternalServerError
		}
	}()
	return c.Next()
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	log.WithFields(log.Fields{
		"component": "http",
		"method":    c.Method(),
		"path":      c.Path(),
		"status":    c.Response().StatusCode(),
		"duration":  time.Since(start).String(),
	}).Debug("HTTP запрос")
	return err
}

// errorHandler отдаёт ошибки в едином формате {"error": {...}}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("HTTP запрос завершился ошибкой")
	}
	return c.Status(code).JSON(fiber.Map{"error": fiber.Map{
		"code":    code,
		"message": err.Error(),
	}})
}
