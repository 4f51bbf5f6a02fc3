// Package main — точка входа бота поддержки.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"serotonyl.ru/support-bot/internal/app"
	"serotonyl.ru/support-bot/internal/config"
)

// version подставляется при сборке: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Бот завершился с ошибкой")
	}
}

func run() error {
	var opts config.Options
	flagSet := pflag.NewFlagSet("support-bot", pflag.ContinueOnError)
	flagSet.StringVar(&opts.EnvFile, "env-file", ".env", "путь к .env (отсутствующий файл пропускается)")
	flagSet.StringVar(&opts.CategoriesFile, "categories", "", "YAML с категориями тикетов (перекрывает TICKET_CATEGORIES_FILE)")
	showVersion := flagSet.Bool("version", false, "показать версию и выйти")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("support-bot", version)
		return nil
	}

	// Настраиваем логирование
	setupLogging()

	log.Info("=== Бот запускается ===")

	cfg, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	// Устанавливаем уровень логирования из конфига
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по Ctrl+C / docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать приложение: %w", err)
	}
	defer application.Close()

	log.WithFields(log.Fields{
		"support_chat": cfg.SupportChatID,
		"staff":        len(cfg.StaffIDs),
		"admins":       len(cfg.AdminIDs),
		"categories":   len(cfg.Categories.Categories),
		"audit":        cfg.AuditEnabled,
	}).Info("=== Бот готов к работе ===")

	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("=== Бот остановлен ===")
	return nil
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
