// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим подтягивается .env (если есть) через godotenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// Супергруппа с темами: каждый тикет — отдельная тема
	SupportChatID int64 `envconfig:"SUPPORT_CHAT_ID" required:"true"`
	// Чат, куда приходят карточки на одобрение наград и выплат
	ApprovalChatID int64 `envconfig:"APPROVAL_CHAT_ID" required:"true"`
	// Чат-архив для HTML-транскриптов
	TranscriptChatID int64 `envconfig:"TRANSCRIPT_CHAT_ID" required:"true"`

	// --- Роли ---
	StaffIDsRaw string  `envconfig:"STAFF_IDS" required:"true"`
	AdminIDsRaw string  `envconfig:"ADMIN_IDS" required:"true"`
	StaffIDs    []int64 `envconfig:"-"` // заполним вручную
	AdminIDs    []int64 `envconfig:"-"`

	// --- Тикеты ---
	TicketUnclaimTimeout time.Duration `envconfig:"TICKET_UNCLAIM_TIMEOUT" default:"20m"`
	TicketFinalizeGrace  time.Duration `envconfig:"TICKET_FINALIZE_GRACE" default:"5s"`
	TicketStaleAfter     time.Duration `envconfig:"TICKET_STALE_AFTER" default:"12h"`
	TicketCategoriesFile string        `envconfig:"TICKET_CATEGORIES_FILE" default:""`
	Categories           *Catalog      `envconfig:"-"`

	// --- Выплаты ---
	PayoutMin int64 `envconfig:"PAYOUT_MIN" default:"300"`
	PayoutMax int64 `envconfig:"PAYOUT_MAX" default:"5000"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- HTTP (read-only статус), пусто — выключен ---
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// --- Аудит в PostgreSQL (только запись, состояние бота остаётся в памяти) ---
	AuditEnabled bool   `envconfig:"AUDIT_ENABLED" default:"false"`
	DBHost       string `envconfig:"DB_HOST" default:"postgres"`
	DBPort       int    `envconfig:"DB_PORT" default:"5432"`
	DBUser       string `envconfig:"DB_USER" default:"botuser"`
	DBPassword   string `envconfig:"DB_PASSWORD" default:""`
	DBName       string `envconfig:"DB_NAME" default:"support_bot"`
	DBSSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns   int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns   int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	// --- Jobs (cron) ---
	JobsStatsCron string `envconfig:"JOBS_STATS_CRON" default:"0 9 * * *"`
	JobsStaleCron string `envconfig:"JOBS_STALE_CRON" default:"0 * * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin — входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	return containsID(c.AdminIDs, userID)
}

// IsStaff — сотрудник поддержки. Админы считаются сотрудниками.
func (c *Config) IsStaff(userID int64) bool {
	return containsID(c.StaffIDs, userID) || c.IsAdmin(userID)
}

func (c *Config) Validate() error {
	if c.SupportChatID == 0 {
		return errors.New("SUPPORT_CHAT_ID не задан или равен 0")
	}
	if c.ApprovalChatID == 0 || c.TranscriptChatID == 0 {
		return errors.New("APPROVAL_CHAT_ID/TRANSCRIPT_CHAT_ID не заданы")
	}
	if len(c.AdminIDs) == 0 {
		return errors.New("ADMIN_IDS пуст")
	}
	if c.TicketUnclaimTimeout <= 0 {
		return errors.New("TICKET_UNCLAIM_TIMEOUT должен быть > 0")
	}
	if c.TicketFinalizeGrace < 0 {
		return errors.New("TICKET_FINALIZE_GRACE не может быть отрицательным")
	}
	if c.PayoutMin <= 0 || c.PayoutMax < c.PayoutMin {
		return fmt.Errorf("некорректные PAYOUT_MIN/PAYOUT_MAX: %d/%d", c.PayoutMin, c.PayoutMax)
	}
	if c.BotMaxInflight <= 0 {
		return errors.New("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return errors.New("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.AuditEnabled && (c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns) {
		return errors.New("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.Categories == nil || len(c.Categories.Categories) == 0 {
		return errors.New("каталог категорий пуст")
	}
	return nil
}

// Options — параметры запуска из командной строки.
type Options struct {
	EnvFile        string
	CategoriesFile string
}

// Load читает .env и переменные окружения и заполняет структуру Config.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", opts.EnvFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	var err error
	if cfg.StaffIDs, err = parseInt64CSV(cfg.StaffIDsRaw); err != nil {
		return nil, fmt.Errorf("STAFF_IDS parse: %w", err)
	}
	if cfg.AdminIDs, err = parseInt64CSV(cfg.AdminIDsRaw); err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}

	categoriesFile := cfg.TicketCategoriesFile
	if opts.CategoriesFile != "" {
		categoriesFile = opts.CategoriesFile
	}
	if categoriesFile == "" {
		cfg.Categories = DefaultCatalog()
	} else if cfg.Categories, err = LoadCatalog(categoriesFile); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
