package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"serotonyl.ru/support-bot/internal/actions"
)

// Category — категория тикета: куда попадает тема и сколько стоит закрытие.
type Category struct {
	Key    string `yaml:"key"`
	Title  string `yaml:"title"`
	Group  string `yaml:"group"`  // группа назначения (префикс названия темы)
	Reward int64  `yaml:"reward"` // награда сотруднику за закрытый тикет
	// Цвет иконки темы в Telegram (одно из допустимых значений API), 0 — по умолчанию
	IconColor int `yaml:"icon_color"`
}

// Catalog — фиксированный набор категорий.
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCatalog — встроенный каталог, если файл не задан.
func DefaultCatalog() *Catalog {
	return &Catalog{Categories: []Category{
		{Key: "general", Title: "Общая поддержка", Group: "Поддержка", Reward: 15, IconColor: 7322096},
		{Key: "purchase", Title: "Покупки", Group: "Магазин", Reward: 25, IconColor: 16766590},
		{Key: "report", Title: "Жалоба на игрока", Group: "Модерация", Reward: 20, IconColor: 16749490},
		{Key: "appeal", Title: "Апелляция", Group: "Модерация", Reward: 30, IconColor: 13338331},
	}}
}

// LoadCatalog читает каталог категорий из YAML.
//
//	categories:
//	  - key: general
//	    title: Общая поддержка
//	    group: Поддержка
//	    reward: 15
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога категорий: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog разбирает YAML и проверяет ключи: уникальность и то, что
// кнопка панели с этим ключом помещается в callback-данные и разбирается.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("разбор каталога категорий: %w", err)
	}
	seen := make(map[string]bool, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		cat.Key = strings.ToLower(strings.TrimSpace(cat.Key))
		if cat.Key == "" {
			return nil, fmt.Errorf("категория #%d без ключа", i+1)
		}
		if err := checkButtonKey(cat.Key); err != nil {
			return nil, err
		}
		if seen[cat.Key] {
			return nil, fmt.Errorf("категория %q указана дважды", cat.Key)
		}
		if cat.Reward < 0 {
			return nil, fmt.Errorf("категория %q: отрицательная награда", cat.Key)
		}
		if cat.Title == "" {
			cat.Title = cat.Key
		}
		seen[cat.Key] = true
	}
	return &c, nil
}

func checkButtonKey(key string) error {
	data := actions.OpenTicket(key)
	if len(data) > actions.MaxDataLen {
		return fmt.Errorf("категория %q: ключ длиннее %d байт callback-данных", key, actions.MaxDataLen-len(actions.OpenTicket("")))
	}
	a, err := actions.Decode(data)
	if err != nil || a.Category != key {
		return fmt.Errorf("категория %q: ключ не должен содержать «:»", key)
	}
	return nil
}

// Lookup ищет категорию по ключу (без учёта регистра).
func (c *Catalog) Lookup(key string) (Category, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, cat := range c.Categories {
		if cat.Key == key {
			return cat, true
		}
	}
	return Category{}, false
}

// Reward — сумма награды за категорию; неизвестные категории дают 0.
func (c *Catalog) Reward(key string) int64 {
	cat, ok := c.Lookup(key)
	if !ok {
		return 0
	}
	return cat.Reward
}

// Keys — ключи в порядке каталога.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		keys = append(keys, cat.Key)
	}
	return keys
}
