// Package common содержит общие утилиты, используемые во всём проекте:
// русская плюрализация, форматирование сумм и дат.
package common

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

// Pluralize выбирает форму слова для числа n по правилам русского языка.
//
//	Pluralize(1, "монета", "монеты", "монет")  → "монета"
//	Pluralize(3, "монета", "монеты", "монет")  → "монеты"
//	Pluralize(11, "монета", "монеты", "монет") → "монет"
func Pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	// 1, 21, 31, 101 (но НЕ 11, 111)
	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	// 2-4, 22-24 (но НЕ 12-14)
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeCoins возвращает форму слова «монета» для числа n.
func PluralizeCoins(n int64) string {
	return Pluralize(n, "монета", "монеты", "монет")
}

// FormatBalance форматирует сумму: FormatBalance(150) → "150 монет".
func FormatBalance(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizeCoins(amount))
}

// PluralizeMinutes возвращает форму слова «минута».
func PluralizeMinutes(n int64) string {
	return Pluralize(n, "минута", "минуты", "минут")
}

// FormatDuration печатает длительность: "20 минут", "2 часа 5 минут".
func FormatDuration(d time.Duration) string {
	m := int64(d / time.Minute)
	if m <= 0 {
		return d.String()
	}
	if m < 60 {
		return fmt.Sprintf("%d %s", m, PluralizeMinutes(m))
	}
	h, m := m/60, m%60
	out := fmt.Sprintf("%d %s", h, Pluralize(h, "час", "часа", "часов"))
	if m > 0 {
		out += fmt.Sprintf(" %d %s", m, PluralizeMinutes(m))
	}
	return out
}

// FormatDateTime форматирует время как "02.01.2006 15:04" в поясе loc.
// Если loc == nil — используется UTC.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// LoadLocation загружает часовой пояс, при ошибке — UTC+3 (Москва).
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Capitalize делает первую букву заглавной: «тикет уже закрыт» → «Тикет уже закрыт».
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
