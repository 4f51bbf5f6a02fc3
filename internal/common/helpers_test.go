package common

import (
	"errors"
	"testing"
	"time"
)

func TestPluralizeCoins(t *testing.T) {
	cases := map[int64]string{
		0:   "монет",
		1:   "монета",
		2:   "монеты",
		5:   "монет",
		11:  "монет",
		14:  "монет",
		21:  "монета",
		22:  "монеты",
		111: "монет",
		-1:  "монета",
	}
	for n, want := range cases {
		if got := PluralizeCoins(n); got != want {
			t.Errorf("PluralizeCoins(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{
		0:       "0",
		999:     "999",
		2350:    "2 350",
		1000000: "1 000 000",
		-1500:   "-1 500",
	}
	for n, want := range cases {
		if got := FormatNumber(n); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatCoinsAmount(t *testing.T) {
	if got := FormatCoinsAmount(15); got != "+15 монет" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCoinsAmount(-650); got != "-650 монет" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(20 * time.Minute); got != "20 минут" {
		t.Fatalf("got %q", got)
	}
	if got := FormatDuration(time.Minute); got != "1 минута" {
		t.Fatalf("got %q", got)
	}
	if got := FormatDuration(12 * time.Hour); got != "12 часов" {
		t.Fatalf("got %q", got)
	}
	if got := FormatDuration(2*time.Hour + 5*time.Minute); got != "2 часа 5 минут" {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownCategoryIsNotFound(t *testing.T) {
	if !errors.Is(ErrUnknownCategory, ErrNotFound) {
		t.Fatal("ErrUnknownCategory must be NotFound-class")
	}
	if !errors.Is(ErrUnknownAction, ErrNotFound) {
		t.Fatal("ErrUnknownAction must be NotFound-class")
	}
}

func TestCapitalize(t *testing.T) {
	if got := Capitalize("тикет уже закрыт"); got != "Тикет уже закрыт" {
		t.Fatalf("got %q", got)
	}
	if got := Capitalize(""); got != "" {
		t.Fatalf("got %q", got)
	}
}
