// Package audit — repository.go выполняет вставки в таблицы архива.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/support-bot/internal/events"
)

// Execer — часть pgxpool.Pool, нужная репозиторию.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository пишет события в PostgreSQL.
type Repository struct {
	db Execer
}

// NewRepository создаёт репозиторий аудита.
func NewRepository(db Execer) *Repository {
	return &Repository{db: db}
}

// InsertEvent записывает событие. Повтор того же ID игнорируется.
func (r *Repository) InsertEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", e.Type, err)
	}

	var channelID any
	if e.ChannelID != 0 {
		channelID = e.ChannelID
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_events (id, event_type, channel_id, actor_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, string(e.Type), channelID, e.ActorID, e.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("ошибка записи события %s: %w", e.Type, err)
	}
	return nil
}

// InsertPayout записывает одобренную выплату.
func (r *Repository) InsertPayout(ctx context.Context, e events.Event, p events.LedgerPayload) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_payouts (event_id, staff_id, amount, balance_after, external_ref, approver_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, e.ID, p.StaffID, p.Amount, p.Balance, p.ExternalRef, e.ActorID, e.Timestamp)
	if err != nil {
		return fmt.Errorf("ошибка записи выплаты: %w", err)
	}
	return nil
}

// InsertTicket записывает финализированный тикет.
func (r *Repository) InsertTicket(ctx context.Context, e events.Event, p events.TicketPayload) error {
	var beneficiary any
	if p.Beneficiary != 0 {
		beneficiary = p.Beneficiary
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_tickets (channel_id, event_id, creator_id, category, beneficiary, admin_override, forced, transcript_ref, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`, e.ChannelID, e.ID, p.CreatorID, p.Category, beneficiary, p.AdminOverride, p.Forced, p.TranscriptRef, e.Timestamp)
	if err != nil {
		return fmt.Errorf("ошибка записи тикета: %w", err)
	}
	return nil
}
