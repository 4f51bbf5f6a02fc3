// Package audit пишет доменные события в PostgreSQL. Архив только для
// записи: после рестарта состояние бота из него не восстанавливается.
package audit

import "serotonyl.ru/support-bot/internal/db/postgres"

// Migrations — схема архива.
var Migrations = []postgres.Migration{
	{Version: 1, Name: "audit_events", SQL: migration001Events},
	{Version: 2, Name: "audit_payouts", SQL: migration002Payouts},
	{Version: 3, Name: "audit_tickets", SQL: migration003Tickets},
}

var migration001Events = `
CREATE TABLE IF NOT EXISTS audit_events (
    id UUID PRIMARY KEY,
    event_type VARCHAR(64) NOT NULL,
    channel_id BIGINT,
    actor_id BIGINT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at DESC);
`

var migration002Payouts = `
CREATE TABLE IF NOT EXISTS audit_payouts (
    id BIGSERIAL PRIMARY KEY,
    event_id UUID UNIQUE NOT NULL REFERENCES audit_events(id),
    staff_id BIGINT NOT NULL,
    amount BIGINT NOT NULL,
    balance_after BIGINT NOT NULL,
    external_ref TEXT NOT NULL,
    approver_id BIGINT NOT NULL,
    paid_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_payouts_staff ON audit_payouts(staff_id);
`

var migration003Tickets = `
CREATE TABLE IF NOT EXISTS audit_tickets (
    channel_id BIGINT NOT NULL,
    event_id UUID UNIQUE NOT NULL REFERENCES audit_events(id),
    creator_id BIGINT NOT NULL,
    category VARCHAR(64) NOT NULL,
    beneficiary BIGINT,
    admin_override BOOLEAN DEFAULT FALSE,
    forced BOOLEAN DEFAULT FALSE,
    transcript_ref VARCHAR(80),
    finalized_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tickets_creator ON audit_tickets(creator_id);
`
