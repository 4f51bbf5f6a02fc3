// Package postgres — queries.go применяет встроенные в код миграции.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// Migration — одна SQL-миграция. Версии применяются по возрастанию.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// TxBeginner — то, что умеет открыть транзакцию (pgxpool.Pool).
type TxBeginner interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate создаёт schema_migrations и применяет недостающие миграции.
func Migrate(ctx context.Context, db TxBeginner, migrations []Migration) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, db, m.Version, m.SQL)
		if err != nil {
			return fmt.Errorf("миграция %d (%s): %w", m.Version, m.Name, err)
		}
		if applied {
			log.WithField("version", m.Version).Infof("Миграция %s применена", m.Name)
		}
	}
	return nil
}

// ExecMigrationSQL выполняет одну миграцию в транзакции и записывает её
// версию. Уже применённая миграция пропускается (applied = false).
func ExecMigrationSQL(ctx context.Context, db TxBeginner, version int, sql string) (applied bool, err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// после Commit откат ничего не делает
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
