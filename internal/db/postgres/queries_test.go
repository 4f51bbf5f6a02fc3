package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB помнит применённые версии и выполненные запросы.
type fakeDB struct {
	applied map[int]bool
	execs   []string
	failSQL string
}

type fakeTx struct {
	pgx.Tx // неиспользуемые методы не реализованы
	db      *fakeDB
	pending []int
	done    bool
}

type boolRow bool

func (r boolRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = bool(r)
	return nil
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: d}, nil
}

func (t *fakeTx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return boolRow(t.db.applied[args[0].(int)])
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.db.failSQL != "" && strings.Contains(sql, t.db.failSQL) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	if strings.HasPrefix(sql, "INSERT INTO schema_migrations") {
		t.pending = append(t.pending, args[0].(int))
	}
	t.db.execs = append(t.db.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	for _, v := range t.pending {
		t.db.applied[v] = true
	}
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

func TestMigrateAppliesOnce(t *testing.T) {
	db := &fakeDB{applied: map[int]bool{}}
	migrations := []Migration{
		{Version: 1, Name: "events", SQL: "CREATE TABLE a ()"},
		{Version: 2, Name: "payouts", SQL: "CREATE TABLE b ()"},
	}

	if err := Migrate(context.Background(), db, migrations); err != nil {
		t.Fatal(err)
	}
	if !db.applied[1] || !db.applied[2] {
		t.Fatalf("applied = %v", db.applied)
	}

	before := len(db.execs)
	if err := Migrate(context.Background(), db, migrations); err != nil {
		t.Fatal(err)
	}
	// второй прогон — только CREATE TABLE IF NOT EXISTS schema_migrations
	if len(db.execs) != before+1 {
		t.Fatalf("re-run executed %d statements", len(db.execs)-before)
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	db := &fakeDB{applied: map[int]bool{}, failSQL: "CREATE TABLE b"}
	err := Migrate(context.Background(), db, []Migration{
		{Version: 1, Name: "events", SQL: "CREATE TABLE a ()"},
		{Version: 2, Name: "payouts", SQL: "CREATE TABLE b ()"},
		{Version: 3, Name: "later", SQL: "CREATE TABLE c ()"},
	})
	if err == nil || !strings.Contains(err.Error(), "миграция 2") {
		t.Fatalf("err = %v", err)
	}
	if db.applied[2] || db.applied[3] {
		t.Fatalf("failed migration must not be recorded: %v", db.applied)
	}
}
