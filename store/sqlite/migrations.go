package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Pledge store (SQLite).
var Migrations = migrate.NewGroup("pledge")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_pledge_managers",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pledge_managers (
    id             INTEGER PRIMARY KEY,
    kind           TEXT NOT NULL,
    address        TEXT NOT NULL DEFAULT '',
    name           TEXT NOT NULL DEFAULT '',
    commit_time_ns INTEGER NOT NULL DEFAULT 0,
    reviewer       TEXT NOT NULL DEFAULT '',
    canceled       INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pledge_managers_kind ON pledge_managers (kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pledge_managers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pledge_notes",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pledge_notes (
    id               INTEGER PRIMARY KEY,
    amount           TEXT NOT NULL,
    currency         TEXT NOT NULL,
    owner            INTEGER NOT NULL REFERENCES pledge_managers (id),
    delegates        TEXT NOT NULL DEFAULT '[]',
    proposed_project INTEGER NOT NULL DEFAULT 0,
    commit_time      DATETIME,
    old_note         INTEGER NOT NULL DEFAULT 0,
    payment_state    TEXT NOT NULL DEFAULT 'not_paid',
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pledge_notes_owner ON pledge_notes (owner);
CREATE INDEX IF NOT EXISTS idx_pledge_notes_state ON pledge_notes (payment_state);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pledge_notes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pledge_payments",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pledge_payments (
    id         TEXT PRIMARY KEY,
    note_id    INTEGER NOT NULL REFERENCES pledge_notes (id),
    owner      INTEGER NOT NULL REFERENCES pledge_managers (id),
    address    TEXT NOT NULL DEFAULT '',
    amount     TEXT NOT NULL,
    currency   TEXT NOT NULL,
    state      TEXT NOT NULL DEFAULT 'pending',
    paid_note  INTEGER NOT NULL DEFAULT 0,
    settled_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pledge_payments_state ON pledge_payments (state);
CREATE INDEX IF NOT EXISTS idx_pledge_payments_owner ON pledge_payments (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pledge_payments`)
				return err
			},
		},
	)
}
