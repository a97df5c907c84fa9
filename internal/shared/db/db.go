package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// schema do ledger; idempotente, roda a cada start do chain-node
const schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
	user_address       TEXT PRIMARY KEY,
	balance            NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	reserved           NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (reserved >= 0),
	pending_request_id TEXT UNIQUE,
	pending_kind       SMALLINT,
	pending_leverage   BIGINT,
	pending_stake      NUMERIC(20,0),
	pending_origin     BIGINT,
	pending_target     BIGINT,
	pending_placed_at  TIMESTAMPTZ,
	version            BIGINT NOT NULL DEFAULT 1,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (reserved <= balance)
);

CREATE TABLE IF NOT EXISTS ledger_settlements (
	settlement_key TEXT PRIMARY KEY,
	user_address   TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             BIGSERIAL PRIMARY KEY,
	user_address   TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	amount         NUMERIC(20,0) NOT NULL,
	ref            TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_address, id);
`

// Migrate cria as tabelas do ledger caso ainda não existam.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}
