package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the DDL for import sessions and their transactions. Money
// columns are BIGINT minor units.
const Schema = `
CREATE TABLE IF NOT EXISTS import_sessions (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    bank_account_id  TEXT NOT NULL,
    fiscal_period_id TEXT NOT NULL,
    source_name      TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'draft',
    txn_count        INTEGER NOT NULL DEFAULT 0,
    mapped_count     INTEGER NOT NULL DEFAULT 0,
    unmapped_count   INTEGER NOT NULL DEFAULT 0,
    staging          JSONB,
    production       JSONB,
    notes            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    posted_at        TIMESTAMPTZ,
    archived_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_import_sessions_tenant
    ON import_sessions (tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS imported_transactions (
    id                    TEXT PRIMARY KEY,
    session_id            TEXT NOT NULL REFERENCES import_sessions(id),
    tenant_id             TEXT NOT NULL,
    txn_date              TIMESTAMPTZ NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    reference             TEXT NOT NULL DEFAULT '',
    category              TEXT NOT NULL DEFAULT '',
    amount_cents          BIGINT NOT NULL,
    running_balance_cents BIGINT NOT NULL DEFAULT 0,
    has_balance           BOOLEAN NOT NULL DEFAULT FALSE,
    mapping_status        TEXT NOT NULL DEFAULT 'unmapped',
    debit_account_id      TEXT NOT NULL DEFAULT '',
    credit_account_id     TEXT NOT NULL DEFAULT '',
    confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
    rule_applied          TEXT NOT NULL DEFAULT '',
    journal_entry_id      TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_imported_txns_session
    ON imported_transactions (session_id, txn_date, id);
`

// EnsureSchema creates the session tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create session schema: %w", err)
	}
	return nil
}
