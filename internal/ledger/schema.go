package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the production ledger DDL. Amounts are BIGINT minor units.
const Schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	fiscal_period_id    TEXT NOT NULL,
	journal_code        TEXT NOT NULL,
	reference           TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	source              TEXT NOT NULL,
	transaction_date    TIMESTAMPTZ NOT NULL,
	posting_date        TIMESTAMPTZ NOT NULL,
	created_by          TEXT NOT NULL,
	reversal_of         TEXT NOT NULL DEFAULT '',
	bank_transaction_id TEXT NOT NULL DEFAULT '',
	import_session_id   TEXT NOT NULL DEFAULT '',
	notes               TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_tenant_source
	ON journal_entries (tenant_id, source, created_at);

-- Idempotency backstop: one posted bank-import journal per bank transaction
-- within a session.
CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_bank_txn
	ON journal_entries (tenant_id, import_session_id, bank_transaction_id)
	WHERE source = 'bank_import' AND status = 'posted' AND bank_transaction_id <> '';

CREATE TABLE IF NOT EXISTS journal_lines (
	id               TEXT PRIMARY KEY,
	journal_entry_id TEXT NOT NULL REFERENCES journal_entries(id),
	line_no          INT NOT NULL,
	account_id       TEXT NOT NULL,
	account_code     TEXT NOT NULL,
	account_name     TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	debit            BIGINT NOT NULL DEFAULT 0,
	credit           BIGINT NOT NULL DEFAULT 0,
	currency         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_lines_entry ON journal_lines (journal_entry_id);

CREATE TABLE IF NOT EXISTS general_ledger (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	journal_entry_id TEXT NOT NULL REFERENCES journal_entries(id),
	journal_line_id  TEXT NOT NULL,
	account_id       TEXT NOT NULL,
	account_code     TEXT NOT NULL,
	account_name     TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	debit            BIGINT NOT NULL DEFAULT 0,
	credit           BIGINT NOT NULL DEFAULT 0,
	cumulative_balance BIGINT NOT NULL DEFAULT 0,
	currency         TEXT NOT NULL,
	transaction_date TIMESTAMPTZ NOT NULL,
	posting_date     TIMESTAMPTZ NOT NULL,
	fiscal_period_id TEXT NOT NULL,
	source           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_general_ledger_account
	ON general_ledger (tenant_id, account_id, transaction_date);
CREATE INDEX IF NOT EXISTS idx_general_ledger_journal
	ON general_ledger (journal_entry_id);

CREATE TABLE IF NOT EXISTS account_balances (
	tenant_id        TEXT NOT NULL,
	account_id       TEXT NOT NULL,
	fiscal_period_id TEXT NOT NULL,
	balance          BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, account_id, fiscal_period_id)
);
`

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensuring ledger schema: %w", err)
	}
	return nil
}
