package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/bank-ledger/internal/money"
)

// Schema holds the sqlite DDL for the staging area. Journal lines are
// stored as a JSON column; there are always exactly two.
const Schema = `
CREATE TABLE IF NOT EXISTS staging_journal_entries (
	id                    TEXT PRIMARY KEY,
	session_id            TEXT NOT NULL,
	tenant_id             TEXT NOT NULL,
	bank_transaction_id   TEXT NOT NULL,
	fiscal_period_id      TEXT NOT NULL,
	transaction_date      TIMESTAMP NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	reference             TEXT NOT NULL DEFAULT '',
	lines                 TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'staged',
	production_journal_id TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staging_journal_session
	ON staging_journal_entries(session_id, transaction_date, id);

CREATE TABLE IF NOT EXISTS staging_ledger_entries (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	tenant_id          TEXT NOT NULL,
	journal_entry_id   TEXT NOT NULL,
	account_id         TEXT NOT NULL,
	account_code       TEXT NOT NULL,
	account_name       TEXT NOT NULL DEFAULT '',
	fiscal_period_id   TEXT NOT NULL,
	transaction_date   TIMESTAMP NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	debit_cents        INTEGER NOT NULL DEFAULT 0,
	credit_cents       INTEGER NOT NULL DEFAULT 0,
	cumulative_balance INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'staged',
	production_gl_id   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staging_ledger_session
	ON staging_ledger_entries(session_id, account_code, transaction_date, id);
`

// Store persists the staging area in sqlite. Sqlite serializes writers,
// which is the exclusivity the builder relies on when it rebuilds a session.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the staging tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create staging schema: %w", err)
	}
	return nil
}

// ReplaceSession atomically swaps a session's staging rows for a freshly
// built set. Rebuilding is recompute-from-scratch, never an in-place edit.
func (s *Store) ReplaceSession(ctx context.Context, tenantID, sessionID string, journals []*JournalEntry, glRows []*LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staging_journal_entries WHERE session_id = ? AND tenant_id = ?`, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to clear staging journals: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staging_ledger_entries WHERE session_id = ? AND tenant_id = ?`, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to clear staging ledger rows: %w", err)
	}

	for _, j := range journals {
		lines, err := json.Marshal(j.Lines)
		if err != nil {
			return fmt.Errorf("failed to encode lines for %s: %w", j.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staging_journal_entries (id, session_id, tenant_id, bank_transaction_id, fiscal_period_id,
				transaction_date, description, reference, lines, status, production_journal_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.SessionID, j.TenantID, j.BankTransactionID, j.FiscalPeriodID,
			j.TransactionDate, j.Description, j.Reference, string(lines), string(j.Status), j.ProductionJournalID, j.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert staging journal %s: %w", j.ID, err)
		}
	}

	for _, g := range glRows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staging_ledger_entries (id, session_id, tenant_id, journal_entry_id, account_id, account_code,
				account_name, fiscal_period_id, transaction_date, description, debit_cents, credit_cents,
				cumulative_balance, status, production_gl_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.SessionID, g.TenantID, g.JournalEntryID, g.AccountID, g.AccountCode,
			g.AccountName, g.FiscalPeriodID, g.TransactionDate, g.Description, int64(g.Debit), int64(g.Credit),
			int64(g.CumulativeBalance), string(g.Status), g.ProductionGLID, g.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert staging ledger row %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staging rows: %w", err)
	}
	return nil
}

// ListJournals returns a session's staging journal entries in chronological
// order.
func (s *Store) ListJournals(ctx context.Context, tenantID, sessionID string) ([]*JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tenant_id, bank_transaction_id, fiscal_period_id, transaction_date,
		       description, reference, lines, status, production_journal_id, created_at
		FROM staging_journal_entries
		WHERE session_id = ? AND tenant_id = ?
		ORDER BY transaction_date, id`, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging journals: %w", err)
	}
	defer rows.Close()

	var journals []*JournalEntry
	for rows.Next() {
		var j JournalEntry
		var status, lines string
		if err := rows.Scan(&j.ID, &j.SessionID, &j.TenantID, &j.BankTransactionID, &j.FiscalPeriodID,
			&j.TransactionDate, &j.Description, &j.Reference, &lines, &status, &j.ProductionJournalID, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staging journal: %w", err)
		}
		j.Status = Status(status)
		if err := json.Unmarshal([]byte(lines), &j.Lines); err != nil {
			return nil, fmt.Errorf("failed to decode lines for %s: %w", j.ID, err)
		}
		journals = append(journals, &j)
	}
	return journals, rows.Err()
}

// ListLedgerRows returns a session's staging GL rows ordered by account then
// date, the order cumulative balances were computed in.
func (s *Store) ListLedgerRows(ctx context.Context, tenantID, sessionID string) ([]*LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tenant_id, journal_entry_id, account_id, account_code, account_name,
		       fiscal_period_id, transaction_date, description, debit_cents, credit_cents,
		       cumulative_balance, status, production_gl_id, created_at
		FROM staging_ledger_entries
		WHERE session_id = ? AND tenant_id = ?
		ORDER BY account_code, transaction_date, id`, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging ledger rows: %w", err)
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var g LedgerEntry
		var status string
		var debit, credit, cum int64
		if err := rows.Scan(&g.ID, &g.SessionID, &g.TenantID, &g.JournalEntryID, &g.AccountID, &g.AccountCode,
			&g.AccountName, &g.FiscalPeriodID, &g.TransactionDate, &g.Description, &debit, &credit,
			&cum, &status, &g.ProductionGLID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staging ledger row: %w", err)
		}
		g.Status = Status(status)
		g.Debit = money.Cents(debit)
		g.Credit = money.Cents(credit)
		g.CumulativeBalance = money.Cents(cum)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// MarkPosted records production back-references after promotion.
// journalLinks maps staging journal id to production journal id.
func (s *Store) MarkPosted(ctx context.Context, tenantID, sessionID string, journalLinks map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for stagingID, prodID := range journalLinks {
		if _, err := tx.ExecContext(ctx, `
			UPDATE staging_journal_entries SET status = ?, production_journal_id = ?
			WHERE id = ? AND session_id = ? AND tenant_id = ?`,
			string(StatusPosted), prodID, stagingID, sessionID, tenantID); err != nil {
			return fmt.Errorf("failed to mark staging journal %s posted: %w", stagingID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE staging_ledger_entries SET status = ?, production_gl_id = 'gl_' || ? || '_' || rowid
			WHERE journal_entry_id = ? AND session_id = ? AND tenant_id = ?`,
			string(StatusPosted), prodID, stagingID, sessionID, tenantID); err != nil {
			return fmt.Errorf("failed to mark staging ledger rows posted: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit posted marks: %w", err)
	}
	return nil
}

// ArchiveSession flags every posted staging row for a session as archived.
func (s *Store) ArchiveSession(ctx context.Context, tenantID, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE staging_journal_entries SET status = ?
		WHERE session_id = ? AND tenant_id = ? AND status = ?`,
		string(StatusArchived), sessionID, tenantID, string(StatusPosted))
	if err != nil {
		return 0, fmt.Errorf("failed to archive staging journals: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, `
		UPDATE staging_ledger_entries SET status = ?
		WHERE session_id = ? AND tenant_id = ? AND status = ?`,
		string(StatusArchived), sessionID, tenantID, string(StatusPosted)); err != nil {
		return 0, fmt.Errorf("failed to archive staging ledger rows: %w", err)
	}
	return int(n), nil
}

// PurgeSession removes a session's staging rows entirely. Used by cleanup
// for cancelled or long-archived sessions.
func (s *Store) PurgeSession(ctx context.Context, tenantID, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staging_journal_entries WHERE session_id = ? AND tenant_id = ?`, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to purge staging journals: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staging_ledger_entries WHERE session_id = ? AND tenant_id = ?`, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to purge staging ledger rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}
	return nil
}
