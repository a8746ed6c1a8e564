package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bank-ledger/internal/money"
)

// ErrJournalNotFound is returned when a journal entry does not exist for the
// tenant.
var ErrJournalNotFound = errors.New("journal entry not found")

// PostgresStore is the production ledger backed by PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a ledger store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const maxTxRetries = 3

// withSerializableTx runs fn inside a SERIALIZABLE transaction, retrying on
// serialization failures (SQLSTATE 40001).
func (s *PostgresStore) withSerializableTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("transaction failed after %d retries: %w", maxTxRetries, lastErr)
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PostJournals writes a batch of journal entries, their lines, and the
// derived general-ledger rows in one atomic transaction. Every entry must
// already be balanced; running balances are read from committed data inside
// the transaction, never from a cross-call accumulator.
func (s *PostgresStore) PostJournals(ctx context.Context, entries []*JournalEntry) error {
	for _, e := range entries {
		if !e.IsBalanced() {
			return fmt.Errorf("journal %s is not balanced: debits %s != credits %s",
				e.ID, e.TotalDebits(), e.TotalCredits())
		}
		if len(e.Lines) < 2 {
			return fmt.Errorf("journal %s has fewer than two lines", e.ID)
		}
	}

	return s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		for _, e := range entries {
			if err := insertJournal(ctx, tx, e, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertJournal(ctx context.Context, tx pgx.Tx, e *JournalEntry, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO journal_entries (
			id, tenant_id, fiscal_period_id, journal_code, reference, description,
			status, source, transaction_date, posting_date, created_by, reversal_of,
			bank_transaction_id, import_session_id, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
	`, e.ID, e.TenantID, e.FiscalPeriodID, e.JournalCode, e.Reference, e.Description,
		string(StatusPosted), string(e.Source), e.TransactionDate, now, e.CreatedBy,
		e.ReversalOf, e.BankTransactionID, e.ImportSessionID, e.Notes, now)
	if err != nil {
		return fmt.Errorf("inserting journal %s: %w", e.ID, err)
	}

	for i, l := range e.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO journal_lines (
				id, journal_entry_id, line_no, account_id, account_code,
				account_name, description, debit, credit, currency
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, l.ID, e.ID, i, l.AccountID, l.AccountCode, l.AccountName,
			l.Description, int64(l.Debit), int64(l.Credit), l.Currency); err != nil {
			return fmt.Errorf("inserting line %s: %w", l.ID, err)
		}

		// Advance the running balance for (account, period) and stamp the
		// ledger row with the post-application balance.
		var balance int64
		err := tx.QueryRow(ctx, `
			INSERT INTO account_balances (tenant_id, account_id, fiscal_period_id, balance)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (tenant_id, account_id, fiscal_period_id)
			DO UPDATE SET balance = account_balances.balance + $4
			RETURNING balance
		`, e.TenantID, l.AccountID, e.FiscalPeriodID, int64(l.Debit-l.Credit)).Scan(&balance)
		if err != nil {
			return fmt.Errorf("updating balance for account %s: %w", l.AccountID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO general_ledger (
				id, tenant_id, journal_entry_id, journal_line_id, account_id,
				account_code, account_name, description, debit, credit,
				cumulative_balance, currency, transaction_date, posting_date,
				fiscal_period_id, source, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, fmt.Sprintf("gl_%s_%d", e.ID, i), e.TenantID, e.ID, l.ID, l.AccountID,
			l.AccountCode, l.AccountName, l.Description, int64(l.Debit), int64(l.Credit),
			balance, l.Currency, e.TransactionDate, now, e.FiscalPeriodID,
			string(e.Source), now); err != nil {
			return fmt.Errorf("inserting ledger row for line %s: %w", l.ID, err)
		}
	}
	return nil
}

// GetJournal loads one journal entry with its lines.
func (s *PostgresStore) GetJournal(ctx context.Context, tenantID, journalID string) (*JournalEntry, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, fiscal_period_id, journal_code, reference, description,
		       status, source, transaction_date, posting_date, created_by, reversal_of,
		       bank_transaction_id, import_session_id, notes, created_at, updated_at
		FROM journal_entries
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, journalID)

	e, err := scanJournal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJournalNotFound
		}
		return nil, fmt.Errorf("loading journal %s: %w", journalID, err)
	}

	if err := s.attachLines(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// FindBankImportJournal returns the posted journal for a bank transaction in
// an import session, or nil when none exists. This is the promoter's
// idempotency check.
func (s *PostgresStore) FindBankImportJournal(ctx context.Context, tenantID, sessionID, bankTxnID string) (*JournalEntry, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, fiscal_period_id, journal_code, reference, description,
		       status, source, transaction_date, posting_date, created_by, reversal_of,
		       bank_transaction_id, import_session_id, notes, created_at, updated_at
		FROM journal_entries
		WHERE tenant_id = $1 AND import_session_id = $2 AND bank_transaction_id = $3
		  AND source = 'bank_import' AND status = 'posted'
	`, tenantID, sessionID, bankTxnID)

	e, err := scanJournal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up bank import journal: %w", err)
	}
	if err := s.attachLines(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListLedgerEntries returns posted ledger rows for one account over a date
// range, ordered by transaction date then id.
func (s *PostgresStore) ListLedgerEntries(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]*LedgerEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, journal_entry_id, journal_line_id, account_id,
		       account_code, account_name, description, debit, credit,
		       cumulative_balance, currency, transaction_date, posting_date,
		       fiscal_period_id, source, created_at
		FROM general_ledger
		WHERE tenant_id = $1 AND account_id = $2
		  AND transaction_date >= $3 AND transaction_date <= $4
		ORDER BY transaction_date, id
	`, tenantID, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

// ListLedgerForSession returns all ledger rows produced by one import session.
func (s *PostgresStore) ListLedgerForSession(ctx context.Context, tenantID, sessionID string) ([]*LedgerEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT gl.id, gl.tenant_id, gl.journal_entry_id, gl.journal_line_id, gl.account_id,
		       gl.account_code, gl.account_name, gl.description, gl.debit, gl.credit,
		       gl.cumulative_balance, gl.currency, gl.transaction_date, gl.posting_date,
		       gl.fiscal_period_id, gl.source, gl.created_at
		FROM general_ledger gl
		JOIN journal_entries je ON je.id = gl.journal_entry_id
		WHERE gl.tenant_id = $1 AND je.import_session_id = $2
		ORDER BY gl.transaction_date, gl.id
	`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session ledger rows: %w", err)
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

// ListJournalsBySource lists journals for one tenant filtered by source,
// created on/after since, with lines attached. Used by the maintenance
// dedupe scan.
func (s *PostgresStore) ListJournalsBySource(ctx context.Context, tenantID string, source Source, since time.Time) ([]*JournalEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, fiscal_period_id, journal_code, reference, description,
		       status, source, transaction_date, posting_date, created_by, reversal_of,
		       bank_transaction_id, import_session_id, notes, created_at, updated_at
		FROM journal_entries
		WHERE tenant_id = $1 AND source = $2 AND created_at >= $3
		ORDER BY created_at, id
	`, tenantID, string(source), since)
	if err != nil {
		return nil, fmt.Errorf("querying journals by source: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := s.attachLines(ctx, e); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// DeleteJournal removes a journal entry together with its lines and ledger
// rows, reversing the running balances the rows contributed. Maintenance
// only: the tenant filter on every statement is the isolation guarantee.
func (s *PostgresStore) DeleteJournal(ctx context.Context, tenantID, journalID string) error {
	return s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx,
			`SELECT tenant_id FROM journal_entries WHERE id = $1`, journalID).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrJournalNotFound
			}
			return fmt.Errorf("checking journal owner: %w", err)
		}
		if owner != tenantID {
			return fmt.Errorf("journal %s belongs to another tenant", journalID)
		}

		rows, err := tx.Query(ctx, `
			SELECT account_id, fiscal_period_id, debit, credit
			FROM general_ledger
			WHERE tenant_id = $1 AND journal_entry_id = $2
		`, tenantID, journalID)
		if err != nil {
			return fmt.Errorf("loading ledger rows for %s: %w", journalID, err)
		}
		type delta struct {
			accountID, periodID string
			amount              int64
		}
		var deltas []delta
		for rows.Next() {
			var d delta
			var debit, credit int64
			if err := rows.Scan(&d.accountID, &d.periodID, &debit, &credit); err != nil {
				rows.Close()
				return fmt.Errorf("scanning ledger row: %w", err)
			}
			d.amount = debit - credit
			deltas = append(deltas, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, d := range deltas {
			if _, err := tx.Exec(ctx, `
				UPDATE account_balances SET balance = balance - $4
				WHERE tenant_id = $1 AND account_id = $2 AND fiscal_period_id = $3
			`, tenantID, d.accountID, d.periodID, d.amount); err != nil {
				return fmt.Errorf("reversing balance for %s: %w", d.accountID, err)
			}
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM general_ledger WHERE tenant_id = $1 AND journal_entry_id = $2`,
			tenantID, journalID); err != nil {
			return fmt.Errorf("deleting ledger rows: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM journal_lines WHERE journal_entry_id = $1`, journalID); err != nil {
			return fmt.Errorf("deleting journal lines: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM journal_entries WHERE tenant_id = $1 AND id = $2`,
			tenantID, journalID); err != nil {
			return fmt.Errorf("deleting journal: %w", err)
		}
		return nil
	})
}

// Balance returns the committed running balance for an account in a fiscal
// period.
func (s *PostgresStore) Balance(ctx context.Context, tenantID, accountID, fiscalPeriodID string) (money.Cents, error) {
	var balance int64
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT balance FROM account_balances
			 WHERE tenant_id = $1 AND account_id = $2 AND fiscal_period_id = $3), 0)
	`, tenantID, accountID, fiscalPeriodID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return money.Cents(balance), nil
}

func (s *PostgresStore) attachLines(ctx context.Context, e *JournalEntry) error {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, account_id, account_code, account_name, description,
		       debit, credit, currency
		FROM journal_lines
		WHERE journal_entry_id = $1
		ORDER BY line_no
	`, e.ID)
	if err != nil {
		return fmt.Errorf("loading lines for %s: %w", e.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l JournalLine
		var debit, credit int64
		if err := rows.Scan(&l.ID, &l.AccountID, &l.AccountCode, &l.AccountName,
			&l.Description, &debit, &credit, &l.Currency); err != nil {
			return fmt.Errorf("scanning line: %w", err)
		}
		l.Debit = money.Cents(debit)
		l.Credit = money.Cents(credit)
		e.Lines = append(e.Lines, l)
	}
	return rows.Err()
}

func scanJournal(row pgx.Row) (*JournalEntry, error) {
	var e JournalEntry
	var status, source string
	if err := row.Scan(&e.ID, &e.TenantID, &e.FiscalPeriodID, &e.JournalCode,
		&e.Reference, &e.Description, &status, &source, &e.TransactionDate,
		&e.PostingDate, &e.CreatedBy, &e.ReversalOf, &e.BankTransactionID,
		&e.ImportSessionID, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = EntryStatus(status)
	e.Source = Source(source)
	return &e, nil
}

func scanLedgerRows(rows pgx.Rows) ([]*LedgerEntry, error) {
	var out []*LedgerEntry
	for rows.Next() {
		var le LedgerEntry
		var debit, credit, cum int64
		var source string
		if err := rows.Scan(&le.ID, &le.TenantID, &le.JournalEntryID, &le.JournalLineID,
			&le.AccountID, &le.AccountCode, &le.AccountName, &le.Description,
			&debit, &credit, &cum, &le.Currency, &le.TransactionDate,
			&le.PostingDate, &le.FiscalPeriodID, &source, &le.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		le.Debit = money.Cents(debit)
		le.Credit = money.Cents(credit)
		le.CumulativeBalance = money.Cents(cum)
		le.Source = Source(source)
		out = append(out, &le)
	}
	return out, rows.Err()
}
