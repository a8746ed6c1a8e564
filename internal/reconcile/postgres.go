package reconcile

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

var (
	ErrReconciliationNotFound = errors.New("reconciliation session not found")
	ErrMatchNotFound          = errors.New("reconciliation match not found")
	ErrAdjustmentNotFound     = errors.New("reconciliation adjustment not found")

	// ErrLedgerAlreadyConfirmed is returned when confirming a match would
	// give a ledger transaction a second confirmed match.
	ErrLedgerAlreadyConfirmed = errors.New("ledger transaction already has a confirmed match")

	// ErrStateConflict is returned when a status change loses the
	// compare-and-set against a concurrent or out-of-order transition.
	ErrStateConflict = errors.New("reconciliation is not in the expected state")
)

// Store is the persistence boundary for reconciliation state.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, tenantID, id string) (*Session, error)
	ListSessions(ctx context.Context, tenantID, bankAccountID string) ([]*Session, error)
	UpdateSessionStatus(ctx context.Context, tenantID, id string, from, to SessionStatus) error

	ReplaceSuggestedMatches(ctx context.Context, tenantID, reconciliationID string, matches []*Match) error
	GetMatch(ctx context.Context, tenantID, matchID string) (*Match, error)
	ListMatches(ctx context.Context, tenantID, reconciliationID string) ([]*Match, error)
	ConfirmMatch(ctx context.Context, tenantID, matchID, confirmedBy string) (*Match, error)
	RejectMatch(ctx context.Context, tenantID, matchID string) (*Match, error)
	ConfirmedLedgerIDs(ctx context.Context, tenantID, reconciliationID string) (map[string]bool, error)

	CreateAdjustment(ctx context.Context, a *Adjustment) error
	GetAdjustment(ctx context.Context, tenantID, adjustmentID string) (*Adjustment, error)
	ListAdjustments(ctx context.Context, tenantID, reconciliationID string) ([]*Adjustment, error)
	SetAdjustmentReversal(ctx context.Context, tenantID, adjustmentID, reversalJournalID, reason string, reversedAt time.Time) error
}

// Schema holds the DDL for reconciliation state. The partial unique index
// on confirmed matches is the store-level enforcement of the one-confirmed-
// match-per-ledger-transaction invariant.
const Schema = `
CREATE TABLE IF NOT EXISTS reconciliation_sessions (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    bank_account_id TEXT NOT NULL,
    period_start    TIMESTAMPTZ NOT NULL,
    period_end      TIMESTAMPTZ NOT NULL,
    opening_balance BIGINT NOT NULL DEFAULT 0,
    closing_balance BIGINT NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'draft',
    notes           TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recon_sessions_account
    ON reconciliation_sessions (tenant_id, bank_account_id, period_start);

CREATE TABLE IF NOT EXISTS reconciliation_matches (
    id                    TEXT PRIMARY KEY,
    tenant_id             TEXT NOT NULL,
    reconciliation_id     TEXT NOT NULL REFERENCES reconciliation_sessions(id),
    bank_transaction_id   TEXT NOT NULL,
    ledger_transaction_id TEXT NOT NULL,
    amount_cents          BIGINT NOT NULL,
    confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
    match_rule            TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'suggested',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    confirmed_at          TIMESTAMPTZ,
    confirmed_by          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recon_matches_session
    ON reconciliation_matches (reconciliation_id, status);

CREATE UNIQUE INDEX IF NOT EXISTS uq_recon_confirmed_ledger
    ON reconciliation_matches (tenant_id, ledger_transaction_id)
    WHERE status = 'confirmed';

CREATE TABLE IF NOT EXISTS reconciliation_adjustments (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    reconciliation_id   TEXT NOT NULL REFERENCES reconciliation_sessions(id),
    adjustment_type     TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    amount_cents        BIGINT NOT NULL,
    account_id          TEXT NOT NULL,
    posted_journal_id   TEXT NOT NULL,
    reversal_journal_id TEXT NOT NULL DEFAULT '',
    reversal_reason     TEXT NOT NULL DEFAULT '',
    reversed_at         TIMESTAMPTZ,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_by          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recon_adjustments_session
    ON reconciliation_adjustments (reconciliation_id);
`

// EnsureSchema creates the reconciliation tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create reconciliation schema: %w", err)
	}
	return nil
}

// PostgresStore persists reconciliation state in postgres.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.Status == "" {
		sess.Status = SessionDraft
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO reconciliation_sessions (id, tenant_id, bank_account_id, period_start, period_end, opening_balance, closing_balance, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.TenantID, sess.BankAccountID, sess.PeriodStart, sess.PeriodEnd,
		int64(sess.OpeningBalance), int64(sess.ClosingBalance), string(sess.Status), sess.Notes)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tenantID, id string) (*Session, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, bank_account_id, period_start, period_end, opening_balance, closing_balance, status, notes, created_at, updated_at
		FROM reconciliation_sessions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	sess, err := scanReconSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReconciliationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, tenantID, bankAccountID string) ([]*Session, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, bank_account_id, period_start, period_end, opening_balance, closing_balance, status, notes, created_at, updated_at
		FROM reconciliation_sessions
		WHERE tenant_id = $1 AND ($2 = '' OR bank_account_id = $2)
		ORDER BY period_start DESC`, tenantID, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanReconSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, tenantID, id string, from, to SessionStatus) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE reconciliation_sessions SET status = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND status = $4`,
		string(to), id, tenantID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update reconciliation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reconciliation %s is not %s: %w", id, from, ErrStateConflict)
	}
	return nil
}

// ReplaceSuggestedMatches swaps the suggested set for a fresh matcher run.
// Confirmed and rejected matches are never touched.
func (s *PostgresStore) ReplaceSuggestedMatches(ctx context.Context, tenantID, reconciliationID string, matches []*Match) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM reconciliation_matches
		WHERE reconciliation_id = $1 AND tenant_id = $2 AND status = 'suggested'`,
		reconciliationID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to clear suggested matches: %w", err)
	}

	for _, m := range matches {
		_, err := tx.Exec(ctx, `
			INSERT INTO reconciliation_matches (id, tenant_id, reconciliation_id, bank_transaction_id, ledger_transaction_id, amount_cents, confidence, match_rule, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.TenantID, m.ReconciliationID, m.BankTransactionID, m.LedgerTransactionID,
			int64(m.Amount), m.Confidence, m.MatchRule, string(m.Status))
		if err != nil {
			return fmt.Errorf("failed to insert match %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit suggested matches: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, tenantID, matchID string) (*Match, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, reconciliation_id, bank_transaction_id, ledger_transaction_id, amount_cents, confidence, match_rule, status, created_at, confirmed_at, confirmed_by
		FROM reconciliation_matches WHERE id = $1 AND tenant_id = $2`, matchID, tenantID)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, tenantID, reconciliationID string) ([]*Match, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, reconciliation_id, bank_transaction_id, ledger_transaction_id, amount_cents, confidence, match_rule, status, created_at, confirmed_at, confirmed_by
		FROM reconciliation_matches
		WHERE reconciliation_id = $1 AND tenant_id = $2
		ORDER BY confidence DESC, id`, reconciliationID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConfirmMatch flips a suggested match to confirmed. The partial unique
// index rejects a second confirmed match for the same ledger transaction;
// that constraint violation surfaces as ErrLedgerAlreadyConfirmed.
func (s *PostgresStore) ConfirmMatch(ctx context.Context, tenantID, matchID, confirmedBy string) (*Match, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE reconciliation_matches
		SET status = 'confirmed', confirmed_at = now(), confirmed_by = $1
		WHERE id = $2 AND tenant_id = $3 AND status = 'suggested'`,
		confirmedBy, matchID, tenantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrLedgerAlreadyConfirmed
		}
		return nil, fmt.Errorf("failed to confirm match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		m, getErr := s.GetMatch(ctx, tenantID, matchID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("match %s is %s, not suggested", matchID, m.Status)
	}
	return s.GetMatch(ctx, tenantID, matchID)
}

func (s *PostgresStore) RejectMatch(ctx context.Context, tenantID, matchID string) (*Match, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE reconciliation_matches SET status = 'rejected'
		WHERE id = $1 AND tenant_id = $2 AND status = 'suggested'`,
		matchID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMatchNotFound
	}
	return s.GetMatch(ctx, tenantID, matchID)
}

func (s *PostgresStore) ConfirmedLedgerIDs(ctx context.Context, tenantID, reconciliationID string) (map[string]bool, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT ledger_transaction_id FROM reconciliation_matches
		WHERE reconciliation_id = $1 AND tenant_id = $2 AND status = 'confirmed'`,
		reconciliationID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed ledger ids: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAdjustment(ctx context.Context, a *Adjustment) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO reconciliation_adjustments (id, tenant_id, reconciliation_id, adjustment_type, description, amount_cents, account_id, posted_journal_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.TenantID, a.ReconciliationID, string(a.Type), a.Description,
		int64(a.Amount), a.AccountID, a.PostedJournalID, a.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create adjustment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAdjustment(ctx context.Context, tenantID, adjustmentID string) (*Adjustment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, reconciliation_id, adjustment_type, description, amount_cents, account_id, posted_journal_id, reversal_journal_id, reversal_reason, reversed_at, created_at, created_by
		FROM reconciliation_adjustments WHERE id = $1 AND tenant_id = $2`, adjustmentID, tenantID)
	a, err := scanAdjustment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdjustmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAdjustments(ctx context.Context, tenantID, reconciliationID string) ([]*Adjustment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, reconciliation_id, adjustment_type, description, amount_cents, account_id, posted_journal_id, reversal_journal_id, reversal_reason, reversed_at, created_at, created_by
		FROM reconciliation_adjustments
		WHERE reconciliation_id = $1 AND tenant_id = $2
		ORDER BY created_at, id`, reconciliationID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var out []*Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetAdjustmentReversal(ctx context.Context, tenantID, adjustmentID, reversalJournalID, reason string, reversedAt time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE reconciliation_adjustments
		SET reversal_journal_id = $1, reversal_reason = $2, reversed_at = $3
		WHERE id = $4 AND tenant_id = $5 AND reversal_journal_id = ''`,
		reversalJournalID, reason, reversedAt, adjustmentID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set adjustment reversal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("adjustment %s not found or already reversed", adjustmentID)
	}
	return nil
}

func scanReconSession(row pgx.Row) (*Session, error) {
	var sess Session
	var status string
	var opening, closing int64
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.BankAccountID, &sess.PeriodStart, &sess.PeriodEnd,
		&opening, &closing, &status, &sess.Notes, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.OpeningBalance = money.Cents(opening)
	sess.ClosingBalance = money.Cents(closing)
	sess.Status = SessionStatus(status)
	return &sess, nil
}

func scanMatch(row pgx.Row) (*Match, error) {
	var m Match
	var amount int64
	var status string
	err := row.Scan(&m.ID, &m.TenantID, &m.ReconciliationID, &m.BankTransactionID, &m.LedgerTransactionID,
		&amount, &m.Confidence, &m.MatchRule, &status, &m.CreatedAt, &m.ConfirmedAt, &m.ConfirmedBy)
	if err != nil {
		return nil, err
	}
	m.Amount = money.Cents(amount)
	m.Status = MatchStatus(status)
	return &m, nil
}

func scanAdjustment(row pgx.Row) (*Adjustment, error) {
	var a Adjustment
	var amount int64
	var adjType string
	err := row.Scan(&a.ID, &a.TenantID, &a.ReconciliationID, &adjType, &a.Description,
		&amount, &a.AccountID, &a.PostedJournalID, &a.ReversalJournalID, &a.ReversalReason,
		&a.ReversedAt, &a.CreatedAt, &a.CreatedBy)
	if err != nil {
		return nil, err
	}
	a.Amount = money.Cents(amount)
	a.Type = AdjustmentType(adjType)
	return &a, nil
}
