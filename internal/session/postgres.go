package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bank-ledger/internal/money"
)

// ErrSessionNotFound is returned when a session does not exist for the tenant.
var ErrSessionNotFound = errors.New("import session not found")

// Store defines the persistence boundary other components consume. The
// promoter and builders take this interface so tests can swap fakes in.
type Store interface {
	CreateSession(ctx context.Context, s *BankImportSession) error
	GetSession(ctx context.Context, tenantID, sessionID string) (*BankImportSession, error)
	ListSessions(ctx context.Context, tenantID string) ([]*BankImportSession, error)
	TransitionStatus(ctx context.Context, tenantID, sessionID string, from, to Status) error
	SetStagingSummary(ctx context.Context, tenantID, sessionID string, sum *StagingSummary) error
	SetProductionSummary(ctx context.Context, tenantID, sessionID string, sum *ProductionSummary) error
	SaveTransactions(ctx context.Context, txns []*ImportedTransaction) error
	ListTransactions(ctx context.Context, tenantID, sessionID string) ([]*ImportedTransaction, error)
	UpdateTransactionMapping(ctx context.Context, txn *ImportedTransaction) error
	MarkTransactionPosted(ctx context.Context, tenantID, txnID, journalEntryID string) error
}

// PostgresStore persists sessions and their transactions in postgres.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *BankImportSession) error {
	if sess.Status == "" {
		sess.Status = StatusDraft
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO import_sessions (id, tenant_id, bank_account_id, fiscal_period_id, source_name, status, txn_count, mapped_count, unmapped_count, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.TenantID, sess.BankAccountID, sess.FiscalPeriodID, sess.SourceName,
		string(sess.Status), sess.TxnCount, sess.MappedCount, sess.UnmappedCount, sess.Notes)
	if err != nil {
		return fmt.Errorf("failed to create import session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tenantID, sessionID string) (*BankImportSession, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, bank_account_id, fiscal_period_id, source_name, status,
		       txn_count, mapped_count, unmapped_count, staging, production, notes,
		       created_at, updated_at, posted_at, archived_at
		FROM import_sessions WHERE id = $1 AND tenant_id = $2`,
		sessionID, tenantID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, tenantID string) ([]*BankImportSession, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tenant_id, bank_account_id, fiscal_period_id, source_name, status,
		       txn_count, mapped_count, unmapped_count, staging, production, notes,
		       created_at, updated_at, posted_at, archived_at
		FROM import_sessions WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*BankImportSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TransitionStatus moves the session between states as a single conditional
// update. The WHERE clause on the current status is the compare-and-set that
// gives callers exclusivity: zero rows affected means another caller moved
// the session first.
func (s *PostgresStore) TransitionStatus(ctx context.Context, tenantID, sessionID string, from, to Status) error {
	if err := ValidateTransition(sessionID, from, to); err != nil {
		return err
	}

	tag, err := s.Pool.Exec(ctx, `
		UPDATE import_sessions
		SET status = $1, updated_at = now(),
		    posted_at = CASE WHEN $1 = 'posted' THEN now() ELSE posted_at END,
		    archived_at = CASE WHEN $1 = 'archived' THEN now() ELSE archived_at END
		WHERE id = $2 AND tenant_id = $3 AND status = $4`,
		string(to), sessionID, tenantID, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		sess, getErr := s.GetSession(ctx, tenantID, sessionID)
		if getErr != nil {
			return getErr
		}
		return &ConcurrentTransitionError{SessionID: sessionID, Expected: from, Actual: sess.Status}
	}
	return nil
}

func (s *PostgresStore) SetStagingSummary(ctx context.Context, tenantID, sessionID string, sum *StagingSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to encode staging summary: %w", err)
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE import_sessions SET staging = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3`,
		payload, sessionID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set staging summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) SetProductionSummary(ctx context.Context, tenantID, sessionID string, sum *ProductionSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to encode production summary: %w", err)
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE import_sessions SET production = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3`,
		payload, sessionID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set production summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) SaveTransactions(ctx context.Context, txns []*ImportedTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range txns {
		var debitAcct, creditAcct, rule string
		var confidence float64
		if t.GLMapping != nil {
			debitAcct = t.GLMapping.DebitAccountID
			creditAcct = t.GLMapping.CreditAccountID
			confidence = t.GLMapping.Confidence
			rule = t.GLMapping.RuleApplied
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO imported_transactions (id, session_id, tenant_id, txn_date, description, reference, category,
			       amount_cents, running_balance_cents, has_balance, mapping_status, debit_account_id, credit_account_id,
			       confidence, rule_applied, journal_entry_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			t.ID, t.SessionID, t.TenantID, t.Date, t.Description, t.Reference, t.Category,
			int64(t.Amount), int64(t.RunningBalance), t.HasBalance, string(t.MappingStatus), debitAcct, creditAcct,
			confidence, rule, t.JournalEntryID)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE import_sessions SET txn_count = txn_count + $1, unmapped_count = unmapped_count + $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3`,
		len(txns), txns[0].SessionID, txns[0].TenantID)
	if err != nil {
		return fmt.Errorf("failed to update session counts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, tenantID, sessionID string) ([]*ImportedTransaction, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, session_id, tenant_id, txn_date, description, reference, category,
		       amount_cents, running_balance_cents, has_balance, mapping_status, debit_account_id, credit_account_id,
		       confidence, rule_applied, journal_entry_id, created_at, updated_at
		FROM imported_transactions
		WHERE session_id = $1 AND tenant_id = $2
		ORDER BY txn_date, id`, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*ImportedTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// UpdateTransactionMapping persists the result of one mapping decision and
// keeps the session's mapped/unmapped counters in step.
func (s *PostgresStore) UpdateTransactionMapping(ctx context.Context, txn *ImportedTransaction) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevStatus string
	err = tx.QueryRow(ctx, `
		SELECT mapping_status FROM imported_transactions
		WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		txn.ID, txn.TenantID).Scan(&prevStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("transaction %s not found", txn.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction %s: %w", txn.ID, err)
	}

	var debitAcct, creditAcct, rule string
	var confidence float64
	if txn.GLMapping != nil {
		debitAcct = txn.GLMapping.DebitAccountID
		creditAcct = txn.GLMapping.CreditAccountID
		confidence = txn.GLMapping.Confidence
		rule = txn.GLMapping.RuleApplied
	}
	_, err = tx.Exec(ctx, `
		UPDATE imported_transactions
		SET mapping_status = $1, debit_account_id = $2, credit_account_id = $3,
		    confidence = $4, rule_applied = $5, updated_at = now()
		WHERE id = $6 AND tenant_id = $7`,
		string(txn.MappingStatus), debitAcct, creditAcct, confidence, rule, txn.ID, txn.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", txn.ID, err)
	}

	wasMapped := prevStatus == string(MappingMapped) || prevStatus == string(MappingSuggested)
	isMapped := txn.MappingStatus == MappingMapped || txn.MappingStatus == MappingSuggested
	if wasMapped != isMapped {
		delta := 1
		if wasMapped {
			delta = -1
		}
		_, err = tx.Exec(ctx, `
			UPDATE import_sessions
			SET mapped_count = mapped_count + $1, unmapped_count = unmapped_count - $1, updated_at = now()
			WHERE id = $2 AND tenant_id = $3`,
			delta, txn.SessionID, txn.TenantID)
		if err != nil {
			return fmt.Errorf("failed to update session counts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mapping update: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkTransactionPosted(ctx context.Context, tenantID, txnID, journalEntryID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE imported_transactions
		SET mapping_status = $1, journal_entry_id = $2, updated_at = now()
		WHERE id = $3 AND tenant_id = $4`,
		string(MappingPosted), journalEntryID, txnID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s posted: %w", txnID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s not found", txnID)
	}
	return nil
}

func scanSession(row pgx.Row) (*BankImportSession, error) {
	var sess BankImportSession
	var status string
	var staging, production []byte
	var postedAt, archivedAt *time.Time

	err := row.Scan(&sess.ID, &sess.TenantID, &sess.BankAccountID, &sess.FiscalPeriodID,
		&sess.SourceName, &status, &sess.TxnCount, &sess.MappedCount, &sess.UnmappedCount,
		&staging, &production, &sess.Notes, &sess.CreatedAt, &sess.UpdatedAt, &postedAt, &archivedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	sess.PostedAt = postedAt
	sess.ArchivedAt = archivedAt
	if len(staging) > 0 {
		sess.Staging = &StagingSummary{}
		if err := json.Unmarshal(staging, sess.Staging); err != nil {
			return nil, fmt.Errorf("failed to decode staging summary: %w", err)
		}
	}
	if len(production) > 0 {
		sess.Production = &ProductionSummary{}
		if err := json.Unmarshal(production, sess.Production); err != nil {
			return nil, fmt.Errorf("failed to decode production summary: %w", err)
		}
	}
	return &sess, nil
}

func scanTransaction(row pgx.Row) (*ImportedTransaction, error) {
	var t ImportedTransaction
	var amount, balance int64
	var status, debitAcct, creditAcct, rule string
	var confidence float64

	err := row.Scan(&t.ID, &t.SessionID, &t.TenantID, &t.Date, &t.Description, &t.Reference, &t.Category,
		&amount, &balance, &t.HasBalance, &status, &debitAcct, &creditAcct, &confidence, &rule,
		&t.JournalEntryID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Amount = money.Cents(amount)
	t.RunningBalance = money.Cents(balance)
	t.MappingStatus = MappingStatus(status)
	if debitAcct != "" || creditAcct != "" {
		t.GLMapping = &GLMapping{
			DebitAccountID:  debitAcct,
			CreditAccountID: creditAcct,
			Confidence:      confidence,
			RuleApplied:     rule,
		}
	}
	return &t, nil
}
