package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/money"
	"github.com/example/bank-ledger/internal/session"
)

// BuildOptions controls one build run. AllowUnmapped lets a session stage
// with unmapped transactions left behind; they are simply excluded.
type BuildOptions struct {
	AllowUnmapped bool
}

// BuildResult reports what one build run produced. Blocked means the
// session was not transitioned to staged; the staging rows are still
// written so they can be inspected.
type BuildResult struct {
	JournalCount  int                     `json:"journal_count"`
	LedgerCount   int                     `json:"ledger_count"`
	UnmappedCount int                     `json:"unmapped_count"`
	Blocked       bool                    `json:"blocked"`
	BlockReason   string                  `json:"block_reason,omitempty"`
	Verification  ledger.Verification     `json:"verification"`
	Summary       *session.StagingSummary `json:"summary,omitempty"`
}

// Builder converts a session's mapped transactions into balanced staging
// entries. Builds recompute from scratch, so re-running converges.
type Builder struct {
	store    *Store
	sessions session.Store
	dir      coa.Directory
	logger   *slog.Logger
	currency string
}

func NewBuilder(store *Store, sessions session.Store, dir coa.Directory, currency string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = "USD"
	}
	return &Builder{store: store, sessions: sessions, dir: dir, logger: logger, currency: currency}
}

// BuildSession constructs staging journal and GL entries for every mapped
// transaction in the session, verifies the balance, and transitions the
// session reviewing -> staged when the gate passes. An unbalanced build or
// blocking unmapped transactions leave the session in reviewing with the
// staging rows intact for inspection.
func (b *Builder) BuildSession(ctx context.Context, tenantID, sessionID string, opts BuildOptions) (*BuildResult, error) {
	sess, err := b.sessions.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusReviewing {
		return nil, &session.InvalidOperationError{Status: sess.Status, Operation: "stage", SessionID: sessionID}
	}

	txns, err := b.sessions.ListTransactions(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	// Chronological order drives both entry ids and running balances.
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})

	result := &BuildResult{}
	var journals []*JournalEntry
	var glRows []*LedgerEntry
	var allLines []ledger.JournalLine
	running := make(map[string]money.Cents)
	now := time.Now().UTC()

	for _, txn := range txns {
		if txn.MappingStatus != session.MappingMapped {
			if txn.MappingStatus != session.MappingPosted {
				result.UnmappedCount++
			}
			continue
		}
		if txn.GLMapping == nil {
			result.UnmappedCount++
			continue
		}

		debitAcct, err := b.dir.GetAccount(ctx, txn.GLMapping.DebitAccountID)
		if err != nil {
			return nil, fmt.Errorf("debit account for transaction %s: %w", txn.ID, err)
		}
		creditAcct, err := b.dir.GetAccount(ctx, txn.GLMapping.CreditAccountID)
		if err != nil {
			return nil, fmt.Errorf("credit account for transaction %s: %w", txn.ID, err)
		}

		amount := txn.Amount.Abs()
		entryID := fmt.Sprintf("stg_%s_%s", sessionID, txn.ID)
		entry := &JournalEntry{
			ID:                entryID,
			SessionID:         sessionID,
			TenantID:          tenantID,
			BankTransactionID: txn.ID,
			FiscalPeriodID:    sess.FiscalPeriodID,
			TransactionDate:   txn.Date,
			Description:       txn.Description,
			Reference:         txn.Reference,
			Status:            StatusStaged,
			CreatedAt:         now,
			Lines: []ledger.JournalLine{
				{
					ID:          entryID + "_0",
					AccountID:   debitAcct.ID,
					AccountCode: debitAcct.Code,
					AccountName: debitAcct.Name,
					Description: txn.Description,
					Debit:       amount,
					Currency:    b.currency,
				},
				{
					ID:          entryID + "_1",
					AccountID:   creditAcct.ID,
					AccountCode: creditAcct.Code,
					AccountName: creditAcct.Name,
					Description: txn.Description,
					Credit:      amount,
					Currency:    b.currency,
				},
			},
		}
		journals = append(journals, entry)
		allLines = append(allLines, entry.Lines...)

		for i, line := range entry.Lines {
			key := line.AccountID + "|" + sess.FiscalPeriodID
			running[key] += line.Debit - line.Credit
			glRows = append(glRows, &LedgerEntry{
				ID:                fmt.Sprintf("%s_gl%d", entryID, i),
				SessionID:         sessionID,
				TenantID:          tenantID,
				JournalEntryID:    entryID,
				AccountID:         line.AccountID,
				AccountCode:       line.AccountCode,
				AccountName:       line.AccountName,
				FiscalPeriodID:    sess.FiscalPeriodID,
				TransactionDate:   txn.Date,
				Description:       txn.Description,
				Debit:             line.Debit,
				Credit:            line.Credit,
				CumulativeBalance: running[key],
				Status:            StatusStaged,
				CreatedAt:         now,
			})
		}
	}

	result.JournalCount = len(journals)
	result.LedgerCount = len(glRows)
	result.Verification = ledger.VerifyLines(allLines)

	if err := b.store.ReplaceSession(ctx, tenantID, sessionID, journals, glRows); err != nil {
		return nil, err
	}

	if result.UnmappedCount > 0 && !opts.AllowUnmapped {
		result.Blocked = true
		result.BlockReason = fmt.Sprintf("%d unmapped transactions; map them or stage with allow_unmapped", result.UnmappedCount)
		return result, nil
	}
	if !result.Verification.IsBalanced {
		result.Blocked = true
		result.BlockReason = fmt.Sprintf("staging entries are not balanced: debits %s, credits %s",
			result.Verification.TotalDebits.String(), result.Verification.TotalCredits.String())
		return result, nil
	}

	summary := &session.StagingSummary{
		EntryCount:   result.JournalCount,
		TotalDebits:  result.Verification.TotalDebits,
		TotalCredits: result.Verification.TotalCredits,
		IsBalanced:   true,
		StagedAt:     now,
	}
	if err := b.sessions.SetStagingSummary(ctx, tenantID, sessionID, summary); err != nil {
		return nil, err
	}
	if err := b.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusReviewing, session.StatusStaged); err != nil {
		return nil, err
	}
	result.Summary = summary

	b.logger.Info("staging build complete",
		"session_id", sessionID, "journals", result.JournalCount, "gl_rows", result.LedgerCount,
		"unmapped", result.UnmappedCount)
	return result, nil
}

// VerifySession re-runs the balance verifier over a session's stored
// staging rows. Read-only; used by diagnostics and the promotion gate.
func (b *Builder) VerifySession(ctx context.Context, tenantID, sessionID string) (ledger.Verification, error) {
	glRows, err := b.store.ListLedgerRows(ctx, tenantID, sessionID)
	if err != nil {
		return ledger.Verification{}, err
	}
	return ledger.VerifyLines(LedgerLines(glRows)), nil
}
