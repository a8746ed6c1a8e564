package promote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/internal/staging"
	"github.com/example/bank-ledger/pkg/audit"
)

// MaxBatchOps is the hard ceiling on write operations per atomic chunk.
const MaxBatchOps = 500

// opsPerEntry counts the writes one journal produces: the journal row, two
// lines, two general-ledger rows, and two balance upserts.
const opsPerEntry = 7

// LedgerStore is the production-side surface the promoter writes through.
type LedgerStore interface {
	PostJournals(ctx context.Context, entries []*ledger.JournalEntry) error
	FindBankImportJournal(ctx context.Context, tenantID, sessionID, bankTxnID string) (*ledger.JournalEntry, error)
}

// StagingStore is the staging-side surface the promoter reads and links.
type StagingStore interface {
	ListJournals(ctx context.Context, tenantID, sessionID string) ([]*staging.JournalEntry, error)
	MarkPosted(ctx context.Context, tenantID, sessionID string, journalLinks map[string]string) error
	ArchiveSession(ctx context.Context, tenantID, sessionID string) (int, error)
}

// Promoter moves a balance-verified staged session into the production
// ledger. Promotion is idempotent: every journal is keyed by its bank
// transaction id, and a retry after a mid-run crash re-derives the same
// dedup decisions and creates nothing twice.
type Promoter struct {
	ledger   LedgerStore
	staging  StagingStore
	sessions session.Store
	auditLog *audit.ChainLogger
	logger   *slog.Logger
}

func NewPromoter(ledgerStore LedgerStore, stagingStore StagingStore, sessions session.Store, auditLog *audit.ChainLogger, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{ledger: ledgerStore, staging: stagingStore, sessions: sessions, auditLog: auditLog, logger: logger}
}

// Promote posts every staged journal entry for the session into the
// production ledger in chunked atomic batches.
//
// The compare-and-set staged -> posting taken before the first chunk is the
// concurrency guard: a second promoter finds the session already posting
// and stops. A chunk failure aborts the attempt and returns the session to
// staged; chunks already committed stay committed, and the retry skips them
// via the idempotency check. Cancellation is honored between chunks only.
func (p *Promoter) Promote(ctx context.Context, tenantID, sessionID, postedBy string) (*session.ProductionSummary, error) {
	sess, err := p.sessions.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusStaged {
		return nil, &session.InvalidOperationError{Status: sess.Status, Operation: "promote", SessionID: sessionID}
	}
	if sess.Staging == nil || !sess.Staging.IsBalanced {
		return nil, fmt.Errorf("session %s has no balanced staging summary", sessionID)
	}

	if err := p.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusStaged, session.StatusPosting); err != nil {
		return nil, err
	}
	p.record("promotion_started", map[string]string{"tenant": tenantID, "session": sessionID, "posted_by": postedBy})

	summary, err := p.run(ctx, tenantID, sessionID, postedBy)
	if err != nil {
		// Committed chunks stay; the session returns to staged so the
		// caller can retry.
		if revertErr := p.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusPosting, session.StatusStaged); revertErr != nil {
			p.logger.Error("failed to return session to staged after promotion failure",
				"session_id", sessionID, "error", revertErr)
		}
		p.record("promotion_failed", map[string]string{"tenant": tenantID, "session": sessionID, "error": err.Error()})
		return nil, err
	}

	if err := p.sessions.SetProductionSummary(ctx, tenantID, sessionID, summary); err != nil {
		return nil, err
	}
	if err := p.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusPosting, session.StatusPosted); err != nil {
		return nil, err
	}

	// Archiving staged rows after a successful promotion is best effort; a
	// failure here never un-posts anything.
	if _, err := p.staging.ArchiveSession(ctx, tenantID, sessionID); err != nil {
		p.logger.Warn("failed to archive staging rows after promotion", "session_id", sessionID, "error", err)
	}

	p.record("promotion_complete", map[string]string{
		"tenant": tenantID, "session": sessionID,
		"journals": fmt.Sprintf("%d", summary.JournalCount),
		"skipped":  fmt.Sprintf("%d", summary.SkippedDuplicates),
	})
	p.logger.Info("promotion complete",
		"session_id", sessionID, "journals", summary.JournalCount,
		"skipped_duplicates", summary.SkippedDuplicates, "gl_rows", summary.LedgerRowCount)
	return summary, nil
}

func (p *Promoter) run(ctx context.Context, tenantID, sessionID, postedBy string) (*session.ProductionSummary, error) {
	staged, err := p.staging.ListJournals(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	summary := &session.ProductionSummary{PostedAt: time.Now().UTC()}
	links := make(map[string]string, len(staged))
	txnJournals := make(map[string]string, len(staged))

	chunkSize := MaxBatchOps / opsPerEntry
	for start := 0; start < len(staged); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("promotion cancelled before chunk at %d: %w", start, err)
		}

		end := start + chunkSize
		if end > len(staged) {
			end = len(staged)
		}

		var batch []*ledger.JournalEntry
		for _, se := range staged[start:end] {
			existing, err := p.ledger.FindBankImportJournal(ctx, tenantID, sessionID, se.BankTransactionID)
			if err != nil {
				return nil, fmt.Errorf("dedup check for %s: %w", se.BankTransactionID, err)
			}
			if existing != nil {
				summary.SkippedDuplicates++
				links[se.ID] = existing.ID
				txnJournals[se.BankTransactionID] = existing.ID
				continue
			}

			entry := p.buildProductionEntry(se, postedBy)
			batch = append(batch, entry)
			links[se.ID] = entry.ID
			txnJournals[se.BankTransactionID] = entry.ID
		}

		if len(batch) == 0 {
			continue
		}
		if err := p.ledger.PostJournals(ctx, batch); err != nil {
			return nil, fmt.Errorf("chunk at %d failed: %w", start, err)
		}

		for _, e := range batch {
			summary.JournalCount++
			summary.LedgerRowCount += len(e.Lines)
			summary.TotalDebits += e.TotalDebits()
			summary.TotalCredits += e.TotalCredits()
		}
		p.record("chunk_committed", map[string]string{
			"tenant": tenantID, "session": sessionID, "journals": fmt.Sprintf("%d", len(batch)),
		})
	}

	if err := p.staging.MarkPosted(ctx, tenantID, sessionID, links); err != nil {
		return nil, fmt.Errorf("failed to link staging rows: %w", err)
	}
	for txnID, journalID := range txnJournals {
		if err := p.sessions.MarkTransactionPosted(ctx, tenantID, txnID, journalID); err != nil {
			return nil, fmt.Errorf("failed to mark transaction %s posted: %w", txnID, err)
		}
	}
	return summary, nil
}

func (p *Promoter) buildProductionEntry(se *staging.JournalEntry, postedBy string) *ledger.JournalEntry {
	now := time.Now().UTC()
	entry := &ledger.JournalEntry{
		ID:                "je_" + uuid.New().String(),
		TenantID:          se.TenantID,
		FiscalPeriodID:    se.FiscalPeriodID,
		JournalCode:       "BANK_IMPORT",
		Reference:         se.Reference,
		Description:       se.Description,
		Status:            ledger.StatusPosted,
		Source:            ledger.SourceBankImport,
		TransactionDate:   se.TransactionDate,
		PostingDate:       now,
		CreatedBy:         postedBy,
		BankTransactionID: se.BankTransactionID,
		ImportSessionID:   se.SessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	entry.Lines = make([]ledger.JournalLine, len(se.Lines))
	for i, l := range se.Lines {
		l.ID = fmt.Sprintf("%s_%d", entry.ID, i)
		entry.Lines[i] = l
	}
	return entry
}

// Verify re-checks production rows for a session against the double-entry
// invariant. Read-only; exposed for diagnostics.
func Verify(entries []*ledger.JournalEntry) ledger.Verification {
	return ledger.VerifyEntries(entries)
}

func (p *Promoter) record(event string, fields map[string]string) {
	if p.auditLog != nil {
		p.auditLog.Record(event, fields)
	}
}
