package staging

import (
	"time"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/money"
)

// Status is the lifecycle of a staging row. Rows are written at staged,
// linked to production at posted, and swept by archive/cleanup afterwards.
type Status string

const (
	StatusStaged   Status = "staged"
	StatusPosted   Status = "posted"
	StatusExported Status = "exported"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// JournalEntry is one two-line balanced entry in the staging area. It is
// keyed back to the imported bank transaction that produced it and forward
// to the production journal once promoted.
type JournalEntry struct {
	ID                  string               `json:"id"`
	SessionID           string               `json:"session_id"`
	TenantID            string               `json:"tenant_id"`
	BankTransactionID   string               `json:"bank_transaction_id"`
	FiscalPeriodID      string               `json:"fiscal_period_id"`
	TransactionDate     time.Time            `json:"transaction_date"`
	Description         string               `json:"description"`
	Reference           string               `json:"reference,omitempty"`
	Lines               []ledger.JournalLine `json:"lines"`
	Status              Status               `json:"status"`
	ProductionJournalID string               `json:"production_journal_id,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
}

// JournalLines flattens staging journal entries into the line form the
// balance verifier consumes.
func JournalLines(journals []*JournalEntry) []ledger.JournalLine {
	var lines []ledger.JournalLine
	for _, j := range journals {
		lines = append(lines, j.Lines...)
	}
	return lines
}

// LedgerLines converts staging GL rows into verifier lines. Journal and GL
// views are built independently, so verifying both catches a staging write
// bug that a single view would hide.
func LedgerLines(rows []*LedgerEntry) []ledger.JournalLine {
	lines := make([]ledger.JournalLine, len(rows))
	for i, g := range rows {
		lines[i] = ledger.JournalLine{
			ID:          g.ID,
			AccountID:   g.AccountID,
			AccountCode: g.AccountCode,
			AccountName: g.AccountName,
			Debit:       g.Debit,
			Credit:      g.Credit,
		}
	}
	return lines
}

// LedgerEntry is one staging general-ledger leg, stamped with the running
// balance for its (account, fiscal period) at build time.
type LedgerEntry struct {
	ID                string      `json:"id"`
	SessionID         string      `json:"session_id"`
	TenantID          string      `json:"tenant_id"`
	JournalEntryID    string      `json:"journal_entry_id"`
	AccountID         string      `json:"account_id"`
	AccountCode       string      `json:"account_code"`
	AccountName       string      `json:"account_name"`
	FiscalPeriodID    string      `json:"fiscal_period_id"`
	TransactionDate   time.Time   `json:"transaction_date"`
	Description       string      `json:"description"`
	Debit             money.Cents `json:"debit"`
	Credit            money.Cents `json:"credit"`
	CumulativeBalance money.Cents `json:"cumulative_balance"`
	Status            Status      `json:"status"`
	ProductionGLID    string      `json:"production_gl_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
