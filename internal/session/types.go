package session

import (
	"time"

	"github.com/example/bank-ledger/internal/money"
)

// Status represents the lifecycle state of a bank import session
type Status string

const (
	StatusDraft     Status = "draft"
	StatusMapping   Status = "mapping"
	StatusReviewing Status = "reviewing"
	StatusStaged    Status = "staged"
	StatusPosting   Status = "posting"
	StatusPosted    Status = "posted"
	StatusExported  Status = "exported"
	StatusArchived  Status = "archived"
	StatusCancelled Status = "cancelled"
)

// MappingStatus represents the mapping state of one imported transaction
type MappingStatus string

const (
	MappingUnmapped  MappingStatus = "unmapped"
	MappingSuggested MappingStatus = "suggested"
	MappingMapped    MappingStatus = "mapped"
	MappingPosted    MappingStatus = "posted"
)

// GLMapping is the account assignment produced by the mapping engine for one
// transaction. Confidence is 1.0 for rule matches and explicit assignments.
type GLMapping struct {
	DebitAccountID  string  `json:"debit_account_id"`
	CreditAccountID string  `json:"credit_account_id"`
	Confidence      float64 `json:"confidence"`
	RuleApplied     string  `json:"rule_applied,omitempty"`
}

// ImportedTransaction is one bank transaction inside a session, carried from
// import through mapping to production posting. Amount is signed: positive
// means money into the bank account, negative means money out. HasBalance
// distinguishes a statement line with a 0.00 running balance from one that
// printed none.
type ImportedTransaction struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	TenantID       string        `json:"tenant_id"`
	Date           time.Time     `json:"date"`
	Description    string        `json:"description"`
	Reference      string        `json:"reference,omitempty"`
	Category       string        `json:"category,omitempty"`
	Amount         money.Cents   `json:"amount"`
	RunningBalance money.Cents   `json:"running_balance"`
	HasBalance     bool          `json:"has_balance"`
	MappingStatus  MappingStatus `json:"mapping_status"`
	GLMapping      *GLMapping    `json:"gl_mapping,omitempty"`
	JournalEntryID string        `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsDebit reports whether the transaction increases the bank account balance.
func (t *ImportedTransaction) IsDebit() bool {
	return t.Amount >= 0
}

// StagingSummary is recorded on the session once staging entries are built.
type StagingSummary struct {
	EntryCount   int         `json:"entry_count"`
	TotalDebits  money.Cents `json:"total_debits"`
	TotalCredits money.Cents `json:"total_credits"`
	IsBalanced   bool        `json:"is_balanced"`
	StagedAt     time.Time   `json:"staged_at"`
}

// ProductionSummary is recorded on the session once promotion completes.
type ProductionSummary struct {
	JournalCount      int         `json:"journal_count"`
	LedgerRowCount    int         `json:"ledger_row_count"`
	SkippedDuplicates int         `json:"skipped_duplicates"`
	TotalDebits       money.Cents `json:"total_debits"`
	TotalCredits      money.Cents `json:"total_credits"`
	PostedAt          time.Time   `json:"posted_at"`
}

// BankImportSession is the aggregate root driving the import pipeline.
// BankAccountID references the GL asset account that mirrors the bank
// account; every staged entry books one leg against it.
type BankImportSession struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	BankAccountID  string             `json:"bank_account_id"`
	FiscalPeriodID string             `json:"fiscal_period_id"`
	SourceName     string             `json:"source_name,omitempty"`
	Status         Status             `json:"status"`
	TxnCount       int                `json:"txn_count"`
	MappedCount    int                `json:"mapped_count"`
	UnmappedCount  int                `json:"unmapped_count"`
	Staging        *StagingSummary    `json:"staging,omitempty"`
	Production     *ProductionSummary `json:"production,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	PostedAt       *time.Time         `json:"posted_at,omitempty"`
	ArchivedAt     *time.Time         `json:"archived_at,omitempty"`
}

// ImportStatistics aggregates mapping progress and money totals over a
// session's transactions.
type ImportStatistics struct {
	Total         int         `json:"total"`
	Mapped        int         `json:"mapped"`
	Suggested     int         `json:"suggested"`
	Unmapped      int         `json:"unmapped"`
	Posted        int         `json:"posted"`
	TotalMoneyIn  money.Cents `json:"total_money_in"`
	TotalMoneyOut money.Cents `json:"total_money_out"`
	Net           money.Cents `json:"net"`
}

// ComputeStatistics derives ImportStatistics from a transaction set.
func ComputeStatistics(txns []*ImportedTransaction) ImportStatistics {
	var s ImportStatistics
	s.Total = len(txns)
	for _, t := range txns {
		switch t.MappingStatus {
		case MappingMapped:
			s.Mapped++
		case MappingSuggested:
			s.Suggested++
		case MappingUnmapped:
			s.Unmapped++
		case MappingPosted:
			s.Posted++
		}
		if t.Amount >= 0 {
			s.TotalMoneyIn += t.Amount
		} else {
			s.TotalMoneyOut += -t.Amount
		}
		s.Net += t.Amount
	}
	return s
}
