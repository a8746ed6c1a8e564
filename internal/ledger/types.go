package ledger

import (
	"time"

	"github.com/example/bank-ledger/internal/money"
)

// EntryStatus is the lifecycle state of a journal entry. Posted entries are
// immutable; the only sanctioned correction is a reversal entry.
type EntryStatus string

const (
	StatusDraft  EntryStatus = "draft"
	StatusPosted EntryStatus = "posted"
	StatusVoided EntryStatus = "voided"
)

// Source tags where a journal entry originated.
type Source string

const (
	SourceManual     Source = "manual"
	SourceBankImport Source = "bank_import"
	SourceAdjustment Source = "adjustment"
	SourceAccrual    Source = "accrual"
)

// JournalLine is one side of a double-entry. Exactly one of Debit/Credit is
// non-zero.
type JournalLine struct {
	ID          string
	AccountID   string
	AccountCode string
	AccountName string
	Description string
	Debit       money.Cents
	Credit      money.Cents
	Currency    string
}

// JournalEntry is a balanced set of lines representing one business event.
type JournalEntry struct {
	ID              string
	TenantID        string
	FiscalPeriodID  string
	JournalCode     string
	Reference       string
	Description     string
	Status          EntryStatus
	Source          Source
	TransactionDate time.Time
	PostingDate     time.Time
	CreatedBy       string

	// ReversalOf references the journal this entry reverses, if any.
	ReversalOf string

	// BankTransactionID is the idempotency key for bank_import entries: at
	// most one posted journal may carry a given (tenant, session, bank
	// transaction) triple.
	BankTransactionID string
	ImportSessionID   string

	Lines []JournalLine

	// Notes holds free-form audit commentary; everything else is typed.
	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalDebits sums the debit side of all lines.
func (e *JournalEntry) TotalDebits() money.Cents {
	var sum money.Cents
	for _, l := range e.Lines {
		sum += l.Debit
	}
	return sum
}

// TotalCredits sums the credit side of all lines.
func (e *JournalEntry) TotalCredits() money.Cents {
	var sum money.Cents
	for _, l := range e.Lines {
		sum += l.Credit
	}
	return sum
}

// IsBalanced reports whether debits equal credits within the cent epsilon.
func (e *JournalEntry) IsBalanced() bool {
	return money.WithinEpsilon(e.TotalDebits(), e.TotalCredits())
}

// LedgerEntry is one posted journal line carrying the running balance for its
// (account, fiscal period) key. Derived rows only; never created without a
// journal entry.
type LedgerEntry struct {
	ID                string
	TenantID          string
	JournalEntryID    string
	JournalLineID     string
	AccountID         string
	AccountCode       string
	AccountName       string
	Description       string
	Debit             money.Cents
	Credit            money.Cents
	CumulativeBalance money.Cents
	Currency          string
	TransactionDate   time.Time
	PostingDate       time.Time
	FiscalPeriodID    string
	Source            Source
	CreatedAt         time.Time
}

// Amount returns the entry's signed effect from the account's perspective:
// debit positive, credit negative. For the bank's own GL account (an asset)
// this matches the statement convention of money-in positive.
func (le *LedgerEntry) Amount() money.Cents {
	return le.Debit - le.Credit
}

// DuplicateGroup describes journal entries that share a bankTransactionId,
// discovered by the maintenance dedupe scan. Entries are ordered by CreatedAt
// ascending; the first is the keeper.
type DuplicateGroup struct {
	BankTransactionID string
	Entries           []*JournalEntry
}
