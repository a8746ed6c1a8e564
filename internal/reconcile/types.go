package reconcile

import (
	"time"

	"github.com/example/bank-ledger/internal/money"
)

// SessionStatus is the lifecycle of a reconciliation session.
type SessionStatus string

const (
	SessionDraft      SessionStatus = "draft"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionArchived   SessionStatus = "archived"
)

// MatchStatus is the lifecycle of one bank-to-ledger match. Confirmation is
// always an explicit operator action; the matcher only ever suggests.
type MatchStatus string

const (
	MatchSuggested MatchStatus = "suggested"
	MatchConfirmed MatchStatus = "confirmed"
	MatchRejected  MatchStatus = "rejected"
)

// Match rule labels recorded for audit on each candidate.
const (
	RuleExactMatch      = "exact_match"
	RuleAmountDateMatch = "amount_date_match"
	RuleReferenceMatch  = "reference_match"
	RuleFuzzyMatch      = "fuzzy_match"
	RuleManual          = "manual"
)

// AdjustmentType classifies correcting entries raised during reconciliation.
type AdjustmentType string

const (
	AdjustmentFee      AdjustmentType = "fee"
	AdjustmentInterest AdjustmentType = "interest"
	AdjustmentTiming   AdjustmentType = "timing"
	AdjustmentOther    AdjustmentType = "other"
)

// Session is a bank-account-scoped review window under which matches and
// adjustments are recorded.
type Session struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	BankAccountID  string        `json:"bank_account_id"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	OpeningBalance money.Cents   `json:"opening_balance"`
	ClosingBalance money.Cents   `json:"closing_balance"`
	Status         SessionStatus `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Match links one bank transaction to one ledger transaction. A ledger
// transaction id appears in at most one confirmed match at a time.
type Match struct {
	ID                  string      `json:"id"`
	TenantID            string      `json:"tenant_id"`
	ReconciliationID    string      `json:"reconciliation_id"`
	BankTransactionID   string      `json:"bank_transaction_id"`
	LedgerTransactionID string      `json:"ledger_transaction_id"`
	Amount              money.Cents `json:"amount"`
	Confidence          float64     `json:"confidence"`
	MatchRule           string      `json:"match_rule"`
	Status              MatchStatus `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	ConfirmedAt         *time.Time  `json:"confirmed_at,omitempty"`
	ConfirmedBy         string      `json:"confirmed_by,omitempty"`
}

// Adjustment is a correcting entry raised during reconciliation. Immutable
// once posted; a reversal creates a new journal and stamps the reversal
// fields here, never editing the original journal.
type Adjustment struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	ReconciliationID  string         `json:"reconciliation_id"`
	Type              AdjustmentType `json:"type"`
	Description       string         `json:"description"`
	Amount            money.Cents    `json:"amount"`
	AccountID         string         `json:"account_id"`
	PostedJournalID   string         `json:"posted_journal_id"`
	ReversalJournalID string         `json:"reversal_journal_id,omitempty"`
	ReversalReason    string         `json:"reversal_reason,omitempty"`
	ReversedAt        *time.Time     `json:"reversed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CreatedBy         string         `json:"created_by,omitempty"`
}

// IsReversed reports whether a reversal journal has been posted for this
// adjustment.
func (a *Adjustment) IsReversed() bool {
	return a.ReversalJournalID != ""
}

// BankTransaction is the matcher's view of one statement line from the
// external bank feed.
type BankTransaction struct {
	ID          string      `json:"id"`
	Date        time.Time   `json:"date"`
	Description string      `json:"description"`
	Reference   string      `json:"reference,omitempty"`
	Amount      money.Cents `json:"amount"`
}

// LedgerTransaction is the matcher's view of one ledger-side transaction
// for the reconciled bank account.
type LedgerTransaction struct {
	ID          string      `json:"id"`
	Date        time.Time   `json:"date"`
	Description string      `json:"description"`
	Reference   string      `json:"reference,omitempty"`
	Amount      money.Cents `json:"amount"`
}

// AutoMatchCandidate is one scored suggestion produced by the matcher.
type AutoMatchCandidate struct {
	BankTransactionID   string      `json:"bank_transaction_id"`
	LedgerTransactionID string      `json:"ledger_transaction_id"`
	Amount              money.Cents `json:"amount"`
	AmountDiff          money.Cents `json:"amount_diff"`
	DateDiffDays        int         `json:"date_diff_days"`
	Confidence          float64     `json:"confidence"`
	MatchRule           string      `json:"match_rule"`
}

// Summary aggregates the state of one reconciliation session.
type Summary struct {
	ReconciliationID  string      `json:"reconciliation_id"`
	Matched           int         `json:"matched"`
	Suggested         int         `json:"suggested"`
	UnmatchedBank     int         `json:"unmatched_bank"`
	UnmatchedLedger   int         `json:"unmatched_ledger"`
	AdjustmentCount   int         `json:"adjustment_count"`
	AdjustmentTotal   money.Cents `json:"adjustment_total"`
	BalanceDifference money.Cents `json:"balance_difference"`
}
