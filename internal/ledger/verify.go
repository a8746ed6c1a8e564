package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/money"
)

// AccountBalance is the per-account breakdown produced by verification.
type AccountBalance struct {
	AccountID   string      `json:"account_id"`
	AccountCode string      `json:"account_code"`
	AccountName string      `json:"account_name"`
	Debits      money.Cents `json:"debits"`
	Credits     money.Cents `json:"credits"`
	Balance     money.Cents `json:"balance"`
	EntryCount  int         `json:"entry_count"`
}

// Verification is the result of a balance check over a set of journal lines.
// It is a pure aggregation: safe to run against staging or production data at
// any time, independent of any write path.
type Verification struct {
	TotalDebits  money.Cents      `json:"total_debits"`
	TotalCredits money.Cents      `json:"total_credits"`
	Difference   money.Cents      `json:"difference"`
	IsBalanced   bool             `json:"is_balanced"`
	Accounts     []AccountBalance `json:"accounts"`
	VerifiedAt   time.Time        `json:"verified_at"`
	Errors       []string         `json:"errors,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// VerifyLines aggregates debits and credits across journal lines.
func VerifyLines(lines []JournalLine) Verification {
	v := Verification{VerifiedAt: time.Now().UTC()}
	byAccount := make(map[string]*AccountBalance)

	for _, l := range lines {
		v.TotalDebits += l.Debit
		v.TotalCredits += l.Credit

		ab, ok := byAccount[l.AccountCode]
		if !ok {
			ab = &AccountBalance{
				AccountID:   l.AccountID,
				AccountCode: l.AccountCode,
				AccountName: l.AccountName,
			}
			byAccount[l.AccountCode] = ab
		}
		ab.Debits += l.Debit
		ab.Credits += l.Credit
		ab.Balance += l.Debit - l.Credit
		ab.EntryCount++
	}

	v.Difference = (v.TotalDebits - v.TotalCredits).Abs()
	v.IsBalanced = money.WithinEpsilon(v.TotalDebits, v.TotalCredits)
	if !v.IsBalanced {
		v.Errors = append(v.Errors, fmt.Sprintf(
			"not balanced: debits %s != credits %s", v.TotalDebits, v.TotalCredits))
	}

	codes := make([]string, 0, len(byAccount))
	for code := range byAccount {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		v.Accounts = append(v.Accounts, *byAccount[code])
	}
	return v
}

// VerifyEntries flattens journal entries and verifies the combined line set.
func VerifyEntries(entries []*JournalEntry) Verification {
	var lines []JournalLine
	for _, e := range entries {
		lines = append(lines, e.Lines...)
	}
	return VerifyLines(lines)
}

// VerifyLedgerRows verifies posted ledger rows directly.
func VerifyLedgerRows(rows []*LedgerEntry) Verification {
	lines := make([]JournalLine, len(rows))
	for i, r := range rows {
		lines[i] = JournalLine{
			ID:          r.JournalLineID,
			AccountID:   r.AccountID,
			AccountCode: r.AccountCode,
			AccountName: r.AccountName,
			Debit:       r.Debit,
			Credit:      r.Credit,
			Currency:    r.Currency,
		}
	}
	return VerifyLines(lines)
}

// IssueSeverity distinguishes blocking errors from advisory warnings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue describes one problem found while validating an entry.
type ValidationIssue struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
	EntryID  string        `json:"entry_id,omitempty"`
}

// ValidationResult collects issues for a journal entry.
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Issues  []ValidationIssue `json:"issues"`
}

// ValidateEntry checks the structural invariants of a journal entry before it
// may be written anywhere: at least two lines, exactly one side per line,
// debits equal credits, and (when a directory is supplied) every referenced
// account exists and is active.
func ValidateEntry(ctx context.Context, entry *JournalEntry, dir coa.Directory) ValidationResult {
	var issues []ValidationIssue

	if len(entry.Lines) < 2 {
		issues = append(issues, ValidationIssue{
			Code:     "TOO_FEW_LINES",
			Message:  "journal entry must contain at least two lines",
			Severity: SeverityError,
			EntryID:  entry.ID,
		})
	}

	for _, l := range entry.Lines {
		hasDebit := l.Debit != 0
		hasCredit := l.Credit != 0
		if hasDebit == hasCredit {
			issues = append(issues, ValidationIssue{
				Code:     "ONE_SIDE_PER_LINE",
				Message:  fmt.Sprintf("line %s must have exactly one of debit or credit", l.ID),
				Severity: SeverityError,
				EntryID:  entry.ID,
			})
		}
		if l.Debit < 0 || l.Credit < 0 {
			issues = append(issues, ValidationIssue{
				Code:     "NEGATIVE_AMOUNT",
				Message:  fmt.Sprintf("line %s carries a negative amount", l.ID),
				Severity: SeverityError,
				EntryID:  entry.ID,
			})
		}
		if dir != nil {
			acct, err := dir.GetAccount(ctx, l.AccountID)
			if err != nil {
				issues = append(issues, ValidationIssue{
					Code:     "UNKNOWN_ACCOUNT",
					Message:  fmt.Sprintf("line %s references unknown account %s", l.ID, l.AccountID),
					Severity: SeverityError,
					EntryID:  entry.ID,
				})
			} else if !acct.IsActive {
				issues = append(issues, ValidationIssue{
					Code:     "INACTIVE_ACCOUNT",
					Message:  fmt.Sprintf("line %s references inactive account %s", l.ID, acct.Code),
					Severity: SeverityWarning,
					EntryID:  entry.ID,
				})
			}
		}
	}

	if !entry.IsBalanced() {
		issues = append(issues, ValidationIssue{
			Code: "UNBALANCED_ENTRY",
			Message: fmt.Sprintf("debits %s != credits %s",
				entry.TotalDebits(), entry.TotalCredits()),
			Severity: SeverityError,
			EntryID:  entry.ID,
		})
	}

	valid := true
	for _, is := range issues {
		if is.Severity == SeverityError {
			valid = false
			break
		}
	}
	return ValidationResult{IsValid: valid, Issues: issues}
}
