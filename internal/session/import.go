package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/money"
)

// BankTransactionInput is the untrusted shape produced by statement
// extraction. Exactly one of Debit or Credit must be present; Debit means
// money out of the bank account, Credit means money in, matching how banks
// print statements.
type BankTransactionInput struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Reference   string       `json:"reference,omitempty"`
	Category    string       `json:"category,omitempty"`
	Debit       *json.Number `json:"debit,omitempty"`
	Credit      *json.Number `json:"credit,omitempty"`
	Balance     *json.Number `json:"balance,omitempty"`
}

// InputError reports a rejected statement line with its position.
type InputError struct {
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("statement line %d rejected: %s", e.Index, e.Reason)
}

// NormalizeInputs validates raw statement lines and converts them to
// ImportedTransactions. A single bad line rejects only that line: valid
// transactions are returned alongside the per-line errors.
func NormalizeInputs(tenantID, sessionID string, inputs []BankTransactionInput) ([]*ImportedTransaction, []*InputError) {
	txns := make([]*ImportedTransaction, 0, len(inputs))
	var errs []*InputError

	reject := func(i int, reason string) {
		errs = append(errs, &InputError{Index: i, Reason: reason})
	}

	for i, in := range inputs {
		date, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			if date, err = time.Parse(time.RFC3339, in.Date); err != nil {
				reject(i, fmt.Sprintf("unparseable date %q", in.Date))
				continue
			}
		}

		if in.Debit == nil && in.Credit == nil {
			reject(i, "neither debit nor credit present")
			continue
		}
		if in.Debit != nil && in.Credit != nil {
			reject(i, "both debit and credit present")
			continue
		}

		var amount money.Cents
		if in.Credit != nil {
			c, err := money.ParseString(in.Credit.String())
			if err != nil {
				reject(i, fmt.Sprintf("bad credit amount %q", in.Credit.String()))
				continue
			}
			if c < 0 {
				reject(i, "negative credit amount")
				continue
			}
			amount = c
		} else {
			d, err := money.ParseString(in.Debit.String())
			if err != nil {
				reject(i, fmt.Sprintf("bad debit amount %q", in.Debit.String()))
				continue
			}
			if d < 0 {
				reject(i, "negative debit amount")
				continue
			}
			amount = -d
		}

		var balance money.Cents
		hasBalance := in.Balance != nil
		if hasBalance {
			b, err := money.ParseString(in.Balance.String())
			if err != nil {
				reject(i, fmt.Sprintf("bad running balance %q", in.Balance.String()))
				continue
			}
			balance = b
		}

		now := time.Now().UTC()
		txns = append(txns, &ImportedTransaction{
			ID:             uuid.New().String(),
			SessionID:      sessionID,
			TenantID:       tenantID,
			Date:           date,
			Description:    in.Description,
			Reference:      in.Reference,
			Category:       in.Category,
			Amount:         amount,
			RunningBalance: balance,
			HasBalance:     hasBalance,
			MappingStatus:  MappingUnmapped,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return txns, errs
}

// VerifyRunningBalances cross-checks consecutive running balances against
// the transaction amounts. Lines whose statement printed no balance are
// skipped; a line at exactly 0.00 still participates. A mismatch means the
// extraction mis-read a sign or dropped a line; callers surface these as
// warnings, not hard failures.
func VerifyRunningBalances(txns []*ImportedTransaction) []string {
	var warnings []string
	for i := 1; i < len(txns); i++ {
		prev, cur := txns[i-1], txns[i]
		if !prev.HasBalance || !cur.HasBalance {
			continue
		}
		expected := prev.RunningBalance + cur.Amount
		if expected != cur.RunningBalance {
			warnings = append(warnings, fmt.Sprintf(
				"running balance mismatch at %s: expected %s, statement shows %s",
				cur.Date.Format("2006-01-02"), expected.String(), cur.RunningBalance.String()))
		}
	}
	return warnings
}
