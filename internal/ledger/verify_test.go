package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/money"
)

func testDirectory() *coa.StaticDirectory {
	return coa.NewStaticDirectory([]*coa.AccountRecord{
		{ID: "acct-1000", Code: "1000", Name: "Business Cheque Account", Type: coa.TypeAsset, NormalBalance: coa.NormalDebit, IsActive: true},
		{ID: "acct-4000", Code: "4000", Name: "Sales Revenue", Type: coa.TypeRevenue, NormalBalance: coa.NormalCredit, IsActive: true},
		{ID: "acct-6600", Code: "6600", Name: "Bank Charges", Type: coa.TypeExpense, NormalBalance: coa.NormalDebit, IsActive: true},
		{ID: "acct-9999", Code: "9999", Name: "Suspense", Type: coa.TypeAsset, NormalBalance: coa.NormalDebit, IsActive: false},
	})
}

func balancedEntry() *JournalEntry {
	return &JournalEntry{
		ID:              "je-1",
		TenantID:        "tenant-1",
		FiscalPeriodID:  "2025-09",
		JournalCode:     "BANK_IMPORT",
		Status:          StatusDraft,
		Source:          SourceBankImport,
		TransactionDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Lines: []JournalLine{
			{ID: "je-1-0", AccountID: "acct-1000", AccountCode: "1000", Debit: 750000, Currency: "USD"},
			{ID: "je-1-1", AccountID: "acct-4000", AccountCode: "4000", Credit: 750000, Currency: "USD"},
		},
	}
}

func TestVerifyLinesBalanced(t *testing.T) {
	e := balancedEntry()
	v := VerifyLines(e.Lines)

	assert.True(t, v.IsBalanced)
	assert.Equal(t, money.Cents(750000), v.TotalDebits)
	assert.Equal(t, money.Cents(750000), v.TotalCredits)
	assert.Equal(t, money.Cents(0), v.Difference)
	assert.Empty(t, v.Errors)

	require.Len(t, v.Accounts, 2)
	assert.Equal(t, "1000", v.Accounts[0].AccountCode)
	assert.Equal(t, money.Cents(750000), v.Accounts[0].Balance)
	assert.Equal(t, 1, v.Accounts[0].EntryCount)
	assert.Equal(t, "4000", v.Accounts[1].AccountCode)
	assert.Equal(t, money.Cents(-750000), v.Accounts[1].Balance)
}

func TestVerifyLinesUnbalanced(t *testing.T) {
	lines := []JournalLine{
		{ID: "a", AccountCode: "1000", Debit: 10000},
		{ID: "b", AccountCode: "4000", Credit: 9999},
	}
	v := VerifyLines(lines)

	assert.False(t, v.IsBalanced)
	assert.Equal(t, money.Cents(1), v.Difference)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "not balanced")
}

func TestVerifyEntriesAcrossManyEntriesNoDrift(t *testing.T) {
	// Accumulating thousands of odd cent amounts must stay exact.
	var entries []*JournalEntry
	for i := 0; i < 5000; i++ {
		amount := money.Cents(3333 + i) // varying odd cents
		entries = append(entries, &JournalEntry{
			ID: "je",
			Lines: []JournalLine{
				{ID: "d", AccountCode: "1000", Debit: amount},
				{ID: "c", AccountCode: "4000", Credit: amount},
			},
		})
	}
	v := VerifyEntries(entries)
	assert.True(t, v.IsBalanced)
	assert.Equal(t, v.TotalDebits, v.TotalCredits)
}

func TestValidateEntry(t *testing.T) {
	ctx := context.Background()
	dir := testDirectory()

	t.Run("valid", func(t *testing.T) {
		res := ValidateEntry(ctx, balancedEntry(), dir)
		assert.True(t, res.IsValid)
	})

	t.Run("unbalanced", func(t *testing.T) {
		e := balancedEntry()
		e.Lines[1].Credit = 740000
		res := ValidateEntry(ctx, e, dir)
		assert.False(t, res.IsValid)
		assertHasIssue(t, res, "UNBALANCED_ENTRY")
	})

	t.Run("both sides on one line", func(t *testing.T) {
		e := balancedEntry()
		e.Lines[0].Credit = 100
		res := ValidateEntry(ctx, e, dir)
		assert.False(t, res.IsValid)
		assertHasIssue(t, res, "ONE_SIDE_PER_LINE")
	})

	t.Run("unknown account", func(t *testing.T) {
		e := balancedEntry()
		e.Lines[0].AccountID = "acct-missing"
		res := ValidateEntry(ctx, e, dir)
		assert.False(t, res.IsValid)
		assertHasIssue(t, res, "UNKNOWN_ACCOUNT")
	})

	t.Run("inactive account warns only", func(t *testing.T) {
		e := balancedEntry()
		e.Lines[0].AccountID = "acct-9999"
		res := ValidateEntry(ctx, e, dir)
		assert.True(t, res.IsValid)
		assertHasIssue(t, res, "INACTIVE_ACCOUNT")
	})

	t.Run("single line", func(t *testing.T) {
		e := balancedEntry()
		e.Lines = e.Lines[:1]
		res := ValidateEntry(ctx, e, dir)
		assert.False(t, res.IsValid)
		assertHasIssue(t, res, "TOO_FEW_LINES")
	})
}

func assertHasIssue(t *testing.T, res ValidationResult, code string) {
	t.Helper()
	for _, is := range res.Issues {
		if is.Code == code {
			return
		}
	}
	t.Errorf("expected issue %s, got %+v", code, res.Issues)
}
