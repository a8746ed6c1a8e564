package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/money"
)

func adjustmentFixture(t *testing.T) (*AdjustmentBuilder, *memStore, *fakeJournals) {
	t.Helper()
	store := newMemStore()
	journals := newFakeJournals()
	dir := coa.NewStaticDirectory([]*coa.AccountRecord{
		{ID: "acct_bank", Code: "1000", Name: "Operating Bank", Type: coa.TypeAsset, NormalBalance: coa.NormalDebit, IsActive: true},
		{ID: "acct_fees", Code: "6600", Name: "Bank Fees", Type: coa.TypeExpense, NormalBalance: coa.NormalDebit, IsActive: true},
		{ID: "acct_interest", Code: "4200", Name: "Interest Income", Type: coa.TypeRevenue, NormalBalance: coa.NormalCredit, IsActive: true},
	})
	require.NoError(t, store.CreateSession(context.Background(), &Session{
		ID:            "recon-1",
		TenantID:      "tenant-1",
		BankAccountID: "acct_bank",
		PeriodStart:   day(1),
		PeriodEnd:     day(30),
		Status:        SessionInProgress,
	}))
	return NewAdjustmentBuilder(store, journals, dir, "USD", nil), store, journals
}

func feeRequest(amount money.Cents) CreateAdjustmentRequest {
	return CreateAdjustmentRequest{
		TenantID:         "tenant-1",
		ReconciliationID: "recon-1",
		Type:             AdjustmentFee,
		Description:      "Monthly account fee",
		Amount:           amount,
		AccountID:        "acct_fees",
		FiscalPeriodID:   "fp-2025-09",
		CreatedBy:        "ops@example.com",
	}
}

func TestCreateFeeAdjustmentPostsBalancedJournal(t *testing.T) {
	b, _, journals := adjustmentFixture(t)

	adj, err := b.Create(context.Background(), feeRequest(-350))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(-350), adj.Amount)
	assert.False(t, adj.IsReversed())

	entry := journals.posted[adj.PostedJournalID]
	require.NotNil(t, entry)
	require.Len(t, entry.Lines, 2)
	assert.True(t, entry.IsBalanced())
	assert.Equal(t, "RECON_ADJ", entry.JournalCode)

	// Money out of the bank: credit the bank account, debit the fee expense.
	assert.Equal(t, "acct_bank", entry.Lines[0].AccountID)
	assert.Equal(t, money.Cents(350), entry.Lines[0].Credit)
	assert.Equal(t, money.Cents(0), entry.Lines[0].Debit)
	assert.Equal(t, "acct_fees", entry.Lines[1].AccountID)
	assert.Equal(t, money.Cents(350), entry.Lines[1].Debit)
}

func TestCreateInterestAdjustmentDebitsBank(t *testing.T) {
	b, _, journals := adjustmentFixture(t)

	adj, err := b.Create(context.Background(), CreateAdjustmentRequest{
		TenantID:         "tenant-1",
		ReconciliationID: "recon-1",
		Type:             AdjustmentInterest,
		Description:      "Interest earned",
		Amount:           1225,
		AccountID:        "acct_interest",
		FiscalPeriodID:   "fp-2025-09",
	})
	require.NoError(t, err)

	entry := journals.posted[adj.PostedJournalID]
	require.NotNil(t, entry)
	assert.Equal(t, money.Cents(1225), entry.Lines[0].Debit)
	assert.Equal(t, "acct_interest", entry.Lines[1].AccountID)
	assert.Equal(t, money.Cents(1225), entry.Lines[1].Credit)
}

func TestCreateAdjustmentValidation(t *testing.T) {
	b, _, _ := adjustmentFixture(t)
	ctx := context.Background()

	_, err := b.Create(ctx, feeRequest(0))
	assert.ErrorContains(t, err, "non-zero")

	req := feeRequest(-350)
	req.Type = "correction"
	_, err = b.Create(ctx, req)
	assert.ErrorContains(t, err, "unknown adjustment type")

	req = feeRequest(-350)
	req.AccountID = "acct_missing"
	_, err = b.Create(ctx, req)
	var notFound *coa.ErrAccountNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestCreateAdjustmentRejectsClosedSession(t *testing.T) {
	b, store, _ := adjustmentFixture(t)
	store.sessions["recon-1"].Status = SessionCompleted

	_, err := b.Create(context.Background(), feeRequest(-350))
	assert.ErrorContains(t, err, "adjustments are closed")
}

// A -3.50 bank fee is posted, then reversed. Across both journals the fee
// expense account must net to exactly zero, and the original journal must be
// untouched.
func TestReverseFeeAdjustmentNetsToZero(t *testing.T) {
	b, _, journals := adjustmentFixture(t)
	ctx := context.Background()

	adj, err := b.Create(ctx, feeRequest(-350))
	require.NoError(t, err)

	original := journals.posted[adj.PostedJournalID]
	require.NotNil(t, original)
	originalLines := make([]money.Cents, 0, 4)
	for _, l := range original.Lines {
		originalLines = append(originalLines, l.Debit, l.Credit)
	}

	reversed, err := b.Reverse(ctx, "tenant-1", adj.ID, "duplicate of statement fee", "ops@example.com")
	require.NoError(t, err)
	assert.True(t, reversed.IsReversed())
	assert.Equal(t, "duplicate of statement fee", reversed.ReversalReason)
	require.NotNil(t, reversed.ReversedAt)

	reversal := journals.posted[reversed.ReversalJournalID]
	require.NotNil(t, reversal)
	assert.Equal(t, original.ID, reversal.ReversalOf)
	assert.True(t, reversal.IsBalanced())
	require.Len(t, reversal.Lines, 2)

	// Legs are swapped per line, ids are the reversal's own.
	for i, l := range reversal.Lines {
		assert.Equal(t, original.Lines[i].AccountID, l.AccountID)
		assert.Equal(t, original.Lines[i].Credit, l.Debit)
		assert.Equal(t, original.Lines[i].Debit, l.Credit)
		assert.NotEqual(t, original.Lines[i].ID, l.ID)
	}

	// Original journal unchanged.
	for i, l := range original.Lines {
		assert.Equal(t, originalLines[2*i], l.Debit)
		assert.Equal(t, originalLines[2*i+1], l.Credit)
	}

	var feeNet money.Cents
	for _, entry := range journals.posted {
		for _, l := range entry.Lines {
			if l.AccountID == "acct_fees" {
				feeNet += l.Debit - l.Credit
			}
		}
	}
	assert.Equal(t, money.Cents(0), feeNet, "fee expense must net to 0.00 across original and reversal")
}

func TestReverseTwiceRejected(t *testing.T) {
	b, _, _ := adjustmentFixture(t)
	ctx := context.Background()

	adj, err := b.Create(ctx, feeRequest(-350))
	require.NoError(t, err)

	_, err = b.Reverse(ctx, "tenant-1", adj.ID, "first", "ops@example.com")
	require.NoError(t, err)

	_, err = b.Reverse(ctx, "tenant-1", adj.ID, "second", "ops@example.com")
	assert.ErrorContains(t, err, "already reversed")
}

func TestNetAdjustmentEffectSkipsReversed(t *testing.T) {
	now := time.Now().UTC()
	adjustments := []*Adjustment{
		{ID: "a1", Amount: -350},
		{ID: "a2", Amount: 1225},
		{ID: "a3", Amount: -9900, ReversalJournalID: "je_rev", ReversedAt: &now},
	}
	assert.Equal(t, money.Cents(875), NetAdjustmentEffect(adjustments))
	assert.Equal(t, money.Cents(0), NetAdjustmentEffect(nil))
}

func TestCreateBulkContinuesPastFailures(t *testing.T) {
	b, _, _ := adjustmentFixture(t)

	reqs := []CreateAdjustmentRequest{
		feeRequest(-350),
		feeRequest(0),
		feeRequest(-125),
	}
	created, errs := b.CreateBulk(context.Background(), reqs)
	assert.Len(t, created, 2)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[1], "non-zero")
}
