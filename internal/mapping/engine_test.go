package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/session"
)

const bankAccount = "acct-1000"

type fakeRuleStore struct {
	rules   map[string]*Rule
	usage   map[string]int
	listErr error
}

func newFakeRuleStore(rules ...*Rule) *fakeRuleStore {
	s := &fakeRuleStore{rules: map[string]*Rule{}, usage: map[string]int{}}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *fakeRuleStore) ListActiveRules(_ context.Context, tenantID string) ([]*Rule, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.IsActive {
			out = append(out, r)
		}
	}
	SortRules(out)
	return out, nil
}

func (s *fakeRuleStore) ListRules(_ context.Context, tenantID string) ([]*Rule, error) {
	var out []*Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRuleStore) GetRule(_ context.Context, _, ruleID string) (*Rule, error) {
	r, ok := s.rules[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return r, nil
}

func (s *fakeRuleStore) SaveRule(_ context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *fakeRuleStore) DeleteRule(_ context.Context, _, ruleID string) error {
	delete(s.rules, ruleID)
	return nil
}

func (s *fakeRuleStore) RecordUsage(_ context.Context, _, ruleID string) error {
	s.usage[ruleID]++
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*session.BankImportSession
	txns     map[string][]*session.ImportedTransaction
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*session.BankImportSession{},
		txns:     map[string][]*session.ImportedTransaction{},
	}
}

func (s *fakeSessionStore) CreateSession(_ context.Context, sess *session.BankImportSession) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeSessionStore) GetSession(_ context.Context, _, sessionID string) (*session.BankImportSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *fakeSessionStore) ListSessions(_ context.Context, tenantID string) ([]*session.BankImportSession, error) {
	var out []*session.BankImportSession
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) TransitionStatus(_ context.Context, _, sessionID string, from, to session.Status) error {
	if err := session.ValidateTransition(sessionID, from, to); err != nil {
		return err
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if sess.Status != from {
		return &session.ConcurrentTransitionError{SessionID: sessionID, Expected: from, Actual: sess.Status}
	}
	sess.Status = to
	return nil
}

func (s *fakeSessionStore) SetStagingSummary(_ context.Context, _, sessionID string, sum *session.StagingSummary) error {
	s.sessions[sessionID].Staging = sum
	return nil
}

func (s *fakeSessionStore) SetProductionSummary(_ context.Context, _, sessionID string, sum *session.ProductionSummary) error {
	s.sessions[sessionID].Production = sum
	return nil
}

func (s *fakeSessionStore) SaveTransactions(_ context.Context, txns []*session.ImportedTransaction) error {
	for _, t := range txns {
		s.txns[t.SessionID] = append(s.txns[t.SessionID], t)
	}
	return nil
}

func (s *fakeSessionStore) ListTransactions(_ context.Context, _, sessionID string) ([]*session.ImportedTransaction, error) {
	return s.txns[sessionID], nil
}

func (s *fakeSessionStore) UpdateTransactionMapping(_ context.Context, txn *session.ImportedTransaction) error {
	for i, t := range s.txns[txn.SessionID] {
		if t.ID == txn.ID {
			s.txns[txn.SessionID][i] = txn
			return nil
		}
	}
	return session.ErrSessionNotFound
}

func (s *fakeSessionStore) MarkTransactionPosted(_ context.Context, _, txnID, journalEntryID string) error {
	for _, txns := range s.txns {
		for _, t := range txns {
			if t.ID == txnID {
				t.MappingStatus = session.MappingPosted
				t.JournalEntryID = journalEntryID
				return nil
			}
		}
	}
	return session.ErrSessionNotFound
}

func testAccounts() *coa.StaticDirectory {
	return coa.NewStaticDirectory([]*coa.AccountRecord{
		{ID: bankAccount, Code: "1000", Name: "Business Cheque Account", Type: coa.TypeAsset, NormalBalance: coa.NormalDebit, IsActive: true},
		{ID: "acct-4000", Code: "4000", Name: "Sales Revenue", Type: coa.TypeRevenue, NormalBalance: coa.NormalCredit, IsActive: true},
		{ID: "acct-6200", Code: "6200", Name: "Rent Expense", Type: coa.TypeExpense, NormalBalance: coa.NormalDebit, IsActive: true},
	})
}

func paymentRule() *Rule {
	return &Rule{
		ID: "rule-payment", TenantID: "tenant-1", Name: "Client payments",
		PatternType: PatternContains, Pattern: "payment", MatchField: FieldDescription,
		TransactionType: TypeDebit, Priority: 100, AccountID: "acct-4000", IsActive: true,
	}
}

func rentRule() *Rule {
	return &Rule{
		ID: "rule-rent", TenantID: "tenant-1", Name: "Rent",
		PatternType: PatternStartsWith, Pattern: "office rent", MatchField: FieldDescription,
		TransactionType: TypeCredit, Priority: 90, AccountID: "acct-6200", IsActive: true,
	}
}

func TestMapTransactionFirstMatchWins(t *testing.T) {
	dir := testAccounts()
	store := newFakeRuleStore()
	e := NewEngine(store, newFakeSessionStore(), dir, nil)

	low := paymentRule()
	low.ID = "rule-low"
	low.Priority = 10
	low.AccountID = "acct-6200"
	rules := []*Rule{paymentRule(), low}
	SortRules(rules)

	txn := &session.ImportedTransaction{
		ID: "txn-1", TenantID: "tenant-1", Description: "Client PAYMENT received", Amount: 750000,
	}
	applied, mapErr := e.MapTransaction(context.Background(), txn, bankAccount, rules)
	require.Nil(t, mapErr)
	require.NotNil(t, applied)
	assert.Equal(t, "rule-payment", applied.ID)

	require.NotNil(t, txn.GLMapping)
	assert.Equal(t, bankAccount, txn.GLMapping.DebitAccountID)
	assert.Equal(t, "acct-4000", txn.GLMapping.CreditAccountID)
	assert.Equal(t, 1.0, txn.GLMapping.Confidence)
	assert.Equal(t, session.MappingMapped, txn.MappingStatus)
}

func TestMapTransactionSignFilter(t *testing.T) {
	e := NewEngine(newFakeRuleStore(), newFakeSessionStore(), testAccounts(), nil)

	// A debit-only rule must not match a money-out transaction.
	txn := &session.ImportedTransaction{ID: "txn-1", TenantID: "tenant-1", Description: "refund payment", Amount: -10000}
	applied, mapErr := e.MapTransaction(context.Background(), txn, bankAccount, []*Rule{paymentRule()})
	require.Nil(t, mapErr)
	assert.Nil(t, applied)
	assert.Equal(t, session.MappingUnmapped, txn.MappingStatus)

	// The credit-side rent rule books the expense as the debit leg.
	txn2 := &session.ImportedTransaction{ID: "txn-2", TenantID: "tenant-1", Description: "Office rent September", Amount: -50000}
	applied, mapErr = e.MapTransaction(context.Background(), txn2, bankAccount, []*Rule{rentRule()})
	require.Nil(t, mapErr)
	require.NotNil(t, applied)
	assert.Equal(t, "acct-6200", txn2.GLMapping.DebitAccountID)
	assert.Equal(t, bankAccount, txn2.GLMapping.CreditAccountID)
}

func TestMapTransactionUnknownAccount(t *testing.T) {
	e := NewEngine(newFakeRuleStore(), newFakeSessionStore(), testAccounts(), nil)

	rule := paymentRule()
	rule.AccountID = "acct-gone"
	txn := &session.ImportedTransaction{ID: "txn-1", TenantID: "tenant-1", Description: "payment", Amount: 100}

	applied, mapErr := e.MapTransaction(context.Background(), txn, bankAccount, []*Rule{rule})
	assert.Nil(t, applied)
	require.NotNil(t, mapErr)
	assert.Equal(t, "rule-payment", mapErr.RuleID)
	assert.Equal(t, session.MappingUnmapped, txn.MappingStatus)
	assert.Nil(t, txn.GLMapping)
}

func TestUsageCounterIdempotent(t *testing.T) {
	store := newFakeRuleStore(paymentRule())
	e := NewEngine(store, newFakeSessionStore(), testAccounts(), nil)
	rules := []*Rule{paymentRule()}

	txn := &session.ImportedTransaction{ID: "txn-1", TenantID: "tenant-1", Description: "payment", Amount: 100}
	_, mapErr := e.MapTransaction(context.Background(), txn, bankAccount, rules)
	require.Nil(t, mapErr)
	_, mapErr = e.MapTransaction(context.Background(), txn, bankAccount, rules)
	require.Nil(t, mapErr)

	assert.Equal(t, 1, store.usage["rule-payment"], "re-mapping with the same rule must not double-count")
}

func TestMapSession(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionStore()
	rules := newFakeRuleStore(paymentRule(), rentRule())
	e := NewEngine(rules, sessions, testAccounts(), nil)

	require.NoError(t, sessions.CreateSession(ctx, &session.BankImportSession{
		ID: "sess-1", TenantID: "tenant-1", BankAccountID: bankAccount, Status: session.StatusDraft,
	}))
	require.NoError(t, sessions.SaveTransactions(ctx, []*session.ImportedTransaction{
		{ID: "t1", SessionID: "sess-1", TenantID: "tenant-1", Description: "Client payment", Amount: 750000, MappingStatus: session.MappingUnmapped},
		{ID: "t2", SessionID: "sess-1", TenantID: "tenant-1", Description: "Office rent", Amount: -50000, MappingStatus: session.MappingUnmapped},
		{ID: "t3", SessionID: "sess-1", TenantID: "tenant-1", Description: "Mystery transfer", Amount: -999, MappingStatus: session.MappingUnmapped},
	}))

	result, err := e.MapSession(ctx, "tenant-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Mapped)
	assert.Equal(t, 1, result.Unmapped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, session.StatusReviewing, sessions.sessions["sess-1"].Status)

	// Re-running from reviewing is allowed and converges to the same result.
	result, err = e.MapSession(ctx, "tenant-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Mapped)
	assert.Equal(t, 1, rules.usage["rule-payment"])
}

func TestMapSessionFailureReleasesSession(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionStore()
	rules := newFakeRuleStore(paymentRule())
	e := NewEngine(rules, sessions, testAccounts(), nil)

	require.NoError(t, sessions.CreateSession(ctx, &session.BankImportSession{
		ID: "sess-1", TenantID: "tenant-1", BankAccountID: bankAccount, Status: session.StatusDraft,
	}))
	require.NoError(t, sessions.SaveTransactions(ctx, []*session.ImportedTransaction{
		{ID: "t1", SessionID: "sess-1", TenantID: "tenant-1", Description: "Client payment", Amount: 750000, MappingStatus: session.MappingUnmapped},
	}))

	rules.listErr = errors.New("rule store unavailable")
	_, err := e.MapSession(ctx, "tenant-1", "sess-1")
	require.Error(t, err)

	// A failed run must not hold the session; it lands in reviewing so the
	// next run can pick it up.
	assert.Equal(t, session.StatusReviewing, sessions.sessions["sess-1"].Status)

	rules.listErr = nil
	result, err := e.MapSession(ctx, "tenant-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Mapped)
	assert.Equal(t, session.StatusReviewing, sessions.sessions["sess-1"].Status)
}

func TestMapSessionRejectsWrongState(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionStore()
	e := NewEngine(newFakeRuleStore(), sessions, testAccounts(), nil)

	require.NoError(t, sessions.CreateSession(ctx, &session.BankImportSession{
		ID: "sess-1", TenantID: "tenant-1", Status: session.StatusStaged,
	}))
	_, err := e.MapSession(ctx, "tenant-1", "sess-1")
	var tErr *session.InvalidStateTransitionError
	require.ErrorAs(t, err, &tErr)
}

func TestApplyBulk(t *testing.T) {
	ctx := context.Background()
	sessions := newFakeSessionStore()
	rules := newFakeRuleStore()
	e := NewEngine(rules, sessions, testAccounts(), nil)

	require.NoError(t, sessions.CreateSession(ctx, &session.BankImportSession{
		ID: "sess-1", TenantID: "tenant-1", BankAccountID: bankAccount, Status: session.StatusReviewing,
	}))
	require.NoError(t, sessions.SaveTransactions(ctx, []*session.ImportedTransaction{
		{ID: "t1", SessionID: "sess-1", TenantID: "tenant-1", Description: "Stripe payout Jan", Amount: 10000, MappingStatus: session.MappingUnmapped},
		{ID: "t2", SessionID: "sess-1", TenantID: "tenant-1", Description: "Stripe payout Feb", Amount: 20000, MappingStatus: session.MappingUnmapped},
		{ID: "t3", SessionID: "sess-1", TenantID: "tenant-1", Description: "Unrelated", Amount: 300, MappingStatus: session.MappingUnmapped},
	}))

	result, err := e.ApplyBulk(ctx, BulkMappingRequest{
		TenantID: "tenant-1", SessionID: "sess-1",
		TransactionIDs: []string{"t1", "t2"},
		AccountID:      "acct-4000",
		SaveRule:       true, RuleName: "Stripe payouts", RulePattern: "stripe payout",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Mapped)

	txns, _ := sessions.ListTransactions(ctx, "tenant-1", "sess-1")
	assert.Equal(t, session.MappingMapped, txns[0].MappingStatus)
	assert.Equal(t, session.MappingMapped, txns[1].MappingStatus)
	assert.Equal(t, session.MappingUnmapped, txns[2].MappingStatus)

	saved, err := rules.ListActiveRules(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "stripe payout", saved[0].Pattern)
}

func TestRuleMatchesAmountAndRegex(t *testing.T) {
	txn := &session.ImportedTransaction{Description: "ATM FEE #2231", Reference: "FEE-2231", Amount: -250}

	amountRule := &Rule{PatternType: PatternExact, Pattern: "2.50", MatchField: FieldAmount, TransactionType: TypeBoth}
	assert.True(t, amountRule.Matches(txn))

	regexRule := &Rule{PatternType: PatternRegex, Pattern: `^atm fee #\d+$`, MatchField: FieldDescription, TransactionType: TypeCredit}
	assert.True(t, regexRule.Matches(txn))

	refRule := &Rule{PatternType: PatternEndsWith, Pattern: "2231", MatchField: FieldReference, TransactionType: TypeBoth}
	assert.True(t, refRule.Matches(txn))
}

func TestRuleValidate(t *testing.T) {
	r := paymentRule()
	require.NoError(t, r.Validate())

	bad := paymentRule()
	bad.PatternType = PatternRegex
	bad.Pattern = "(unclosed"
	assert.Error(t, bad.Validate())

	bad = paymentRule()
	bad.MatchField = "memo"
	assert.Error(t, bad.Validate())

	bad = paymentRule()
	bad.AccountID = ""
	assert.Error(t, bad.Validate())
}
