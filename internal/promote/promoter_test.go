package promote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/money"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/internal/staging"
	"github.com/example/bank-ledger/pkg/audit"
)

type fakeLedgerStore struct {
	posted    []*ledger.JournalEntry
	byBankTxn map[string]*ledger.JournalEntry

	failAfter int // fail PostJournals once this many calls have succeeded; -1 disables
	calls     int
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{byBankTxn: map[string]*ledger.JournalEntry{}, failAfter: -1}
}

func (s *fakeLedgerStore) PostJournals(_ context.Context, entries []*ledger.JournalEntry) error {
	if s.failAfter >= 0 && s.calls >= s.failAfter {
		return errors.New("simulated batch write failure")
	}
	s.calls++
	for _, e := range entries {
		s.posted = append(s.posted, e)
		s.byBankTxn[e.ImportSessionID+"|"+e.BankTransactionID] = e
	}
	return nil
}

func (s *fakeLedgerStore) FindBankImportJournal(_ context.Context, _, sessionID, bankTxnID string) (*ledger.JournalEntry, error) {
	return s.byBankTxn[sessionID+"|"+bankTxnID], nil
}

type fakeStagingStore struct {
	journals []*staging.JournalEntry
	links    map[string]string
	archived bool
}

func (s *fakeStagingStore) ListJournals(_ context.Context, _, _ string) ([]*staging.JournalEntry, error) {
	return s.journals, nil
}

func (s *fakeStagingStore) MarkPosted(_ context.Context, _, _ string, journalLinks map[string]string) error {
	if s.links == nil {
		s.links = map[string]string{}
	}
	for k, v := range journalLinks {
		s.links[k] = v
	}
	return nil
}

func (s *fakeStagingStore) ArchiveSession(_ context.Context, _, _ string) (int, error) {
	s.archived = true
	return len(s.journals), nil
}

type fakeSessionStore struct {
	sessions map[string]*session.BankImportSession
	posted   map[string]string
}

func newFakeSessionStore(sess *session.BankImportSession) *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*session.BankImportSession{sess.ID: sess},
		posted:   map[string]string{},
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

func (s *fakeSessionStore) ListSessions(_ context.Context, _ string) ([]*session.BankImportSession, error) {
	return nil, nil
}

func (s *fakeSessionStore) TransitionStatus(_ context.Context, _, sessionID string, from, to session.Status) error {
	if err := session.ValidateTransition(sessionID, from, to); err != nil {
		return err
	}
	sess := s.sessions[sessionID]
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

func (s *fakeSessionStore) SaveTransactions(_ context.Context, _ []*session.ImportedTransaction) error {
	return nil
}

func (s *fakeSessionStore) ListTransactions(_ context.Context, _, _ string) ([]*session.ImportedTransaction, error) {
	return nil, nil
}

func (s *fakeSessionStore) UpdateTransactionMapping(_ context.Context, _ *session.ImportedTransaction) error {
	return nil
}

func (s *fakeSessionStore) MarkTransactionPosted(_ context.Context, _, txnID, journalEntryID string) error {
	s.posted[txnID] = journalEntryID
	return nil
}

func stagedSession() *session.BankImportSession {
	return &session.BankImportSession{
		ID: "sess-1", TenantID: "tenant-1", BankAccountID: "acct-1000",
		FiscalPeriodID: "2025-09", Status: session.StatusStaged,
		Staging: &session.StagingSummary{EntryCount: 1, IsBalanced: true, StagedAt: time.Now()},
	}
}

func stagedJournals(n int) []*staging.JournalEntry {
	out := make([]*staging.JournalEntry, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("stg_sess-1_t%d", i)
		out[i] = &staging.JournalEntry{
			ID: id, SessionID: "sess-1", TenantID: "tenant-1",
			BankTransactionID: fmt.Sprintf("t%d", i),
			FiscalPeriodID:    "2025-09",
			TransactionDate:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			Description:       fmt.Sprintf("txn %d", i),
			Status:            staging.StatusStaged,
			Lines: []ledger.JournalLine{
				{ID: id + "_0", AccountID: "acct-1000", AccountCode: "1000", Debit: 7500, Currency: "USD"},
				{ID: id + "_1", AccountID: "acct-4000", AccountCode: "4000", Credit: 7500, Currency: "USD"},
			},
		}
	}
	return out
}

func TestPromoteHappyPath(t *testing.T) {
	ctx := context.Background()
	ledgerStore := newFakeLedgerStore()
	stagingStore := &fakeStagingStore{journals: stagedJournals(3)}
	sessions := newFakeSessionStore(stagedSession())
	auditLog := audit.NewChainLogger()
	p := NewPromoter(ledgerStore, stagingStore, sessions, auditLog, nil)

	summary, err := p.Promote(ctx, "tenant-1", "sess-1", "operator@example.com")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.JournalCount)
	assert.Equal(t, 6, summary.LedgerRowCount)
	assert.Equal(t, 0, summary.SkippedDuplicates)
	assert.Equal(t, money.Cents(22500), summary.TotalDebits)
	assert.Equal(t, money.Cents(22500), summary.TotalCredits)

	assert.Equal(t, session.StatusPosted, sessions.sessions["sess-1"].Status)
	assert.NotNil(t, sessions.sessions["sess-1"].Production)
	assert.True(t, stagingStore.archived)

	// Every staging row is linked to its production journal.
	assert.Len(t, stagingStore.links, 3)
	for _, e := range ledgerStore.posted {
		assert.Equal(t, ledger.StatusPosted, e.Status)
		assert.Equal(t, ledger.SourceBankImport, e.Source)
		assert.Equal(t, "sess-1", e.ImportSessionID)
		assert.NotEmpty(t, e.BankTransactionID)
	}
	assert.Len(t, sessions.posted, 3)

	assert.True(t, audit.VerifyChain(auditLog.Entries()))
}

func TestPromoteIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	ledgerStore := newFakeLedgerStore()
	// 100 entries means two chunks at the batch ceiling; fail the second.
	stagingStore := &fakeStagingStore{journals: stagedJournals(100)}
	sessions := newFakeSessionStore(stagedSession())
	p := NewPromoter(ledgerStore, stagingStore, sessions, nil, nil)

	ledgerStore.failAfter = 1
	_, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	require.Error(t, err)
	assert.Equal(t, session.StatusStaged, sessions.sessions["sess-1"].Status,
		"failed promotion must return the session to staged")

	firstRun := len(ledgerStore.posted)
	require.Greater(t, firstRun, 0)
	require.Less(t, firstRun, 100)

	// Retry completes and creates no duplicates for the committed chunk.
	ledgerStore.failAfter = -1
	summary, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	require.NoError(t, err)

	assert.Len(t, ledgerStore.posted, 100, "retry must not re-create committed entries")
	assert.Equal(t, firstRun, summary.SkippedDuplicates)
	assert.Equal(t, 100-firstRun, summary.JournalCount)
	assert.Equal(t, session.StatusPosted, sessions.sessions["sess-1"].Status)
	assert.Len(t, stagingStore.links, 100)
}

func TestPromoteRequiresStagedSession(t *testing.T) {
	ctx := context.Background()
	sess := stagedSession()
	sess.Status = session.StatusReviewing
	p := NewPromoter(newFakeLedgerStore(), &fakeStagingStore{}, newFakeSessionStore(sess), nil, nil)

	_, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	var opErr *session.InvalidOperationError
	require.ErrorAs(t, err, &opErr)
}

func TestPromoteRequiresBalancedStaging(t *testing.T) {
	ctx := context.Background()
	sess := stagedSession()
	sess.Staging.IsBalanced = false
	p := NewPromoter(newFakeLedgerStore(), &fakeStagingStore{}, newFakeSessionStore(sess), nil, nil)

	_, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balanced")
}

func TestPromoteConcurrencyGuard(t *testing.T) {
	ctx := context.Background()
	sess := stagedSession()
	p := NewPromoter(newFakeLedgerStore(), &fakeStagingStore{journals: stagedJournals(1)}, newFakeSessionStore(sess), nil, nil)

	// Another promoter already holds the session.
	sess.Status = session.StatusPosting

	_, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	var opErr *session.InvalidOperationError
	require.ErrorAs(t, err, &opErr)
}

func TestPromoteCancelledBetweenChunks(t *testing.T) {
	sessions := newFakeSessionStore(stagedSession())
	p := NewPromoter(newFakeLedgerStore(), &fakeStagingStore{journals: stagedJournals(5)}, sessions, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Promote(ctx, "tenant-1", "sess-1", "op")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StatusStaged, sessions.sessions["sess-1"].Status)
}
