package api

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/money"
	"github.com/example/bank-ledger/internal/reconcile"
	"github.com/example/bank-ledger/internal/session"
)

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

func (s *fakeSessionStore) GetSession(_ context.Context, tenantID, sessionID string) (*session.BankImportSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.TenantID != tenantID {
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeSessionStore) TransitionStatus(_ context.Context, tenantID, sessionID string, from, to session.Status) error {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.TenantID != tenantID {
		return session.ErrSessionNotFound
	}
	if err := session.ValidateTransition(sessionID, from, to); err != nil {
		return err
	}
	if sess.Status != from {
		return &session.ConcurrentTransitionError{SessionID: sessionID, Expected: from, Actual: sess.Status}
	}
	sess.Status = to
	return nil
}

func (s *fakeSessionStore) SetStagingSummary(_ context.Context, tenantID, sessionID string, sum *session.StagingSummary) error {
	sess, err := s.GetSession(context.Background(), tenantID, sessionID)
	if err != nil {
		return err
	}
	sess.Staging = sum
	return nil
}

func (s *fakeSessionStore) SetProductionSummary(_ context.Context, tenantID, sessionID string, sum *session.ProductionSummary) error {
	sess, err := s.GetSession(context.Background(), tenantID, sessionID)
	if err != nil {
		return err
	}
	sess.Production = sum
	return nil
}

func (s *fakeSessionStore) SaveTransactions(_ context.Context, txns []*session.ImportedTransaction) error {
	for _, t := range txns {
		s.txns[t.SessionID] = append(s.txns[t.SessionID], t)
		if sess, ok := s.sessions[t.SessionID]; ok {
			sess.TxnCount++
			sess.UnmappedCount++
		}
	}
	return nil
}

func (s *fakeSessionStore) ListTransactions(_ context.Context, tenantID, sessionID string) ([]*session.ImportedTransaction, error) {
	var out []*session.ImportedTransaction
	for _, t := range s.txns[sessionID] {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) UpdateTransactionMapping(_ context.Context, txn *session.ImportedTransaction) error {
	for i, t := range s.txns[txn.SessionID] {
		if t.ID == txn.ID {
			s.txns[txn.SessionID][i] = txn
			return nil
		}
	}
	return fmt.Errorf("transaction %s not found", txn.ID)
}

func (s *fakeSessionStore) MarkTransactionPosted(_ context.Context, tenantID, txnID, journalEntryID string) error {
	for _, txns := range s.txns {
		for _, t := range txns {
			if t.ID == txnID && t.TenantID == tenantID {
				t.MappingStatus = session.MappingPosted
				t.JournalEntryID = journalEntryID
				return nil
			}
		}
	}
	return fmt.Errorf("transaction %s not found", txnID)
}

type fakeRuleStore struct {
	rules map[string]*mapping.Rule
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: map[string]*mapping.Rule{}}
}

func (s *fakeRuleStore) ListActiveRules(_ context.Context, tenantID string) ([]*mapping.Rule, error) {
	var out []*mapping.Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.IsActive {
			out = append(out, r)
		}
	}
	mapping.SortRules(out)
	return out, nil
}

func (s *fakeRuleStore) ListRules(_ context.Context, tenantID string) ([]*mapping.Rule, error) {
	var out []*mapping.Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	mapping.SortRules(out)
	return out, nil
}

func (s *fakeRuleStore) GetRule(_ context.Context, tenantID, ruleID string) (*mapping.Rule, error) {
	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return nil, mapping.ErrRuleNotFound
	}
	return r, nil
}

func (s *fakeRuleStore) SaveRule(_ context.Context, rule *mapping.Rule) error {
	s.rules[rule.ID] = rule
	return nil
}

func (s *fakeRuleStore) DeleteRule(_ context.Context, tenantID, ruleID string) error {
	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return mapping.ErrRuleNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *fakeRuleStore) RecordUsage(_ context.Context, tenantID, ruleID string) error {
	if r, ok := s.rules[ruleID]; ok && r.TenantID == tenantID {
		r.UsageCount++
		now := time.Now().UTC()
		r.LastUsedAt = &now
	}
	return nil
}

type fakeLedgerStore struct {
	posted map[string]*ledger.JournalEntry
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{posted: map[string]*ledger.JournalEntry{}}
}

func (f *fakeLedgerStore) PostJournals(_ context.Context, entries []*ledger.JournalEntry) error {
	for _, e := range entries {
		if !e.IsBalanced() {
			return fmt.Errorf("journal %s does not balance", e.ID)
		}
		f.posted[e.ID] = e
	}
	return nil
}

func (f *fakeLedgerStore) GetJournal(_ context.Context, tenantID, journalID string) (*ledger.JournalEntry, error) {
	e, ok := f.posted[journalID]
	if !ok || e.TenantID != tenantID {
		return nil, ledger.ErrJournalNotFound
	}
	return e, nil
}

func (f *fakeLedgerStore) FindBankImportJournal(_ context.Context, tenantID, sessionID, bankTxnID string) (*ledger.JournalEntry, error) {
	for _, e := range f.posted {
		if e.TenantID == tenantID && e.ImportSessionID == sessionID && e.BankTransactionID == bankTxnID {
			return e, nil
		}
	}
	return nil, nil
}

type fakeBalances struct {
	balances map[string]money.Cents
}

func (f *fakeBalances) Balance(_ context.Context, tenantID, accountID, fiscalPeriodID string) (money.Cents, error) {
	return f.balances[accountID], nil
}

type fakeReconStore struct {
	sessions    map[string]*reconcile.Session
	matches     map[string]*reconcile.Match
	adjustments map[string]*reconcile.Adjustment
}

func newFakeReconStore() *fakeReconStore {
	return &fakeReconStore{
		sessions:    map[string]*reconcile.Session{},
		matches:     map[string]*reconcile.Match{},
		adjustments: map[string]*reconcile.Adjustment{},
	}
}

func (s *fakeReconStore) CreateSession(_ context.Context, sess *reconcile.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeReconStore) GetSession(_ context.Context, tenantID, id string) (*reconcile.Session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return nil, reconcile.ErrReconciliationNotFound
	}
	return sess, nil
}

func (s *fakeReconStore) ListSessions(_ context.Context, tenantID, bankAccountID string) ([]*reconcile.Session, error) {
	var out []*reconcile.Session
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && (bankAccountID == "" || sess.BankAccountID == bankAccountID) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fakeReconStore) UpdateSessionStatus(_ context.Context, tenantID, id string, from, to reconcile.SessionStatus) error {
	sess, ok := s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return reconcile.ErrReconciliationNotFound
	}
	if sess.Status != from {
		return fmt.Errorf("reconciliation %s is %s: %w", id, sess.Status, reconcile.ErrStateConflict)
	}
	sess.Status = to
	return nil
}

func (s *fakeReconStore) ReplaceSuggestedMatches(_ context.Context, tenantID, reconciliationID string, matches []*reconcile.Match) error {
	for id, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID && m.Status == reconcile.MatchSuggested {
			delete(s.matches, id)
		}
	}
	for _, m := range matches {
		s.matches[m.ID] = m
	}
	return nil
}

func (s *fakeReconStore) GetMatch(_ context.Context, tenantID, matchID string) (*reconcile.Match, error) {
	m, ok := s.matches[matchID]
	if !ok || m.TenantID != tenantID {
		return nil, reconcile.ErrMatchNotFound
	}
	return m, nil
}

func (s *fakeReconStore) ListMatches(_ context.Context, tenantID, reconciliationID string) ([]*reconcile.Match, error) {
	var out []*reconcile.Match
	for _, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeReconStore) ConfirmMatch(_ context.Context, tenantID, matchID, confirmedBy string) (*reconcile.Match, error) {
	m, err := s.GetMatch(context.Background(), tenantID, matchID)
	if err != nil {
		return nil, err
	}
	for _, other := range s.matches {
		if other.ID != m.ID && other.TenantID == tenantID &&
			other.LedgerTransactionID == m.LedgerTransactionID && other.Status == reconcile.MatchConfirmed {
			return nil, reconcile.ErrLedgerAlreadyConfirmed
		}
	}
	now := time.Now().UTC()
	m.Status = reconcile.MatchConfirmed
	m.ConfirmedAt = &now
	m.ConfirmedBy = confirmedBy
	return m, nil
}

func (s *fakeReconStore) RejectMatch(_ context.Context, tenantID, matchID string) (*reconcile.Match, error) {
	m, err := s.GetMatch(context.Background(), tenantID, matchID)
	if err != nil {
		return nil, err
	}
	m.Status = reconcile.MatchRejected
	return m, nil
}

func (s *fakeReconStore) ConfirmedLedgerIDs(_ context.Context, tenantID, reconciliationID string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID && m.Status == reconcile.MatchConfirmed {
			out[m.LedgerTransactionID] = true
		}
	}
	return out, nil
}

func (s *fakeReconStore) CreateAdjustment(_ context.Context, a *reconcile.Adjustment) error {
	s.adjustments[a.ID] = a
	return nil
}

func (s *fakeReconStore) GetAdjustment(_ context.Context, tenantID, adjustmentID string) (*reconcile.Adjustment, error) {
	a, ok := s.adjustments[adjustmentID]
	if !ok || a.TenantID != tenantID {
		return nil, reconcile.ErrAdjustmentNotFound
	}
	return a, nil
}

func (s *fakeReconStore) ListAdjustments(_ context.Context, tenantID, reconciliationID string) ([]*reconcile.Adjustment, error) {
	var out []*reconcile.Adjustment
	for _, a := range s.adjustments {
		if a.TenantID == tenantID && a.ReconciliationID == reconciliationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeReconStore) SetAdjustmentReversal(_ context.Context, tenantID, adjustmentID, reversalJournalID, reason string, reversedAt time.Time) error {
	a, ok := s.adjustments[adjustmentID]
	if !ok || a.TenantID != tenantID {
		return reconcile.ErrAdjustmentNotFound
	}
	a.ReversalJournalID = reversalJournalID
	a.ReversalReason = reason
	a.ReversedAt = &reversedAt
	return nil
}

type fakeLedgerReader struct {
	rows []*ledger.LedgerEntry
}

func (f *fakeLedgerReader) ListLedgerEntries(_ context.Context, tenantID, accountID string, from, to time.Time) ([]*ledger.LedgerEntry, error) {
	var out []*ledger.LedgerEntry
	for _, r := range f.rows {
		if r.TenantID == tenantID && r.AccountID == accountID && !r.TransactionDate.Before(from) && !r.TransactionDate.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}
