package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/example/bank-ledger/internal/ledger"
)

type memStore struct {
	sessions    map[string]*Session
	matches     map[string]*Match
	adjustments map[string]*Adjustment
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    map[string]*Session{},
		matches:     map[string]*Match{},
		adjustments: map[string]*Adjustment{},
	}
}

func (s *memStore) CreateSession(_ context.Context, sess *Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memStore) GetSession(_ context.Context, tenantID, id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return nil, ErrReconciliationNotFound
	}
	return sess, nil
}

func (s *memStore) ListSessions(_ context.Context, tenantID, bankAccountID string) ([]*Session, error) {
	var out []*Session
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.BankAccountID == bankAccountID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *memStore) UpdateSessionStatus(_ context.Context, tenantID, id string, from, to SessionStatus) error {
	sess, ok := s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return ErrReconciliationNotFound
	}
	if sess.Status != from {
		return fmt.Errorf("session %s is %s, expected %s: %w", id, sess.Status, from, ErrStateConflict)
	}
	sess.Status = to
	return nil
}

func (s *memStore) ReplaceSuggestedMatches(_ context.Context, tenantID, reconciliationID string, matches []*Match) error {
	for id, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID && m.Status == MatchSuggested {
			delete(s.matches, id)
		}
	}
	for _, m := range matches {
		s.matches[m.ID] = m
	}
	return nil
}

func (s *memStore) GetMatch(_ context.Context, tenantID, matchID string) (*Match, error) {
	m, ok := s.matches[matchID]
	if !ok || m.TenantID != tenantID {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

func (s *memStore) ListMatches(_ context.Context, tenantID, reconciliationID string) ([]*Match, error) {
	var out []*Match
	for _, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ConfirmMatch(_ context.Context, tenantID, matchID, confirmedBy string) (*Match, error) {
	m, ok := s.matches[matchID]
	if !ok || m.TenantID != tenantID {
		return nil, ErrMatchNotFound
	}
	if m.Status != MatchSuggested {
		return nil, fmt.Errorf("match %s is %s, only suggested matches can be confirmed", matchID, m.Status)
	}
	for _, other := range s.matches {
		if other.ID != m.ID && other.TenantID == tenantID &&
			other.LedgerTransactionID == m.LedgerTransactionID && other.Status == MatchConfirmed {
			return nil, ErrLedgerAlreadyConfirmed
		}
	}
	now := time.Now().UTC()
	m.Status = MatchConfirmed
	m.ConfirmedAt = &now
	m.ConfirmedBy = confirmedBy
	return m, nil
}

func (s *memStore) RejectMatch(_ context.Context, tenantID, matchID string) (*Match, error) {
	m, ok := s.matches[matchID]
	if !ok || m.TenantID != tenantID {
		return nil, ErrMatchNotFound
	}
	m.Status = MatchRejected
	return m, nil
}

func (s *memStore) ConfirmedLedgerIDs(_ context.Context, tenantID, reconciliationID string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, m := range s.matches {
		if m.TenantID == tenantID && m.ReconciliationID == reconciliationID && m.Status == MatchConfirmed {
			out[m.LedgerTransactionID] = true
		}
	}
	return out, nil
}

func (s *memStore) CreateAdjustment(_ context.Context, a *Adjustment) error {
	s.adjustments[a.ID] = a
	return nil
}

func (s *memStore) GetAdjustment(_ context.Context, tenantID, adjustmentID string) (*Adjustment, error) {
	a, ok := s.adjustments[adjustmentID]
	if !ok || a.TenantID != tenantID {
		return nil, ErrAdjustmentNotFound
	}
	return a, nil
}

func (s *memStore) ListAdjustments(_ context.Context, tenantID, reconciliationID string) ([]*Adjustment, error) {
	var out []*Adjustment
	for _, a := range s.adjustments {
		if a.TenantID == tenantID && a.ReconciliationID == reconciliationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) SetAdjustmentReversal(_ context.Context, tenantID, adjustmentID, reversalJournalID, reason string, reversedAt time.Time) error {
	a, ok := s.adjustments[adjustmentID]
	if !ok || a.TenantID != tenantID {
		return ErrAdjustmentNotFound
	}
	if a.ReversalJournalID != "" {
		return fmt.Errorf("adjustment %s already reversed", adjustmentID)
	}
	a.ReversalJournalID = reversalJournalID
	a.ReversalReason = reason
	a.ReversedAt = &reversedAt
	return nil
}

type fakeJournals struct {
	posted map[string]*ledger.JournalEntry
	order  []string
}

func newFakeJournals() *fakeJournals {
	return &fakeJournals{posted: map[string]*ledger.JournalEntry{}}
}

func (f *fakeJournals) PostJournals(_ context.Context, entries []*ledger.JournalEntry) error {
	for _, e := range entries {
		if !e.IsBalanced() {
			return fmt.Errorf("journal %s does not balance", e.ID)
		}
		f.posted[e.ID] = e
		f.order = append(f.order, e.ID)
	}
	return nil
}

func (f *fakeJournals) GetJournal(_ context.Context, tenantID, journalID string) (*ledger.JournalEntry, error) {
	e, ok := f.posted[journalID]
	if !ok || e.TenantID != tenantID {
		return nil, ledger.ErrJournalNotFound
	}
	return e, nil
}

type fakeLedgerReader struct {
	rows []*ledger.LedgerEntry
}

func (f *fakeLedgerReader) ListLedgerEntries(_ context.Context, tenantID, accountID string, from, to time.Time) ([]*ledger.LedgerEntry, error) {
	var out []*ledger.LedgerEntry
	for _, r := range f.rows {
		if r.TenantID != tenantID || r.AccountID != accountID {
			continue
		}
		if r.TransactionDate.Before(from) || r.TransactionDate.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
