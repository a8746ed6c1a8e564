package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/money"
)

// LedgerReader supplies the ledger side of a reconciliation: posted rows
// for the reconciled bank account over the session period.
type LedgerReader interface {
	ListLedgerEntries(ctx context.Context, tenantID, accountID string, from, to time.Time) ([]*ledger.LedgerEntry, error)
}

// Service runs the matcher against persisted state for one reconciliation
// session. For a given account and period it must not run concurrently with
// itself: greedy claiming is not commutative across runs.
type Service struct {
	store   Store
	ledgers LedgerReader
	matcher *Matcher
	logger  *slog.Logger
}

func NewService(store Store, ledgers LedgerReader, matcher *Matcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = NewMatcher(MatchingConfig{})
	}
	return &Service{store: store, ledgers: ledgers, matcher: matcher, logger: logger}
}

// RunAutoMatch scores the bank feed against ledger activity for the
// session's account and period, replaces the suggested match set, and
// returns the candidates for review. Nothing is ever confirmed here.
func (s *Service) RunAutoMatch(ctx context.Context, tenantID, reconciliationID string, bank []*BankTransaction) ([]*AutoMatchCandidate, error) {
	recon, err := s.store.GetSession(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}
	if recon.Status == SessionCompleted || recon.Status == SessionArchived {
		return nil, fmt.Errorf("reconciliation %s is %s; matching is closed", recon.ID, recon.Status)
	}
	if recon.Status == SessionDraft {
		if err := s.store.UpdateSessionStatus(ctx, tenantID, reconciliationID, SessionDraft, SessionInProgress); err != nil {
			return nil, err
		}
	}

	ledgerTxns, err := s.loadLedgerSide(ctx, recon)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.store.ConfirmedLedgerIDs(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}

	// Bank transactions already in a confirmed match stay matched.
	existing, err := s.store.ListMatches(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}
	confirmedBank := map[string]bool{}
	for _, m := range existing {
		if m.Status == MatchConfirmed {
			confirmedBank[m.BankTransactionID] = true
		}
	}
	var openBank []*BankTransaction
	for _, bt := range bank {
		if !confirmedBank[bt.ID] {
			openBank = append(openBank, bt)
		}
	}

	candidates := s.matcher.AutoMatch(openBank, ledgerTxns, confirmed)

	now := time.Now().UTC()
	matches := make([]*Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, &Match{
			ID:                  "match_" + uuid.New().String(),
			TenantID:            tenantID,
			ReconciliationID:    reconciliationID,
			BankTransactionID:   c.BankTransactionID,
			LedgerTransactionID: c.LedgerTransactionID,
			Amount:              c.Amount,
			Confidence:          c.Confidence,
			MatchRule:           c.MatchRule,
			Status:              MatchSuggested,
			CreatedAt:           now,
		})
	}
	if err := s.store.ReplaceSuggestedMatches(ctx, tenantID, reconciliationID, matches); err != nil {
		return nil, err
	}

	s.logger.Info("auto-match run complete",
		"reconciliation_id", reconciliationID, "bank_txns", len(bank), "candidates", len(candidates))
	return candidates, nil
}

// ConfirmMatch is the explicit operator action that makes a suggestion
// final. Confidence never confirms anything on its own.
func (s *Service) ConfirmMatch(ctx context.Context, tenantID, matchID, confirmedBy string) (*Match, error) {
	if confirmedBy == "" {
		return nil, fmt.Errorf("confirmed_by is required")
	}
	return s.store.ConfirmMatch(ctx, tenantID, matchID, confirmedBy)
}

func (s *Service) RejectMatch(ctx context.Context, tenantID, matchID string) (*Match, error) {
	return s.store.RejectMatch(ctx, tenantID, matchID)
}

// Summarize aggregates the state of a reconciliation against the supplied
// bank feed. The balance difference is the closing balance implied by
// matched and adjusted activity versus the statement's stated closing
// balance.
func (s *Service) Summarize(ctx context.Context, tenantID, reconciliationID string, bank []*BankTransaction) (*Summary, error) {
	recon, err := s.store.GetSession(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.ListMatches(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.store.ListAdjustments(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}
	ledgerTxns, err := s.loadLedgerSide(ctx, recon)
	if err != nil {
		return nil, err
	}

	sum := &Summary{ReconciliationID: reconciliationID}
	matchedBank := map[string]bool{}
	matchedLedger := map[string]bool{}
	var matchedTotal money.Cents
	for _, m := range matches {
		switch m.Status {
		case MatchConfirmed:
			sum.Matched++
		case MatchSuggested:
			sum.Matched++
			sum.Suggested++
		default:
			continue
		}
		matchedBank[m.BankTransactionID] = true
		matchedLedger[m.LedgerTransactionID] = true
		matchedTotal += m.Amount
	}

	for _, bt := range bank {
		if !matchedBank[bt.ID] {
			sum.UnmatchedBank++
		}
	}
	for _, lt := range ledgerTxns {
		if !matchedLedger[lt.ID] {
			sum.UnmatchedLedger++
		}
	}

	sum.AdjustmentCount = len(adjustments)
	sum.AdjustmentTotal = NetAdjustmentEffect(adjustments)

	implied := recon.OpeningBalance + matchedTotal + sum.AdjustmentTotal
	sum.BalanceDifference = recon.ClosingBalance - implied
	return sum, nil
}

// ValidateStatementBalance checks the bank feed's own arithmetic: opening
// balance plus all statement amounts must equal the stated closing balance.
func ValidateStatementBalance(recon *Session, bank []*BankTransaction) error {
	var total money.Cents
	for _, bt := range bank {
		total += bt.Amount
	}
	implied := recon.OpeningBalance + total
	if !money.WithinEpsilon(implied, recon.ClosingBalance) {
		return fmt.Errorf("statement does not balance: opening %s plus activity %s implies %s, statement says %s",
			recon.OpeningBalance.String(), total.String(), implied.String(), recon.ClosingBalance.String())
	}
	return nil
}

func (s *Service) loadLedgerSide(ctx context.Context, recon *Session) ([]*LedgerTransaction, error) {
	rows, err := s.ledgers.ListLedgerEntries(ctx, recon.TenantID, recon.BankAccountID, recon.PeriodStart, recon.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger side: %w", err)
	}
	out := make([]*LedgerTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, &LedgerTransaction{
			ID:          r.ID,
			Date:        r.TransactionDate,
			Description: r.Description,
			Amount:      r.Amount(),
		})
	}
	return out, nil
}
