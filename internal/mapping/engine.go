package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/session"
)

// RuleStore defines rule persistence for the engine.
type RuleStore interface {
	ListActiveRules(ctx context.Context, tenantID string) ([]*Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]*Rule, error)
	GetRule(ctx context.Context, tenantID, ruleID string) (*Rule, error)
	SaveRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, tenantID, ruleID string) error
	RecordUsage(ctx context.Context, tenantID, ruleID string) error
}

// MappingError is a transaction-scoped validation failure during mapping.
// The transaction stays unmapped; the batch continues.
type MappingError struct {
	TransactionID string `json:"transaction_id"`
	RuleID        string `json:"rule_id,omitempty"`
	Reason        string `json:"reason"`
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("transaction %s: %s", e.TransactionID, e.Reason)
}

// SessionResult summarizes one mapping run over a session.
type SessionResult struct {
	Mapped   int             `json:"mapped"`
	Unmapped int             `json:"unmapped"`
	Errors   []*MappingError `json:"errors,omitempty"`
}

// Engine applies prioritized pattern rules to imported transactions.
type Engine struct {
	rules    RuleStore
	sessions session.Store
	dir      coa.Directory
	logger   *slog.Logger
}

func NewEngine(rules RuleStore, sessions session.Store, dir coa.Directory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, sessions: sessions, dir: dir, logger: logger}
}

// MapTransaction evaluates rules in order against one transaction and
// mutates its mapping state. First match wins. A matched rule whose target
// account is missing from the chart of accounts produces a MappingError and
// leaves the transaction unmapped.
//
// The rule usage counter only moves when the applied rule changes, so
// re-running mapping over the same input never double-counts.
func (e *Engine) MapTransaction(ctx context.Context, txn *session.ImportedTransaction, bankAccountID string, rules []*Rule) (*Rule, *MappingError) {
	prevRule := ""
	if txn.GLMapping != nil {
		prevRule = txn.GLMapping.RuleApplied
	}

	for _, rule := range rules {
		if !rule.Matches(txn) {
			continue
		}

		if _, err := e.dir.GetAccount(ctx, rule.AccountID); err != nil {
			var notFound *coa.ErrAccountNotFound
			if errors.As(err, &notFound) {
				txn.MappingStatus = session.MappingUnmapped
				txn.GLMapping = nil
				return nil, &MappingError{
					TransactionID: txn.ID,
					RuleID:        rule.ID,
					Reason:        fmt.Sprintf("rule %s references account %s which no longer exists", rule.ID, rule.AccountID),
				}
			}
			return nil, &MappingError{TransactionID: txn.ID, RuleID: rule.ID, Reason: err.Error()}
		}

		m := &session.GLMapping{Confidence: 1.0, RuleApplied: rule.ID}
		if txn.IsDebit() {
			// Money in: debit the bank account, credit the rule's account.
			m.DebitAccountID = bankAccountID
			m.CreditAccountID = rule.AccountID
		} else {
			m.DebitAccountID = rule.AccountID
			m.CreditAccountID = bankAccountID
		}
		txn.GLMapping = m
		txn.MappingStatus = session.MappingMapped

		if prevRule != rule.ID {
			if err := e.rules.RecordUsage(ctx, rule.TenantID, rule.ID); err != nil {
				e.logger.Warn("failed to record rule usage", "rule_id", rule.ID, "error", err)
			}
		}
		return rule, nil
	}

	txn.MappingStatus = session.MappingUnmapped
	txn.GLMapping = nil
	return nil, nil
}

// MapSession runs the engine over every transaction in a session. The
// session must be in draft or reviewing; the run holds the mapping status
// as its exclusivity guard and finishes in reviewing. A failed run also
// lands in reviewing so it can be retried. Safe to re-run.
func (e *Engine) MapSession(ctx context.Context, tenantID, sessionID string) (*SessionResult, error) {
	sess, err := e.sessions.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	from := sess.Status
	if from != session.StatusDraft && from != session.StatusReviewing {
		return nil, &session.InvalidStateTransitionError{FromStatus: from, ToStatus: session.StatusMapping, SessionID: sessionID}
	}
	if err := e.sessions.TransitionStatus(ctx, tenantID, sessionID, from, session.StatusMapping); err != nil {
		return nil, err
	}

	result, err := e.runMapping(ctx, tenantID, sessionID, sess)
	if err != nil {
		if rerr := e.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusMapping, session.StatusReviewing); rerr != nil {
			e.logger.Error("failed to release mapping session after error", "session_id", sessionID, "error", rerr)
		}
		return nil, err
	}

	if err := e.sessions.TransitionStatus(ctx, tenantID, sessionID, session.StatusMapping, session.StatusReviewing); err != nil {
		return nil, err
	}

	e.logger.Info("mapping run complete",
		"session_id", sessionID, "mapped", result.Mapped, "unmapped", result.Unmapped, "errors", len(result.Errors))
	return result, nil
}

func (e *Engine) runMapping(ctx context.Context, tenantID, sessionID string, sess *session.BankImportSession) (*SessionResult, error) {
	rules, err := e.rules.ListActiveRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping rules: %w", err)
	}
	SortRules(rules)

	txns, err := e.sessions.ListTransactions(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	result := &SessionResult{}
	for _, txn := range txns {
		if txn.MappingStatus == session.MappingPosted {
			continue
		}
		_, mapErr := e.MapTransaction(ctx, txn, sess.BankAccountID, rules)
		if mapErr != nil {
			result.Errors = append(result.Errors, mapErr)
		}
		if txn.MappingStatus == session.MappingMapped {
			result.Mapped++
		} else {
			result.Unmapped++
		}
		txn.UpdatedAt = time.Now().UTC()
		if err := e.sessions.UpdateTransactionMapping(ctx, txn); err != nil {
			return nil, fmt.Errorf("failed to persist mapping for %s: %w", txn.ID, err)
		}
	}
	return result, nil
}

// BulkMappingRequest applies one explicit account assignment to a set of
// transactions in a session, optionally saving a reusable rule built from
// the request.
type BulkMappingRequest struct {
	TenantID       string   `json:"tenant_id"`
	SessionID      string   `json:"session_id"`
	TransactionIDs []string `json:"transaction_ids"`
	AccountID      string   `json:"account_id"`
	SaveRule       bool     `json:"save_rule"`
	RuleName       string   `json:"rule_name,omitempty"`
	RulePattern    string   `json:"rule_pattern,omitempty"`
}

// ApplyBulk assigns the requested account to each listed transaction with
// confidence 1.0 and no rule. Transactions already posted are skipped.
func (e *Engine) ApplyBulk(ctx context.Context, req BulkMappingRequest) (*SessionResult, error) {
	sess, err := e.sessions.GetSession(ctx, req.TenantID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusReviewing && sess.Status != session.StatusMapping {
		return nil, &session.InvalidOperationError{Status: sess.Status, Operation: "bulk_map", SessionID: req.SessionID}
	}

	if _, err := e.dir.GetAccount(ctx, req.AccountID); err != nil {
		return nil, fmt.Errorf("bulk mapping target account: %w", err)
	}

	txns, err := e.sessions.ListTransactions(ctx, req.TenantID, req.SessionID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(req.TransactionIDs))
	for _, id := range req.TransactionIDs {
		wanted[id] = true
	}

	result := &SessionResult{}
	for _, txn := range txns {
		if !wanted[txn.ID] || txn.MappingStatus == session.MappingPosted {
			continue
		}
		m := &session.GLMapping{Confidence: 1.0}
		if txn.IsDebit() {
			m.DebitAccountID = sess.BankAccountID
			m.CreditAccountID = req.AccountID
		} else {
			m.DebitAccountID = req.AccountID
			m.CreditAccountID = sess.BankAccountID
		}
		txn.GLMapping = m
		txn.MappingStatus = session.MappingMapped
		txn.UpdatedAt = time.Now().UTC()
		if err := e.sessions.UpdateTransactionMapping(ctx, txn); err != nil {
			return nil, fmt.Errorf("failed to persist bulk mapping for %s: %w", txn.ID, err)
		}
		result.Mapped++
	}

	if req.SaveRule && req.RulePattern != "" {
		rule := &Rule{
			ID:              uuid.New().String(),
			TenantID:        req.TenantID,
			Name:            req.RuleName,
			PatternType:     PatternContains,
			Pattern:         req.RulePattern,
			MatchField:      FieldDescription,
			TransactionType: TypeBoth,
			Priority:        50,
			AccountID:       req.AccountID,
			IsActive:        true,
		}
		if err := e.rules.SaveRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to save rule from bulk mapping: %w", err)
		}
	}
	return result, nil
}
