package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/money"
)

// JournalStore is the ledger write path adjustments post through. It is the
// same balance-checked path every other journal takes.
type JournalStore interface {
	PostJournals(ctx context.Context, entries []*ledger.JournalEntry) error
	GetJournal(ctx context.Context, tenantID, journalID string) (*ledger.JournalEntry, error)
}

// CreateAdjustmentRequest describes one correcting entry. Amount is signed
// against the bank account: negative for money out (a fee), positive for
// money in (interest earned).
type CreateAdjustmentRequest struct {
	TenantID         string         `json:"tenant_id"`
	ReconciliationID string         `json:"reconciliation_id"`
	Type             AdjustmentType `json:"type"`
	Description      string         `json:"description"`
	Amount           money.Cents    `json:"amount"`
	AccountID        string         `json:"account_id"`
	FiscalPeriodID   string         `json:"fiscal_period_id"`
	CreatedBy        string         `json:"created_by,omitempty"`
}

// AdjustmentBuilder creates and reverses reconciliation adjustments.
type AdjustmentBuilder struct {
	store    Store
	journals JournalStore
	dir      coa.Directory
	logger   *slog.Logger
	currency string
}

func NewAdjustmentBuilder(store Store, journals JournalStore, dir coa.Directory, currency string, logger *slog.Logger) *AdjustmentBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = "USD"
	}
	return &AdjustmentBuilder{store: store, journals: journals, dir: dir, logger: logger, currency: currency}
}

// Create posts a balanced two-line adjustment journal and records the
// Adjustment entity linking to it.
func (b *AdjustmentBuilder) Create(ctx context.Context, req CreateAdjustmentRequest) (*Adjustment, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("adjustment amount must be non-zero")
	}
	switch req.Type {
	case AdjustmentFee, AdjustmentInterest, AdjustmentTiming, AdjustmentOther:
	default:
		return nil, fmt.Errorf("unknown adjustment type %q", req.Type)
	}

	recon, err := b.store.GetSession(ctx, req.TenantID, req.ReconciliationID)
	if err != nil {
		return nil, err
	}
	if recon.Status == SessionCompleted || recon.Status == SessionArchived {
		return nil, fmt.Errorf("reconciliation %s is %s; adjustments are closed", recon.ID, recon.Status)
	}

	bankAcct, err := b.dir.GetAccount(ctx, recon.BankAccountID)
	if err != nil {
		return nil, fmt.Errorf("bank account: %w", err)
	}
	targetAcct, err := b.dir.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("adjustment account: %w", err)
	}

	entry := b.buildEntry(req, bankAcct, targetAcct)
	if err := b.journals.PostJournals(ctx, []*ledger.JournalEntry{entry}); err != nil {
		return nil, fmt.Errorf("failed to post adjustment journal: %w", err)
	}

	adj := &Adjustment{
		ID:               "adj_" + uuid.New().String(),
		TenantID:         req.TenantID,
		ReconciliationID: req.ReconciliationID,
		Type:             req.Type,
		Description:      req.Description,
		Amount:           req.Amount,
		AccountID:        req.AccountID,
		PostedJournalID:  entry.ID,
		CreatedAt:        time.Now().UTC(),
		CreatedBy:        req.CreatedBy,
	}
	if err := b.store.CreateAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("failed to record adjustment: %w", err)
	}

	b.logger.Info("adjustment posted",
		"adjustment_id", adj.ID, "journal_id", entry.ID, "type", string(req.Type), "amount", req.Amount.String())
	return adj, nil
}

// CreateBulk posts a batch of adjustments, continuing past individual
// failures. Errors are indexed by request position.
func (b *AdjustmentBuilder) CreateBulk(ctx context.Context, reqs []CreateAdjustmentRequest) ([]*Adjustment, map[int]error) {
	var out []*Adjustment
	errs := make(map[int]error)
	for i, req := range reqs {
		adj, err := b.Create(ctx, req)
		if err != nil {
			errs[i] = err
			continue
		}
		out = append(out, adj)
	}
	return out, errs
}

// Reverse posts a new journal with the original's legs swapped and stamps
// the adjustment's reversal fields. The original adjustment and its journal
// are never mutated.
func (b *AdjustmentBuilder) Reverse(ctx context.Context, tenantID, adjustmentID, reason, reversedBy string) (*Adjustment, error) {
	adj, err := b.store.GetAdjustment(ctx, tenantID, adjustmentID)
	if err != nil {
		return nil, err
	}
	if adj.IsReversed() {
		return nil, fmt.Errorf("adjustment %s is already reversed by journal %s", adj.ID, adj.ReversalJournalID)
	}

	original, err := b.journals.GetJournal(ctx, tenantID, adj.PostedJournalID)
	if err != nil {
		return nil, fmt.Errorf("original adjustment journal: %w", err)
	}

	now := time.Now().UTC()
	reversal := &ledger.JournalEntry{
		ID:              "je_" + uuid.New().String(),
		TenantID:        tenantID,
		FiscalPeriodID:  original.FiscalPeriodID,
		JournalCode:     original.JournalCode,
		Description:     "Reversal: " + original.Description,
		Status:          ledger.StatusPosted,
		Source:          ledger.SourceAdjustment,
		TransactionDate: now,
		PostingDate:     now,
		CreatedBy:       reversedBy,
		ReversalOf:      original.ID,
		Notes:           reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	reversal.Lines = make([]ledger.JournalLine, len(original.Lines))
	for i, l := range original.Lines {
		swapped := l
		swapped.ID = fmt.Sprintf("%s_%d", reversal.ID, i)
		swapped.Debit, swapped.Credit = l.Credit, l.Debit
		reversal.Lines[i] = swapped
	}

	if err := b.journals.PostJournals(ctx, []*ledger.JournalEntry{reversal}); err != nil {
		return nil, fmt.Errorf("failed to post reversal journal: %w", err)
	}
	if err := b.store.SetAdjustmentReversal(ctx, tenantID, adj.ID, reversal.ID, reason, now); err != nil {
		return nil, fmt.Errorf("failed to stamp reversal on adjustment: %w", err)
	}

	adj.ReversalJournalID = reversal.ID
	adj.ReversalReason = reason
	adj.ReversedAt = &now

	b.logger.Info("adjustment reversed",
		"adjustment_id", adj.ID, "reversal_journal_id", reversal.ID, "reason", reason)
	return adj, nil
}

func (b *AdjustmentBuilder) buildEntry(req CreateAdjustmentRequest, bankAcct, targetAcct *coa.AccountRecord) *ledger.JournalEntry {
	now := time.Now().UTC()
	amount := req.Amount.Abs()

	bankLine := ledger.JournalLine{
		AccountID:   bankAcct.ID,
		AccountCode: bankAcct.Code,
		AccountName: bankAcct.Name,
		Description: req.Description,
		Currency:    b.currency,
	}
	targetLine := ledger.JournalLine{
		AccountID:   targetAcct.ID,
		AccountCode: targetAcct.Code,
		AccountName: targetAcct.Name,
		Description: req.Description,
		Currency:    b.currency,
	}
	if req.Amount > 0 {
		bankLine.Debit = amount
		targetLine.Credit = amount
	} else {
		bankLine.Credit = amount
		targetLine.Debit = amount
	}

	entry := &ledger.JournalEntry{
		ID:              "je_" + uuid.New().String(),
		TenantID:        req.TenantID,
		FiscalPeriodID:  req.FiscalPeriodID,
		JournalCode:     "RECON_ADJ",
		Description:     req.Description,
		Status:          ledger.StatusPosted,
		Source:          ledger.SourceAdjustment,
		TransactionDate: now,
		PostingDate:     now,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		Lines:           []ledger.JournalLine{bankLine, targetLine},
	}
	for i := range entry.Lines {
		entry.Lines[i].ID = fmt.Sprintf("%s_%d", entry.ID, i)
	}
	return entry
}

// NetAdjustmentEffect projects the remaining balance effect of a set of
// adjustments. An adjustment with a posted reversal nets to zero.
func NetAdjustmentEffect(adjustments []*Adjustment) money.Cents {
	var net money.Cents
	for _, a := range adjustments {
		if a.IsReversed() {
			continue
		}
		net += a.Amount
	}
	return net
}
