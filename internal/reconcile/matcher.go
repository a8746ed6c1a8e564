package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/example/bank-ledger/internal/money"
)

// MatchingConfig tunes the auto matcher. Zero values fall back to defaults.
type MatchingConfig struct {
	// MaxDateDiffDays is the candidacy window around the bank date.
	MaxDateDiffDays int
	// AmountTolerancePct allows candidates within this fraction of the
	// bank amount.
	AmountTolerancePct float64
	// AmountToleranceAbs allows candidates within this many cents
	// regardless of the percentage.
	AmountToleranceAbs money.Cents
	// MinConfidence is the floor below which candidates are discarded.
	MinConfidence float64

	WeightAmount      float64
	WeightDate        float64
	WeightReference   float64
	WeightDescription float64
}

// DefaultMatchingConfig returns the tuning used in production.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		MaxDateDiffDays:    14,
		AmountTolerancePct: 0.05,
		AmountToleranceAbs: 500,
		MinConfidence:      0.4,
		WeightAmount:       0.4,
		WeightDate:         0.3,
		WeightReference:    0.2,
		WeightDescription:  0.1,
	}
}

func (c MatchingConfig) withDefaults() MatchingConfig {
	d := DefaultMatchingConfig()
	if c.MaxDateDiffDays == 0 {
		c.MaxDateDiffDays = d.MaxDateDiffDays
	}
	if c.AmountTolerancePct == 0 {
		c.AmountTolerancePct = d.AmountTolerancePct
	}
	if c.AmountToleranceAbs == 0 {
		c.AmountToleranceAbs = d.AmountToleranceAbs
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.WeightAmount == 0 && c.WeightDate == 0 && c.WeightReference == 0 && c.WeightDescription == 0 {
		c.WeightAmount = d.WeightAmount
		c.WeightDate = d.WeightDate
		c.WeightReference = d.WeightReference
		c.WeightDescription = d.WeightDescription
	}
	return c
}

// Matcher scores and greedily assigns bank transactions to ledger
// transactions. Assignment is deterministic but not globally optimal: bank
// transactions are processed by date then id, and each claims its best
// still-unclaimed ledger transaction.
type Matcher struct {
	cfg MatchingConfig
}

func NewMatcher(cfg MatchingConfig) *Matcher {
	return &Matcher{cfg: cfg.withDefaults()}
}

// AutoMatch produces one candidate per matchable bank transaction.
// confirmedLedgerIDs are ledger transactions already claimed by confirmed
// matches; they are excluded from candidacy entirely.
func (m *Matcher) AutoMatch(bank []*BankTransaction, ledgerTxns []*LedgerTransaction, confirmedLedgerIDs map[string]bool) []*AutoMatchCandidate {
	ordered := make([]*BankTransaction, len(bank))
	copy(ordered, bank)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	claimed := make(map[string]bool, len(confirmedLedgerIDs))
	for id := range confirmedLedgerIDs {
		claimed[id] = true
	}

	var out []*AutoMatchCandidate
	for _, bt := range ordered {
		best := m.bestCandidate(bt, ledgerTxns, claimed)
		if best == nil {
			continue
		}
		claimed[best.LedgerTransactionID] = true
		out = append(out, best)
	}
	return out
}

func (m *Matcher) bestCandidate(bt *BankTransaction, ledgerTxns []*LedgerTransaction, claimed map[string]bool) *AutoMatchCandidate {
	var best *AutoMatchCandidate
	for _, lt := range ledgerTxns {
		if claimed[lt.ID] {
			continue
		}
		c := m.Score(bt, lt)
		if c == nil || c.Confidence < m.cfg.MinConfidence {
			continue
		}
		if best == nil || c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence && c.LedgerTransactionID < best.LedgerTransactionID) {
			best = c
		}
	}
	return best
}

// Score evaluates one bank/ledger pair. Returns nil when the pair is not a
// legal candidate (sign mismatch, amount outside tolerance, date outside
// the window).
func (m *Matcher) Score(bt *BankTransaction, lt *LedgerTransaction) *AutoMatchCandidate {
	if (bt.Amount >= 0) != (lt.Amount >= 0) {
		return nil
	}

	diff := (bt.Amount - lt.Amount).Abs()
	tolerance := m.cfg.AmountToleranceAbs
	if pct := money.Cents(float64(bt.Amount.Abs()) * m.cfg.AmountTolerancePct); pct > tolerance {
		tolerance = pct
	}
	if diff > tolerance {
		return nil
	}

	dateDiff := daysBetween(bt.Date, lt.Date)
	if dateDiff > m.cfg.MaxDateDiffDays {
		return nil
	}

	amountScore := 1.0
	if diff > 0 {
		amountScore = 1.0 - float64(diff)/float64(tolerance)
	}
	dateScore := 1.0 - float64(dateDiff)/float64(m.cfg.MaxDateDiffDays)
	refScore := referenceScore(bt.Reference, lt.Reference)
	descScore := Similarity(bt.Description, lt.Description)

	confidence := m.cfg.WeightAmount*amountScore +
		m.cfg.WeightDate*dateScore +
		m.cfg.WeightReference*refScore +
		m.cfg.WeightDescription*descScore

	return &AutoMatchCandidate{
		BankTransactionID:   bt.ID,
		LedgerTransactionID: lt.ID,
		Amount:              bt.Amount,
		AmountDiff:          diff,
		DateDiffDays:        dateDiff,
		Confidence:          confidence,
		MatchRule:           ruleLabel(diff, dateDiff, refScore),
	}
}

func ruleLabel(amountDiff money.Cents, dateDiff int, refScore float64) string {
	switch {
	case amountDiff == 0 && dateDiff == 0:
		return RuleExactMatch
	case amountDiff == 0:
		return RuleAmountDateMatch
	case refScore >= 0.8:
		return RuleReferenceMatch
	default:
		return RuleFuzzyMatch
	}
}

func referenceScore(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	// Partial credit when any whitespace-separated token is shared.
	for _, tok := range strings.Fields(a) {
		for _, other := range strings.Fields(b) {
			if tok == other {
				return 0.5
			}
		}
	}
	return 0
}

func daysBetween(a, b time.Time) int {
	d := a.Truncate(24 * time.Hour).Sub(b.Truncate(24 * time.Hour))
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
