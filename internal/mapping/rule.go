package mapping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/example/bank-ledger/internal/session"
)

// PatternType selects how a rule's pattern is compared to the field value.
type PatternType string

const (
	PatternContains   PatternType = "contains"
	PatternStartsWith PatternType = "starts_with"
	PatternEndsWith   PatternType = "ends_with"
	PatternRegex      PatternType = "regex"
	PatternExact      PatternType = "exact"
)

// MatchField selects which transaction field the pattern is applied to.
type MatchField string

const (
	FieldDescription MatchField = "description"
	FieldReference   MatchField = "reference"
	FieldCategory    MatchField = "category"
	FieldAmount      MatchField = "amount"
)

// TransactionType filters rules by the sign of the transaction.
type TransactionType string

const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
	TypeBoth   TransactionType = "both"
)

// Rule is a tenant-owned GL mapping rule. AccountID is the counter account
// booked against the bank account when the rule matches. Rules are mutable:
// usage counters and last-used timestamps change as they match.
type Rule struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	Name            string          `json:"name"`
	PatternType     PatternType     `json:"pattern_type"`
	Pattern         string          `json:"pattern"`
	MatchField      MatchField      `json:"match_field"`
	TransactionType TransactionType `json:"transaction_type"`
	Priority        int             `json:"priority"`
	AccountID       string          `json:"account_id"`
	IsActive        bool            `json:"is_active"`
	UsageCount      int             `json:"usage_count"`
	LastUsedAt      *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	re *regexp.Regexp
}

// Validate checks the rule's enum fields and compiles regex patterns.
func (r *Rule) Validate() error {
	switch r.PatternType {
	case PatternContains, PatternStartsWith, PatternEndsWith, PatternExact:
	case PatternRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s has invalid regex pattern: %w", r.ID, err)
		}
		r.re = re
	default:
		return fmt.Errorf("rule %s has unknown pattern type %q", r.ID, r.PatternType)
	}
	switch r.MatchField {
	case FieldDescription, FieldReference, FieldCategory, FieldAmount:
	default:
		return fmt.Errorf("rule %s has unknown match field %q", r.ID, r.MatchField)
	}
	switch r.TransactionType {
	case TypeDebit, TypeCredit, TypeBoth:
	default:
		return fmt.Errorf("rule %s has unknown transaction type %q", r.ID, r.TransactionType)
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %s has empty pattern", r.ID)
	}
	if r.AccountID == "" {
		return fmt.Errorf("rule %s has no target account", r.ID)
	}
	return nil
}

// fieldValue extracts the compared value from the transaction. Amount rules
// match against the unsigned presentation form, e.g. "75.00".
func (r *Rule) fieldValue(t *session.ImportedTransaction) string {
	switch r.MatchField {
	case FieldReference:
		return t.Reference
	case FieldCategory:
		return t.Category
	case FieldAmount:
		return t.Amount.Abs().String()
	default:
		return t.Description
	}
}

// Matches reports whether the rule applies to the transaction. Text matching
// is case-insensitive. A rule with an invalid regex never matches; Validate
// catches those before they are saved.
func (r *Rule) Matches(t *session.ImportedTransaction) bool {
	switch r.TransactionType {
	case TypeDebit:
		if !t.IsDebit() {
			return false
		}
	case TypeCredit:
		if t.IsDebit() {
			return false
		}
	}

	value := r.fieldValue(t)
	switch r.PatternType {
	case PatternContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(r.Pattern))
	case PatternStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(r.Pattern))
	case PatternEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(r.Pattern))
	case PatternExact:
		return strings.EqualFold(value, r.Pattern)
	case PatternRegex:
		if r.re == nil {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return false
			}
			r.re = re
		}
		return r.re.MatchString(value)
	}
	return false
}

// SortRules orders rules for evaluation: priority descending, then most
// recently used, then id for a stable total order.
func SortRules(rules []*Rule) {
	sort.Slice(rules, func(i, j int) bool { return ruleLess(rules[i], rules[j]) })
}

func ruleLess(a, b *Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	au, bu := int64(0), int64(0)
	if a.LastUsedAt != nil {
		au = a.LastUsedAt.UnixNano()
	}
	if b.LastUsedAt != nil {
		bu = b.LastUsedAt.UnixNano()
	}
	if au != bu {
		return au > bu
	}
	return a.ID < b.ID
}
