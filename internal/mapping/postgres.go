package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRuleNotFound is returned when a rule does not exist for the tenant.
var ErrRuleNotFound = errors.New("mapping rule not found")

// Schema holds the DDL for GL mapping rules.
const Schema = `
CREATE TABLE IF NOT EXISTS mapping_rules (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    pattern_type     TEXT NOT NULL,
    pattern          TEXT NOT NULL,
    match_field      TEXT NOT NULL,
    transaction_type TEXT NOT NULL DEFAULT 'both',
    priority         INTEGER NOT NULL DEFAULT 0,
    account_id       TEXT NOT NULL,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    usage_count      INTEGER NOT NULL DEFAULT 0,
    last_used_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_mapping_rules_tenant
    ON mapping_rules (tenant_id, is_active, priority DESC);
`

// EnsureSchema creates the rule table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create mapping schema: %w", err)
	}
	return nil
}

// PostgresRuleStore persists mapping rules in postgres.
type PostgresRuleStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresRuleStore(pool *pgxpool.Pool) *PostgresRuleStore {
	return &PostgresRuleStore{Pool: pool}
}

const ruleColumns = `id, tenant_id, name, pattern_type, pattern, match_field, transaction_type,
	priority, account_id, is_active, usage_count, last_used_at, created_at, updated_at`

func (s *PostgresRuleStore) ListActiveRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+` FROM mapping_rules
		WHERE tenant_id = $1 AND is_active
		ORDER BY priority DESC, last_used_at DESC NULLS LAST, id`, tenantID)
}

func (s *PostgresRuleStore) ListRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+` FROM mapping_rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, id`, tenantID)
}

func (s *PostgresRuleStore) list(ctx context.Context, query string, args ...any) ([]*Rule, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PostgresRuleStore) GetRule(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM mapping_rules
		WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID)
	r, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping rule: %w", err)
	}
	return r, nil
}

// SaveRule validates then upserts the rule. Usage counters are preserved on
// update; RecordUsage is the only writer of those columns.
func (s *PostgresRuleStore) SaveRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO mapping_rules (id, tenant_id, name, pattern_type, pattern, match_field, transaction_type, priority, account_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    pattern_type = EXCLUDED.pattern_type,
		    pattern = EXCLUDED.pattern,
		    match_field = EXCLUDED.match_field,
		    transaction_type = EXCLUDED.transaction_type,
		    priority = EXCLUDED.priority,
		    account_id = EXCLUDED.account_id,
		    is_active = EXCLUDED.is_active,
		    updated_at = now()
		WHERE mapping_rules.tenant_id = EXCLUDED.tenant_id`,
		rule.ID, rule.TenantID, rule.Name, string(rule.PatternType), rule.Pattern,
		string(rule.MatchField), string(rule.TransactionType), rule.Priority, rule.AccountID, rule.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save mapping rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *PostgresRuleStore) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	tag, err := s.Pool.Exec(ctx, `
		DELETE FROM mapping_rules WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete mapping rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *PostgresRuleStore) RecordUsage(ctx context.Context, tenantID, ruleID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE mapping_rules
		SET usage_count = usage_count + 1, last_used_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to record usage for rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var patternType, matchField, txnType string
	var lastUsed *time.Time

	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &patternType, &r.Pattern, &matchField, &txnType,
		&r.Priority, &r.AccountID, &r.IsActive, &r.UsageCount, &lastUsed, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.PatternType = PatternType(patternType)
	r.MatchField = MatchField(matchField)
	r.TransactionType = TransactionType(txnType)
	r.LastUsedAt = lastUsed
	return &r, nil
}
