package coa

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

// NormalBalance is the side an account naturally carries its balance on.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// AccountRecord is the shape supplied by the chart-of-accounts service. The
// pipeline references accounts by ID and never creates or mutates them.
type AccountRecord struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          AccountType   `json:"type"`
	NormalBalance NormalBalance `json:"normal_balance"`
	IsActive      bool          `json:"is_active"`
}

// ErrAccountNotFound is returned when a referenced account does not exist in
// the chart of accounts.
type ErrAccountNotFound struct {
	AccountID string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account %s not found in chart of accounts", e.AccountID)
}

// Directory is the read-only boundary to the chart-of-accounts service.
type Directory interface {
	GetAccount(ctx context.Context, accountID string) (*AccountRecord, error)
	GetAccountByCode(ctx context.Context, code string) (*AccountRecord, error)
	ListAccounts(ctx context.Context) ([]*AccountRecord, error)
}

// StaticDirectory is an in-memory Directory, used in tests and wherever the
// chart of accounts has already been loaded for the tenant.
type StaticDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*AccountRecord
	byCode map[string]*AccountRecord
}

// NewStaticDirectory builds a directory from a fixed account set.
func NewStaticDirectory(accounts []*AccountRecord) *StaticDirectory {
	d := &StaticDirectory{
		byID:   make(map[string]*AccountRecord, len(accounts)),
		byCode: make(map[string]*AccountRecord, len(accounts)),
	}
	for _, a := range accounts {
		d.byID[a.ID] = a
		d.byCode[a.Code] = a
	}
	return d
}

func (d *StaticDirectory) GetAccount(_ context.Context, accountID string) (*AccountRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[accountID]
	if !ok {
		return nil, &ErrAccountNotFound{AccountID: accountID}
	}
	return a, nil
}

func (d *StaticDirectory) GetAccountByCode(_ context.Context, code string) (*AccountRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byCode[code]
	if !ok {
		return nil, &ErrAccountNotFound{AccountID: code}
	}
	return a, nil
}

func (d *StaticDirectory) ListAccounts(_ context.Context) ([]*AccountRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*AccountRecord, 0, len(d.byID))
	for _, a := range d.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
