package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// view is a read-only picture of the store. Maps may be shared with the
// store and must not be modified.
type view struct {
	accounts   map[string]ledger.Account
	principals map[string]string
	operations map[string][]ledger.Operation
}

// overlay returns a copy of v with staged balances and operations applied.
func (v *view) overlay(balances map[string]decimal.Decimal, appended []ledger.Operation) *view {
	out := &view{
		accounts:   make(map[string]ledger.Account, len(v.accounts)),
		principals: v.principals,
		operations: make(map[string][]ledger.Operation, len(v.operations)),
	}
	for id, account := range v.accounts {
		out.accounts[id] = account
	}
	for id, ops := range v.operations {
		out.operations[id] = ops
	}
	for id, balance := range balances {
		if account, ok := out.accounts[id]; ok {
			account.Balance = balance
			out.accounts[id] = account
		}
	}
	for _, op := range appended {
		ops := out.operations[op.AccountID]
		out.operations[op.AccountID] = append(ops[:len(ops):len(ops)], op)
	}
	return out
}

func (v *view) account(accountID string) (ledger.Account, error) {
	account, ok := v.accounts[accountID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", accountID, ledger.ErrAccountNotFound)
	}
	return account, nil
}

// ops returns the account's operations oldest first, or ErrAccountNotFound.
func (v *view) ops(accountID string) ([]ledger.Operation, error) {
	if _, err := v.account(accountID); err != nil {
		return nil, err
	}
	return v.operations[accountID], nil
}

func sortOps(ops []ledger.Operation, desc bool) {
	slices.SortStableFunc(ops, func(a, b ledger.Operation) int {
		switch {
		case a.Before(b):
			if desc {
				return 1
			}
			return -1
		case b.Before(a):
			if desc {
				return -1
			}
			return 1
		default:
			return 0
		}
	})
}

// reader implements ledger.Reader over whatever view with yields.
type reader struct {
	with func(func(*view) error) error
}

func (r reader) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	var account ledger.Account
	err := r.with(func(v *view) error {
		var err error
		account, err = v.account(accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r reader) FindAccountByPrincipal(ctx context.Context, principal string) (*ledger.Account, error) {
	var account ledger.Account
	err := r.with(func(v *view) error {
		id, ok := v.principals[principalKey(principal)]
		if !ok || principalKey(principal) == "" {
			return fmt.Errorf("principal %s: %w", principal, ledger.ErrAccountNotFound)
		}
		var err error
		account, err = v.account(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r reader) TopAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	var accounts []ledger.Account
	err := r.with(func(v *view) error {
		accounts = make([]ledger.Account, 0, len(v.accounts))
		for _, account := range v.accounts {
			accounts = append(accounts, account)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(accounts, func(a, b ledger.Account) int {
		if c := b.Balance.Cmp(a.Balance); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (r reader) QueryOperations(ctx context.Context, accountID string, filter ledger.Filter) (ledger.Page, error) {
	filter = filter.Normalize()
	search := strings.ToLower(filter.Search)

	var matched []ledger.Operation
	err := r.with(func(v *view) error {
		ops, err := v.ops(accountID)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if search == "" || strings.Contains(strings.ToLower(op.Description), search) {
				matched = append(matched, op)
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Page{}, err
	}

	sortOps(matched, filter.Sort == ledger.SortDesc)

	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.PerPage, total)
	return ledger.NewPage(matched[start:end], total, filter), nil
}

func (r reader) RangeOperations(ctx context.Context, accountID string, start, end time.Time) ([]ledger.Operation, error) {
	return r.collect(accountID, false, func(op ledger.Operation) bool {
		return !op.CreatedAt.Before(start) && !op.CreatedAt.After(end)
	})
}

func (r reader) RecentOperations(ctx context.Context, accountID string, limit int) ([]ledger.Operation, error) {
	ops, err := r.collect(accountID, true, nil)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}

func (r reader) OperationsSince(ctx context.Context, accountID string, since time.Time) ([]ledger.Operation, error) {
	return r.collect(accountID, false, func(op ledger.Operation) bool {
		return !op.CreatedAt.Before(since)
	})
}

func (r reader) Totals(ctx context.Context, accountID string) (ledger.Totals, error) {
	var totals ledger.Totals
	ops, err := r.collect(accountID, false, nil)
	if err != nil {
		return totals, err
	}
	for _, op := range ops {
		totals.Add(op)
	}
	return totals, nil
}

func (r reader) MonthlyTotals(ctx context.Context, accountID string, year int) ([]ledger.MonthTotal, error) {
	ops, err := r.collect(accountID, false, func(op ledger.Operation) bool {
		return op.CreatedAt.UTC().Year() == year
	})
	if err != nil {
		return nil, err
	}

	type key struct {
		month time.Month
		kind  ledger.Kind
	}
	sums := make(map[key]decimal.Decimal)
	var order []key
	for _, op := range ops {
		k := key{op.CreatedAt.UTC().Month(), op.Kind}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(op.Amount)
	}

	totals := make([]ledger.MonthTotal, 0, len(order))
	for _, k := range order {
		totals = append(totals, ledger.MonthTotal{Month: k.month, Kind: k.kind, Sum: sums[k]})
	}
	return totals, nil
}

// collect copies the account's operations that match keep, sorted by
// (CreatedAt, ID).
func (r reader) collect(accountID string, desc bool, keep func(ledger.Operation) bool) ([]ledger.Operation, error) {
	var out []ledger.Operation
	err := r.with(func(v *view) error {
		ops, err := v.ops(accountID)
		if err != nil {
			return err
		}
		out = make([]ledger.Operation, 0, len(ops))
		for _, op := range ops {
			if keep == nil || keep(op) {
				out = append(out, op)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortOps(out, desc)
	return out, nil
}

var _ ledger.Reader = reader{}
