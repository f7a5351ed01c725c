package memory

import (
	"context"
	"errors"
	"fmt"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

var errNotLocked = errors.New("memory: account not locked in this unit of work")

type tx struct {
	reader

	store    *Store
	locks    map[string]func()
	balances map[string]decimal.Decimal
	appended []ledger.Operation
}

func newTx(s *Store) *tx {
	t := &tx{
		store:    s,
		locks:    make(map[string]func()),
		balances: make(map[string]decimal.Decimal),
	}
	t.reader = reader{with: t.read}
	return t
}

// read runs fn against committed state overlaid with this unit's staged writes.
func (t *tx) read(fn func(*view) error) error {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	v := t.store.view()
	if len(t.balances) > 0 || len(t.appended) > 0 {
		v = v.overlay(t.balances, t.appended)
	}
	return fn(v)
}

func (t *tx) release() {
	for _, release := range t.locks {
		release()
	}
}

// LockAccount takes the account row lock for the rest of the unit of work.
func (t *tx) LockAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	if _, held := t.locks[accountID]; !held {
		release, err := t.store.rows.Acquire(ctx, accountID, t.store.config.LockTimeout)
		if err != nil {
			return nil, err
		}
		t.locks[accountID] = release
	}

	account, err := t.GetAccount(ctx, accountID)
	if err != nil {
		t.locks[accountID]()
		delete(t.locks, accountID)
		return nil, err
	}
	return account, nil
}

// AppendOperation stages an operation. CreatedAt never goes backwards for an
// account, so ordering by (CreatedAt, ID) matches commit order.
func (t *tx) AppendOperation(ctx context.Context, op ledger.NewOperation) (ledger.Operation, error) {
	if _, held := t.locks[op.AccountID]; !held {
		return ledger.Operation{}, fmt.Errorf("append to %s: %w", op.AccountID, errNotLocked)
	}
	if !op.Kind.IsValid() {
		return ledger.Operation{}, fmt.Errorf("append to %s: %w", op.AccountID, ledger.ErrInvalidKind)
	}

	createdAt := t.store.config.Now()
	err := t.read(func(v *view) error {
		ops := v.operations[op.AccountID]
		if n := len(ops); n > 0 && ops[n-1].CreatedAt.After(createdAt) {
			createdAt = ops[n-1].CreatedAt
		}
		return nil
	})
	if err != nil {
		return ledger.Operation{}, err
	}

	recorded := ledger.Operation{
		ID:          t.store.allocateID(),
		AccountID:   op.AccountID,
		Amount:      op.Amount,
		Kind:        op.Kind,
		Description: op.Description,
		CreatedAt:   createdAt,
	}
	t.appended = append(t.appended, recorded)
	return recorded, nil
}

// SetBalance stages a new balance for a locked account.
func (t *tx) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if _, held := t.locks[accountID]; !held {
		return fmt.Errorf("set balance of %s: %w", accountID, errNotLocked)
	}
	t.balances[accountID] = balance
	return nil
}

var _ ledger.Tx = (*tx)(nil)
