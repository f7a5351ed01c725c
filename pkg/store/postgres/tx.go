package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

var errNotLocked = errors.New("postgres: account not locked in this transaction")

// tx implements ledger.Tx on one database transaction.
type tx struct {
	reader
	sqlTx  *sql.Tx
	locked map[string]bool
}

// LockAccount takes the row lock with SELECT ... FOR UPDATE. A wait longer
// than the store's lock_timeout fails with ledger.ErrContention.
func (t *tx) LockAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(t.sqlTx.QueryRowContext(ctx, query, accountID))
	if err != nil {
		return nil, mapError(err, "account "+accountID)
	}
	t.locked[accountID] = true
	return account, nil
}

// AppendOperation inserts op. CreatedAt is the wall clock after the row lock,
// clamped so that it never precedes the account's latest operation.
func (t *tx) AppendOperation(ctx context.Context, op ledger.NewOperation) (ledger.Operation, error) {
	if !t.locked[op.AccountID] {
		return ledger.Operation{}, errNotLocked
	}

	query := `
		INSERT INTO operations (account_id, amount, kind, description, created_at)
		VALUES ($1, $2, $3, $4, GREATEST(
			clock_timestamp(),
			(SELECT max(created_at) FROM operations WHERE account_id = $1)
		))
		RETURNING id, created_at
	`

	out := ledger.Operation{
		AccountID:   op.AccountID,
		Amount:      op.Amount,
		Kind:        op.Kind,
		Description: op.Description,
	}
	err := t.sqlTx.QueryRowContext(ctx, query, op.AccountID, op.Amount, op.Kind, op.Description).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return ledger.Operation{}, mapError(err, "account "+op.AccountID)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

func (t *tx) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if !t.locked[accountID] {
		return errNotLocked
	}

	res, err := t.sqlTx.ExecContext(ctx,
		`UPDATE accounts SET balance = $2, updated_at = clock_timestamp() WHERE id = $1`,
		accountID, balance,
	)
	if err != nil {
		return mapError(err, "account "+accountID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", accountID, ledger.ErrAccountNotFound)
	}
	return nil
}

var _ ledger.Tx = (*tx)(nil)
