package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	accountColumns   = `id, COALESCE(principal, ''), balance, created_at, updated_at`
	operationColumns = `id, account_id, amount, kind, description, created_at`
)

// reader implements ledger.Reader on one querier.
type reader struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*ledger.Account, error) {
	var a ledger.Account
	if err := row.Scan(&a.ID, &a.Principal, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanOperation(row scanner) (ledger.Operation, error) {
	var op ledger.Operation
	if err := row.Scan(&op.ID, &op.AccountID, &op.Amount, &op.Kind, &op.Description, &op.CreatedAt); err != nil {
		return op, err
	}
	op.CreatedAt = op.CreatedAt.UTC()
	return op, nil
}

func (r reader) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRowContext(ctx, query, accountID))
	if err != nil {
		return nil, mapError(err, "account "+accountID)
	}
	return account, nil
}

func (r reader) FindAccountByPrincipal(ctx context.Context, principal string) (*ledger.Account, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, fmt.Errorf("principal: %w", ledger.ErrAccountNotFound)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(principal) = lower($1)`

	account, err := scanAccount(r.q.QueryRowContext(ctx, query, principal))
	if err != nil {
		return nil, mapError(err, "principal "+principal)
	}
	return account, nil
}

func (r reader) TopAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY balance DESC, id LIMIT $1`

	rows, err := r.q.QueryContext(ctx, query, nullLimit(limit))
	if err != nil {
		return nil, mapError(err, "top accounts")
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, mapError(err, "top accounts")
		}
		accounts = append(accounts, *account)
	}
	return accounts, mapError(rows.Err(), "top accounts")
}

func (r reader) QueryOperations(ctx context.Context, accountID string, filter ledger.Filter) (ledger.Page, error) {
	filter = filter.Normalize()
	if err := r.requireAccount(ctx, accountID); err != nil {
		return ledger.Page{}, err
	}

	where := `WHERE account_id = $1`
	args := []any{accountID}
	if filter.Search != "" {
		where += ` AND description ILIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM operations `+where, args...).Scan(&total); err != nil {
		return ledger.Page{}, mapError(err, "account "+accountID)
	}

	// filter.Sort is normalized to asc or desc.
	order := ` ORDER BY created_at ` + filter.Sort + `, id ` + filter.Sort
	limit := fmt.Sprintf(` LIMIT %d OFFSET %d`, filter.PerPage, filter.Offset())

	ops, err := r.operations(ctx, accountID, `SELECT `+operationColumns+` FROM operations `+where+order+limit, args...)
	if err != nil {
		return ledger.Page{}, err
	}
	return ledger.NewPage(ops, total, filter), nil
}

func (r reader) RangeOperations(ctx context.Context, accountID string, start, end time.Time) ([]ledger.Operation, error) {
	if err := r.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}
	query := `SELECT ` + operationColumns + ` FROM operations
		WHERE account_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at, id`
	return r.operations(ctx, accountID, query, accountID, start, end)
}

func (r reader) RecentOperations(ctx context.Context, accountID string, limit int) ([]ledger.Operation, error) {
	if err := r.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}
	query := `SELECT ` + operationColumns + ` FROM operations
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	return r.operations(ctx, accountID, query, accountID, nullLimit(limit))
}

func (r reader) OperationsSince(ctx context.Context, accountID string, since time.Time) ([]ledger.Operation, error) {
	if err := r.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}
	query := `SELECT ` + operationColumns + ` FROM operations
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at, id`
	return r.operations(ctx, accountID, query, accountID, since)
}

func (r reader) Totals(ctx context.Context, accountID string) (ledger.Totals, error) {
	var totals ledger.Totals
	if err := r.requireAccount(ctx, accountID); err != nil {
		return totals, err
	}

	query := `
		SELECT kind, count(*), COALESCE(sum(amount), 0), COALESCE(max(amount), 0), max(created_at)
		FROM operations
		WHERE account_id = $1
		GROUP BY kind
	`
	rows, err := r.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return totals, mapError(err, "account "+accountID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind ledger.Kind
			kt   ledger.KindTotals
			last sql.NullTime
		)
		if err := rows.Scan(&kind, &kt.Count, &kt.Sum, &kt.Max, &last); err != nil {
			return totals, mapError(err, "account "+accountID)
		}
		switch kind {
		case ledger.KindDeposit:
			totals.Deposits = kt
		case ledger.KindWithdraw:
			totals.Withdrawals = kt
		}
		if last.Valid {
			at := last.Time.UTC()
			if totals.LastOperationAt == nil || at.After(*totals.LastOperationAt) {
				totals.LastOperationAt = &at
			}
		}
	}
	return totals, mapError(rows.Err(), "account "+accountID)
}

func (r reader) MonthlyTotals(ctx context.Context, accountID string, year int) ([]ledger.MonthTotal, error) {
	if err := r.requireAccount(ctx, accountID); err != nil {
		return nil, err
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	query := `
		SELECT EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month, kind, sum(amount)
		FROM operations
		WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY month, kind
		ORDER BY month, kind
	`
	rows, err := r.q.QueryContext(ctx, query, accountID, start, start.AddDate(1, 0, 0))
	if err != nil {
		return nil, mapError(err, "account "+accountID)
	}
	defer rows.Close()

	var totals []ledger.MonthTotal
	for rows.Next() {
		var (
			month int
			mt    ledger.MonthTotal
			sum   decimal.Decimal
		)
		if err := rows.Scan(&month, &mt.Kind, &sum); err != nil {
			return nil, mapError(err, "account "+accountID)
		}
		mt.Month = time.Month(month)
		mt.Sum = sum
		totals = append(totals, mt)
	}
	return totals, mapError(rows.Err(), "account "+accountID)
}

func (r reader) requireAccount(ctx context.Context, accountID string) error {
	var one int
	err := r.q.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, accountID).Scan(&one)
	return mapError(err, "account "+accountID)
}

func (r reader) operations(ctx context.Context, accountID, query string, args ...any) ([]ledger.Operation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "account "+accountID)
	}
	defer rows.Close()

	ops := []ledger.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, mapError(err, "account "+accountID)
		}
		ops = append(ops, op)
	}
	return ops, mapError(rows.Err(), "account "+accountID)
}

// nullLimit turns a non-positive limit into SQL NULL, which means no limit.
func nullLimit(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ ledger.Reader = reader{}
