package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Reader is the read side of the account and operation stores. Inside a Tx or
// a Snapshot every method sees the same consistent state.
type Reader interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	FindAccountByPrincipal(ctx context.Context, principal string) (*Account, error)
	// TopAccounts returns up to limit accounts ordered by balance, highest first.
	TopAccounts(ctx context.Context, limit int) ([]Account, error)

	QueryOperations(ctx context.Context, accountID string, filter Filter) (Page, error)
	// RangeOperations returns operations with CreatedAt in [start, end], oldest first.
	RangeOperations(ctx context.Context, accountID string, start, end time.Time) ([]Operation, error)
	// RecentOperations returns up to limit operations, newest first.
	RecentOperations(ctx context.Context, accountID string, limit int) ([]Operation, error)
	// OperationsSince returns operations with CreatedAt >= since, oldest first.
	OperationsSince(ctx context.Context, accountID string, since time.Time) ([]Operation, error)

	Totals(ctx context.Context, accountID string) (Totals, error)
	// MonthlyTotals sums operations per UTC calendar month and kind within year.
	MonthlyTotals(ctx context.Context, accountID string, year int) ([]MonthTotal, error)
}

// Tx is one unit of work. Writes become visible only when the InTx callback
// returns nil.
type Tx interface {
	Reader

	// LockAccount loads the account and holds an exclusive lock on it until
	// the unit of work ends.
	LockAccount(ctx context.Context, accountID string) (*Account, error)
	// AppendOperation assigns ID and CreatedAt and records the operation.
	AppendOperation(ctx context.Context, op NewOperation) (Operation, error)
	SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
}

// Store is the persistence boundary of the ledger.
type Store interface {
	// InTx runs fn in a unit of work, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
	// Snapshot runs fn against one consistent read-only view.
	Snapshot(ctx context.Context, fn func(Reader) error) error

	CreateAccount(ctx context.Context, account NewAccount) (*Account, error)
	// DeleteAccount removes the account and all of its operations.
	DeleteAccount(ctx context.Context, accountID string) error

	Close() error
}

// Resolver maps an external principal (for example an email) to an account id.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, principal string) (string, error)
}
