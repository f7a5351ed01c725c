// Package history rebuilds past balances and aggregates from the operation
// log. Nothing here mutates ledger state.
package history

import (
	"slices"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Entry is an operation paired with the balance right after it.
type Entry struct {
	OperationID  int64           `json:"operation_id"`
	At           time.Time       `json:"date"`
	Kind         ledger.Kind     `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Point is one step of a balance trajectory.
type Point struct {
	At           time.Time       `json:"date"`
	BalanceAfter decimal.Decimal `json:"balance"`
	Kind         ledger.Kind     `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
}

// NewestFirst returns a copy of ops ordered by (CreatedAt, ID) descending.
func NewestFirst(ops []ledger.Operation) []ledger.Operation {
	out := slices.Clone(ops)
	slices.SortStableFunc(out, func(a, b ledger.Operation) int { return compare(b, a) })
	return out
}

// OldestFirst returns a copy of ops ordered by (CreatedAt, ID) ascending.
func OldestFirst(ops []ledger.Operation) []ledger.Operation {
	out := slices.Clone(ops)
	slices.SortStableFunc(out, compare)
	return out
}

func compare(a, b ledger.Operation) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

// Rewind walks ops backwards from current, undoing each one. It returns the
// balance before the oldest operation and the entries newest first, each
// carrying the balance right after that operation. Input order does not
// matter; ties on CreatedAt are broken by ID.
func Rewind(current decimal.Decimal, ops []ledger.Operation) (decimal.Decimal, []Entry, error) {
	ordered := NewestFirst(ops)
	entries := make([]Entry, 0, len(ordered))

	balance := current
	for _, op := range ordered {
		entries = append(entries, Entry{
			OperationID:  op.ID,
			At:           op.CreatedAt,
			Kind:         op.Kind,
			Amount:       op.Amount,
			Description:  op.Description,
			BalanceAfter: balance,
		})

		before, err := ledger.RevertDelta(balance, op.Amount, op.Kind)
		if err != nil {
			return decimal.Decimal{}, nil, err
		}
		balance = before
	}

	return balance, entries, nil
}

// Reconstruct returns the newest-first history ending at current.
func Reconstruct(current decimal.Decimal, ops []ledger.Operation) ([]Entry, error) {
	_, entries, err := Rewind(current, ops)
	return entries, err
}

// Replay applies ops forward from start in chronological order.
func Replay(start decimal.Decimal, ops []ledger.Operation) ([]Point, error) {
	ordered := OldestFirst(ops)
	points := make([]Point, 0, len(ordered))

	balance := start
	for _, op := range ordered {
		after, err := ledger.ApplyDelta(balance, op.Amount, op.Kind)
		if err != nil {
			return nil, err
		}
		balance = after
		points = append(points, Point{
			At:           op.CreatedAt,
			BalanceAfter: balance,
			Kind:         op.Kind,
			Amount:       op.Amount,
		})
	}

	return points, nil
}
