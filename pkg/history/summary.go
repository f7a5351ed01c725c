package history

import (
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Month is the per-month part of a MonthlySummary.
type Month struct {
	Month       int             `json:"month"`
	Name        string          `json:"name"`
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Net         decimal.Decimal `json:"net"`
}

// MonthlySummary always holds all twelve months of Year, in order.
type MonthlySummary struct {
	Year   int     `json:"year"`
	Months []Month `json:"months"`
}

// Summarize folds per-month totals into a twelve-month summary. Months
// without totals report zero for every field.
func Summarize(year int, totals []ledger.MonthTotal) MonthlySummary {
	summary := MonthlySummary{Year: year, Months: make([]Month, 12)}
	for i := range summary.Months {
		m := time.Month(i + 1)
		summary.Months[i] = Month{
			Month:       int(m),
			Name:        m.String(),
			Deposits:    decimal.Zero,
			Withdrawals: decimal.Zero,
			Net:         decimal.Zero,
		}
	}

	for _, t := range totals {
		if t.Month < time.January || t.Month > time.December {
			continue
		}
		m := &summary.Months[t.Month-1]
		switch t.Kind {
		case ledger.KindDeposit:
			m.Deposits = m.Deposits.Add(t.Sum)
		case ledger.KindWithdraw:
			m.Withdrawals = m.Withdrawals.Add(t.Sum)
		}
		m.Net = m.Deposits.Sub(m.Withdrawals)
	}

	return summary
}

// Statistics are simple aggregates over every operation of an account.
type Statistics struct {
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	TotalOperations   int             `json:"total_operations"`
	TotalDeposits     int             `json:"total_deposits"`
	TotalWithdrawals  int             `json:"total_withdrawals"`
	TotalDeposited    decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn    decimal.Decimal `json:"total_withdrawn"`
	AverageDeposit    decimal.Decimal `json:"average_deposit"`
	AverageWithdrawal decimal.Decimal `json:"average_withdrawal"`
	LargestDeposit    decimal.Decimal `json:"largest_deposit"`
	LargestWithdrawal decimal.Decimal `json:"largest_withdrawal"`
	LastOperationAt   *time.Time      `json:"last_operation_at,omitempty"`
}

// Compute derives Statistics from store totals. Averages are rounded to cents.
func Compute(current decimal.Decimal, totals ledger.Totals) Statistics {
	return Statistics{
		CurrentBalance:    current,
		TotalOperations:   totals.Deposits.Count + totals.Withdrawals.Count,
		TotalDeposits:     totals.Deposits.Count,
		TotalWithdrawals:  totals.Withdrawals.Count,
		TotalDeposited:    totals.Deposits.Sum,
		TotalWithdrawn:    totals.Withdrawals.Sum,
		AverageDeposit:    average(totals.Deposits),
		AverageWithdrawal: average(totals.Withdrawals),
		LargestDeposit:    totals.Deposits.Max,
		LargestWithdrawal: totals.Withdrawals.Max,
		LastOperationAt:   totals.LastOperationAt,
	}
}

func average(kt ledger.KindTotals) decimal.Decimal {
	if kt.Count == 0 {
		return decimal.Zero
	}
	return kt.Sum.DivRound(decimal.NewFromInt(int64(kt.Count)), 2)
}
