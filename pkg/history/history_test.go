package history

import (
	"math/rand"
	"testing"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// randomLog builds a valid operation log from start and returns it with the
// resulting balance.
func randomLog(rng *rand.Rand, start decimal.Decimal, n int) ([]ledger.Operation, decimal.Decimal) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	balance := start
	ops := make([]ledger.Operation, 0, n)

	for i := 0; i < n; i++ {
		amount := decimal.New(rng.Int63n(10000)+1, -2)
		kind := ledger.KindDeposit
		if rng.Intn(2) == 0 && balance.GreaterThanOrEqual(amount) {
			kind = ledger.KindWithdraw
		}
		balance, _ = ledger.ApplyDelta(balance, amount, kind)

		// Several operations share a timestamp so ordering falls back to ID.
		ops = append(ops, ledger.Operation{
			ID:        int64(i + 1),
			Amount:    amount,
			Kind:      kind,
			CreatedAt: base.Add(time.Duration(i/3) * time.Minute),
		})
	}
	return ops, balance
}

func TestReconstruct_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		start := decimal.New(rng.Int63n(100000), -2)
		ops, current := randomLog(rng, start, rng.Intn(40))
		rng.Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

		before, entries, err := Rewind(current, ops)
		if err != nil {
			t.Fatalf("Rewind failed: %v", err)
		}
		if !before.Equal(start) {
			t.Fatalf("run %d: rewound to %s, want %s", run, before, start)
		}

		// Compose forward from the earliest entry.
		balance := before
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			balance, _ = ledger.ApplyDelta(balance, e.Amount, e.Kind)
			if !balance.Equal(e.BalanceAfter) {
				t.Fatalf("run %d: entry %d balance %s, want %s", run, e.OperationID, e.BalanceAfter, balance)
			}
		}
		if !balance.Equal(current) {
			t.Errorf("run %d: forward composition gives %s, want %s", run, balance, current)
		}
	}
}

func TestReconstruct_NewestFirstWithTies(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ops := []ledger.Operation{
		{ID: 2, Amount: decimal.NewFromInt(30), Kind: ledger.KindWithdraw, CreatedAt: at},
		{ID: 1, Amount: decimal.NewFromInt(100), Kind: ledger.KindDeposit, CreatedAt: at},
		{ID: 3, Amount: decimal.NewFromInt(5), Kind: ledger.KindDeposit, CreatedAt: at.Add(time.Second)},
	}

	entries, err := Reconstruct(decimal.NewFromInt(75), ops)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	wantIDs := []int64{3, 2, 1}
	wantAfter := []int64{75, 70, 100}
	for i, e := range entries {
		if e.OperationID != wantIDs[i] || !e.BalanceAfter.Equal(decimal.NewFromInt(wantAfter[i])) {
			t.Errorf("entry %d = (%d, %s), want (%d, %d)", i, e.OperationID, e.BalanceAfter, wantIDs[i], wantAfter[i])
		}
	}
}

func TestReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	start := decimal.NewFromInt(20)
	ops, current := randomLog(rng, start, 25)

	points, err := Replay(start, ops)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(points) != len(ops) {
		t.Fatalf("Expected %d points, got %d", len(ops), len(points))
	}
	if !points[len(points)-1].BalanceAfter.Equal(current) {
		t.Errorf("Last point %s, want %s", points[len(points)-1].BalanceAfter, current)
	}
	for i := 1; i < len(points); i++ {
		if points[i].At.Before(points[i-1].At) {
			t.Fatalf("Points out of order at %d", i)
		}
	}
}

func TestRewind_InvalidKind(t *testing.T) {
	ops := []ledger.Operation{{ID: 1, Amount: decimal.NewFromInt(1), Kind: ledger.KindUnknown}}
	if _, err := Reconstruct(decimal.Zero, ops); err == nil {
		t.Error("Expected an invalid kind in the log to fail")
	}
}

func TestSummarize_EmptyYear(t *testing.T) {
	summary := Summarize(2023, nil)

	if len(summary.Months) != 12 {
		t.Fatalf("Expected 12 months, got %d", len(summary.Months))
	}
	for i, m := range summary.Months {
		if m.Month != i+1 {
			t.Errorf("Month %d out of order: %d", i, m.Month)
		}
		if !m.Deposits.IsZero() || !m.Withdrawals.IsZero() || !m.Net.IsZero() {
			t.Errorf("Month %d not zero: %+v", m.Month, m)
		}
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(2024, []ledger.MonthTotal{
		{Month: time.March, Kind: ledger.KindDeposit, Sum: decimal.NewFromInt(300)},
		{Month: time.March, Kind: ledger.KindWithdraw, Sum: decimal.NewFromInt(120)},
		{Month: time.July, Kind: ledger.KindWithdraw, Sum: decimal.NewFromInt(50)},
	})

	march := summary.Months[2]
	if !march.Deposits.Equal(decimal.NewFromInt(300)) || !march.Net.Equal(decimal.NewFromInt(180)) {
		t.Errorf("Unexpected March: %+v", march)
	}
	july := summary.Months[6]
	if !july.Net.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("Unexpected July: %+v", july)
	}
	if !summary.Months[0].Net.IsZero() {
		t.Errorf("January should be zero: %+v", summary.Months[0])
	}
}

func TestCompute(t *testing.T) {
	var totals ledger.Totals
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, amount := range []int64{10, 20, 40} {
		totals.Add(ledger.Operation{ID: int64(i), Amount: decimal.NewFromInt(amount), Kind: ledger.KindDeposit, CreatedAt: at.AddDate(0, 0, i)})
	}
	totals.Add(ledger.Operation{ID: 9, Amount: decimal.NewFromInt(5), Kind: ledger.KindWithdraw, CreatedAt: at})

	stats := Compute(decimal.NewFromInt(65), totals)
	if stats.TotalOperations != 4 || stats.TotalDeposits != 3 || stats.TotalWithdrawals != 1 {
		t.Errorf("Unexpected counts: %+v", stats)
	}
	if !stats.AverageDeposit.Equal(decimal.RequireFromString("23.33")) {
		t.Errorf("Expected average deposit 23.33, got %s", stats.AverageDeposit)
	}
	if !stats.LargestDeposit.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected largest deposit 40, got %s", stats.LargestDeposit)
	}
	if stats.LastOperationAt == nil || !stats.LastOperationAt.Equal(at.AddDate(0, 0, 2)) {
		t.Errorf("Unexpected last operation time: %v", stats.LastOperationAt)
	}

	empty := Compute(decimal.Zero, ledger.Totals{})
	if !empty.AverageWithdrawal.IsZero() || empty.LastOperationAt != nil {
		t.Errorf("Unexpected empty statistics: %+v", empty)
	}
}
