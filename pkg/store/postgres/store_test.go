package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func setupTestStore(t *testing.T, lockTimeout time.Duration) *Store {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}

	cfg := DefaultConfig()
	cfg.DSN = dsn
	cfg.LockTimeout = lockTimeout

	s, err := NewStore(cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newAccount(t *testing.T, s *Store, balance int64) string {
	t.Helper()
	id := uuid.NewString()
	_, err := s.CreateAccount(context.Background(), ledger.NewAccount{
		ID:             id,
		Principal:      id + "@example.com",
		InitialBalance: decimal.NewFromInt(balance),
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	t.Cleanup(func() { s.DeleteAccount(context.Background(), id) })
	return id
}

func TestPostgresStore_Scenario(t *testing.T) {
	s := setupTestStore(t, 5*time.Second)
	engine := ledger.NewEngine(s, ledger.DefaultEngineConfig())
	ctx := context.Background()
	id := newAccount(t, s, 100)

	if _, err := engine.Apply(ctx, id, decimal.NewFromInt(50), ledger.KindDeposit, "pay"); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := engine.Apply(ctx, id, decimal.NewFromInt(200), ledger.KindWithdraw, ""); !ledger.IsInsufficientFunds(err) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	res, err := engine.Apply(ctx, id, decimal.NewFromInt(150), ledger.KindWithdraw, "")
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !res.NewBalance.IsZero() {
		t.Errorf("Expected zero balance, got %s", res.NewBalance)
	}

	var totals ledger.Totals
	var page ledger.Page
	err = s.Snapshot(ctx, func(r ledger.Reader) error {
		var err error
		if totals, err = r.Totals(ctx, id); err != nil {
			return err
		}
		page, err = r.QueryOperations(ctx, id, ledger.Filter{Search: "PAY"})
		return err
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if totals.Deposits.Count != 1 || totals.Withdrawals.Count != 1 {
		t.Errorf("Unexpected totals: %+v", totals)
	}
	if page.Total != 1 || page.Items[0].Description != "pay" {
		t.Errorf("Expected one matching operation, got %+v", page)
	}
}

func TestPostgresStore_LockTimeout(t *testing.T) {
	s := setupTestStore(t, 50*time.Millisecond)
	ctx := context.Background()
	id := newAccount(t, s, 10)

	locked := make(chan struct{})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.InTx(ctx, func(tx ledger.Tx) error {
			if _, err := tx.LockAccount(ctx, id); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()

	<-locked
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.LockAccount(ctx, id)
		return err
	})
	close(done)
	wg.Wait()

	if !ledger.IsContention(err) {
		t.Errorf("Expected ErrContention, got %v", err)
	}
}

func TestPostgresStore_DeleteCascades(t *testing.T) {
	s := setupTestStore(t, 5*time.Second)
	engine := ledger.NewEngine(s, ledger.DefaultEngineConfig())
	ctx := context.Background()
	id := newAccount(t, s, 0)

	engine.Apply(ctx, id, decimal.NewFromInt(5), ledger.KindDeposit, "")
	if err := s.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	var count int
	s.db.QueryRowContext(ctx, `SELECT count(*) FROM operations WHERE account_id = $1`, id).Scan(&count)
	if count != 0 {
		t.Errorf("Expected operations to be deleted, found %d", count)
	}
	if _, err := engine.Apply(ctx, id, decimal.NewFromInt(5), ledger.KindDeposit, ""); !ledger.IsNotFound(err) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestPostgresStore_Principal(t *testing.T) {
	s := setupTestStore(t, 5*time.Second)
	ctx := context.Background()
	id := newAccount(t, s, 0)

	got, err := s.ResolvePrincipal(ctx, "  "+id+"@EXAMPLE.com")
	if err != nil || got != id {
		t.Errorf("ResolvePrincipal = %q, %v", got, err)
	}

	_, err = s.CreateAccount(ctx, ledger.NewAccount{ID: uuid.NewString(), Principal: id + "@example.com"})
	if !ledger.IsAlreadyExists(err) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestPostgresStore_MonthlyTotals(t *testing.T) {
	s := setupTestStore(t, 5*time.Second)
	engine := ledger.NewEngine(s, ledger.DefaultEngineConfig())
	ctx := context.Background()
	id := newAccount(t, s, 0)

	engine.Apply(ctx, id, decimal.NewFromInt(30), ledger.KindDeposit, "")
	engine.Apply(ctx, id, decimal.NewFromInt(10), ledger.KindWithdraw, "")

	var totals []ledger.MonthTotal
	err := s.Snapshot(ctx, func(r ledger.Reader) error {
		var err error
		totals, err = r.MonthlyTotals(ctx, id, time.Now().UTC().Year())
		return err
	})
	if err != nil {
		t.Fatalf("MonthlyTotals failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Expected 2 month/kind rows, got %+v", totals)
	}
	if totals[0].Month != time.Now().UTC().Month() {
		t.Errorf("Unexpected month %v", totals[0].Month)
	}
}
