package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"balance-ledger/pkg/ledger"

	"github.com/lib/pq"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, ledger.ErrNotFound},
		{"lock timeout", &pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"}, ledger.ErrContention},
		{"serialization", &pq.Error{Code: "40001"}, ledger.ErrContention},
		{"deadlock", &pq.Error{Code: "40P01"}, ledger.ErrContention},
		{"unique", &pq.Error{Code: "23505"}, ledger.ErrAlreadyExists},
		{"foreign key", &pq.Error{Code: "23503"}, ledger.ErrNotFound},
		{"admin shutdown", &pq.Error{Code: "57P01"}, ledger.ErrStorageFault},
		{"bad conn", fmt.Errorf("query: %w", sql.ErrConnDone), ledger.ErrStorageFault},
		{"canceled", context.Canceled, context.Canceled},
		{"bad kind on scan", fmt.Errorf("sql: Scan error on column index 3: %w", fmt.Errorf("%w: cannot scan int64", ledger.ErrInvalidKind)), ledger.ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "account x")
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if mapError(nil, "x") != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestMapError_RetryClasses(t *testing.T) {
	if !ledger.IsRetryable(mapError(&pq.Error{Code: "55P03"}, "a")) {
		t.Error("lock timeout should be retryable")
	}
	if ledger.IsRetryable(mapError(sql.ErrNoRows, "a")) {
		t.Error("missing account should not be retryable")
	}

	overflow := mapError(&pq.Error{Code: "22003", Message: "numeric field overflow"}, "account a")
	if ledger.IsRetryable(overflow) || !ledger.IsTerminal(overflow) || !ledger.IsValidation(overflow) {
		t.Errorf("numeric overflow should be a terminal validation error, got %v", overflow)
	}

	badKind := mapError(fmt.Errorf("scan: %w", ledger.ErrInvalidKind), "operation 7")
	if ledger.IsRetryable(badKind) || !ledger.IsTerminal(badKind) {
		t.Errorf("invalid kind should be terminal, got %v", badKind)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	want := "host=localhost port=5432 user=postgres password=postgres dbname=ledger sslmode=disable"
	if got := cfg.dsn(); got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}

	cfg.DSN = "postgres://u@h/db"
	if cfg.dsn() != "postgres://u@h/db" {
		t.Error("DSN should override the individual fields")
	}
}
