package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidate(t *testing.T) {
	limit := decimal.NewFromInt(1000)

	tests := []struct {
		name       string
		amount     string
		kind       Kind
		desc       string
		violations int
	}{
		{"valid", "10.25", KindDeposit, "", 0},
		{"at ceiling", "1000", KindWithdraw, "", 0},
		{"zero", "0", KindDeposit, "", 1},
		{"negative", "-5", KindDeposit, "", 1},
		{"over ceiling", "1000.01", KindDeposit, "", 1},
		{"three decimals", "1.005", KindDeposit, "", 1},
		{"unknown kind", "1", KindUnknown, "", 1},
		{"long description", "1", KindDeposit, strings.Repeat("é", 256), 1},
		{"everything wrong", "-1.001", KindUnknown, "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(decimal.RequireFromString(tt.amount), tt.kind, tt.desc, limit)
			if tt.violations == 0 {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if len(ve.Violations) != tt.violations {
				t.Errorf("Expected %d violations, got %v", tt.violations, ve.Violations)
			}
			if IsRetryable(err) || !IsTerminal(err) {
				t.Error("Validation errors must be terminal")
			}
		})
	}
}

func TestValidate_DefaultCeiling(t *testing.T) {
	if err := Validate(decimal.NewFromInt(1_000_000), KindDeposit, "", decimal.Zero); err != nil {
		t.Errorf("Expected default ceiling to accept 1,000,000: %v", err)
	}
	if err := Validate(decimal.NewFromInt(1_000_001), KindDeposit, "", decimal.Zero); err == nil {
		t.Error("Expected default ceiling to reject 1,000,001")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{&ValidationError{Violations: []string{"x"}}, "validation"},
		{ErrAccountNotFound, "not_found"},
		{ErrInsufficientFunds, "insufficient_funds"},
		{ErrContention, "contention"},
		{ErrStorageFault, "storage_fault"},
		{ErrInvalidKind, "invalid_kind"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestErrorClasses(t *testing.T) {
	if !IsNotFound(ErrAccountNotFound) {
		t.Error("ErrAccountNotFound should be a NotFound")
	}
	if !IsRetryable(ErrContention) || !IsRetryable(ErrStorageFault) {
		t.Error("Contention and storage faults should be retryable")
	}
	if IsRetryable(ErrInsufficientFunds) || !IsTerminal(ErrInsufficientFunds) {
		t.Error("Insufficient funds should be terminal")
	}
	if !IsTerminal(ErrInvalidKind) {
		t.Error("Invalid kind should be terminal")
	}
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Sort: "ASC", Page: -1, PerPage: 1000}.Normalize()
	if f.Sort != SortAsc || f.Page != 1 || f.PerPage != MaxPerPage {
		t.Errorf("Unexpected normalized filter: %+v", f)
	}

	f = Filter{Sort: "sideways"}.Normalize()
	if f.Sort != SortDesc || f.PerPage != DefaultPerPage {
		t.Errorf("Unexpected defaults: %+v", f)
	}
}

func TestNewPage(t *testing.T) {
	items := make([]Operation, 3)
	f := Filter{Page: 2, PerPage: 5}.Normalize()

	p := NewPage(items, 8, f)
	if p.LastPage != 2 || p.From != 6 || p.To != 8 || p.Total != 8 {
		t.Errorf("Unexpected page meta: %+v", p)
	}

	empty := NewPage(nil, 0, Filter{}.Normalize())
	if empty.LastPage != 1 || empty.From != 0 || empty.To != 0 || empty.Items == nil {
		t.Errorf("Unexpected empty page: %+v", empty)
	}
}
