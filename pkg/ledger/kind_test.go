package ledger

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"deposit", KindDeposit, false},
		{" Withdraw ", KindWithdraw, false},
		{"refund", KindUnknown, true},
		{"", KindUnknown, true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidKind) {
			t.Errorf("ParseKind(%q) error should wrap ErrInvalidKind", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyDelta(t *testing.T) {
	balance := decimal.RequireFromString("10.50")
	amount := decimal.RequireFromString("0.75")

	got, err := ApplyDelta(balance, amount, KindDeposit)
	if err != nil || !got.Equal(decimal.RequireFromString("11.25")) {
		t.Errorf("deposit: got %s, %v", got, err)
	}

	got, err = ApplyDelta(balance, amount, KindWithdraw)
	if err != nil || !got.Equal(decimal.RequireFromString("9.75")) {
		t.Errorf("withdraw: got %s, %v", got, err)
	}

	if _, err := ApplyDelta(balance, amount, Kind(7)); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind for unknown kind, got %v", err)
	}

	after, _ := ApplyDelta(balance, amount, KindWithdraw)
	before, err := RevertDelta(after, amount, KindWithdraw)
	if err != nil || !before.Equal(balance) {
		t.Errorf("RevertDelta did not undo ApplyDelta: %s, %v", before, err)
	}
}

func TestKind_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Kind Kind `json:"kind"`
	}{KindWithdraw})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"kind":"withdraw"}` {
		t.Errorf("Unexpected JSON: %s", data)
	}

	var out struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(`{"kind":"transfer"}`), &out); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind, got %v", err)
	}
	if _, err := json.Marshal(KindUnknown); err == nil {
		t.Error("Expected marshaling an unknown kind to fail")
	}
}

func TestKind_Scan(t *testing.T) {
	var k Kind
	if err := k.Scan([]byte("deposit")); err != nil || k != KindDeposit {
		t.Errorf("Scan([]byte) = %v, %v", k, err)
	}
	if err := k.Scan(42); err == nil {
		t.Error("Expected Scan of int to fail")
	}
	if v, err := KindWithdraw.Value(); err != nil || v != "withdraw" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}
