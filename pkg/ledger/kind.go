package ledger

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of operation kinds. The zero value is invalid.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDeposit
	KindWithdraw
)

// ParseKind parses "deposit" or "withdraw" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return KindDeposit, nil
	case "withdraw":
		return KindWithdraw, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// IsValid reports whether k is deposit or withdraw.
func (k Kind) IsValid() bool {
	return k == KindDeposit || k == KindWithdraw
}

// Inverse returns the kind that undoes k.
func (k Kind) Inverse() Kind {
	switch k {
	case KindDeposit:
		return KindWithdraw
	case KindWithdraw:
		return KindDeposit
	default:
		return KindUnknown
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer.
func (k Kind) Value() (driver.Value, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return k.String(), nil
}

// Scan implements sql.Scanner.
func (k *Kind) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return k.UnmarshalText([]byte(v))
	case []byte:
		return k.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidKind, src)
	}
}

// ApplyDelta returns balance after an operation of kind and amount.
func ApplyDelta(balance, amount decimal.Decimal, kind Kind) (decimal.Decimal, error) {
	switch kind {
	case KindDeposit:
		return balance.Add(amount), nil
	case KindWithdraw:
		return balance.Sub(amount), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(kind))
	}
}

// RevertDelta returns balance before an operation of kind and amount.
func RevertDelta(balance, amount decimal.Decimal, kind Kind) (decimal.Decimal, error) {
	return ApplyDelta(balance, amount, kind.Inverse())
}
