package ledger

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DefaultMaxAmount guards against malformed input.
var DefaultMaxAmount = decimal.NewFromInt(1_000_000)

// MaxDescriptionLength is the longest accepted description, in characters.
const MaxDescriptionLength = 255

// Validate checks operation input before any state is touched. Every violated
// rule is reported. A zero limit means DefaultMaxAmount.
func Validate(amount decimal.Decimal, kind Kind, description string, limit decimal.Decimal) error {
	ve := &ValidationError{}
	validateAmount(ve, amount, limit)
	if !kind.IsValid() {
		ve.Add("kind must be deposit or withdraw")
	}
	validateDescription(ve, description)
	return ve.Err()
}

func validateAmount(ve *ValidationError, amount decimal.Decimal, limit decimal.Decimal) {
	if limit.IsZero() {
		limit = DefaultMaxAmount
	}
	if !amount.IsPositive() {
		ve.Add("amount must be greater than 0")
	}
	if amount.GreaterThan(limit) {
		ve.Add("amount must not exceed %s", limit.String())
	}
	if !amount.Equal(amount.Truncate(2)) {
		ve.Add("amount must have at most 2 decimal places")
	}
}

func validateDescription(ve *ValidationError, description string) {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		ve.Add("description must not exceed %d characters", MaxDescriptionLength)
	}
}

// SubmitRequest is raw operation input from an outer boundary (HTTP, CLI, queue).
type SubmitRequest struct {
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Parse converts r into typed values, collecting parse and rule violations in
// one ValidationError.
func (r SubmitRequest) Parse(limit decimal.Decimal) (decimal.Decimal, Kind, error) {
	ve := &ValidationError{}

	if r.AccountID == "" {
		ve.Add("account_id is required")
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		ve.Add("amount must be a number")
	} else {
		validateAmount(ve, amount, limit)
	}

	kind, err := ParseKind(r.Kind)
	if err != nil {
		ve.Add("kind must be deposit or withdraw")
	}

	validateDescription(ve, r.Description)

	if err := ve.Err(); err != nil {
		return decimal.Decimal{}, KindUnknown, err
	}
	return amount, kind, nil
}
