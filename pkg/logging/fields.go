package logging

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Field constructors for the keys every ledger log line shares, so that
// engine, dispatcher and store entries can be joined on the same names.

func AccountID(id string) zap.Field { return zap.String("account_id", id) }

func OperationID(id int64) zap.Field { return zap.Int64("operation_id", id) }

func JobID(id string) zap.Field { return zap.String("job_id", id) }

func Kind(kind string) zap.Field { return zap.String("kind", kind) }

func Amount(amount decimal.Decimal) zap.Field { return Decimal("amount", amount) }

// Decimal renders a monetary value with two fractional digits.
func Decimal(key string, value decimal.Decimal) zap.Field {
	return zap.String(key, value.StringFixed(2))
}
