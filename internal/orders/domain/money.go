package domain

import "github.com/shopspring/decimal"

// Money columns are NUMERIC(12,2): two decimal places and ten integer digits.
const AmountScale = 2

// MaxAmount is the smallest value that no longer fits a money column.
var MaxAmount = decimal.New(1, 10)

// ValidateAmount rejects values storage would round or refuse, so the amount returned
// to a caller is always the amount persisted.
func ValidateAmount(field string, amount decimal.Decimal) error {
	switch {
	case amount.IsNegative():
		return NewValidationError("%s must not be negative", field)
	case !amount.Equal(amount.Truncate(AmountScale)):
		return NewValidationError("%s must have at most %d decimal places", field, AmountScale)
	case amount.GreaterThanOrEqual(MaxAmount):
		return NewValidationError("%s must be less than %s", field, MaxAmount.String())
	}
	return nil
}
