package domain

import (
	"errors"
	"fmt"
)

// ValidationError is returned when caller input breaks a business rule.
// Its message is safe to show to end users.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is allows errors.Is(err, &ValidationError{}) to match any validation failure.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func ErrCartEmpty() error {
	return NewValidationError("cart is empty")
}

func ErrProductNotFound(productID int64) error {
	return NewValidationError("product ID %d not found", productID)
}

func ErrProductInactive(productID int64) error {
	return NewValidationError("product %d is inactive", productID)
}

func ErrInsufficientStock(productID int64, remaining int) error {
	return NewValidationError("insufficient stock for product %d (remaining %d)", productID, remaining)
}
