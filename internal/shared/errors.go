package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a decrement larger than the remaining quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a concurrent modification lost the race.
	ErrConflict = errors.New("conflict")
)

// ValidationError wraps ErrValidation with a field-level message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError wraps ErrNotFound with the missing entity.
func NotFoundError(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// InsufficientStockError carries the quantities shown to operators.
type InsufficientStockError struct {
	LotID     int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for lot %d. Available: %d, Requested: %d", e.LotID, e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
