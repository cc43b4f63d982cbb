package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrInventoryNotFound      = errors.New("inventory not found")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrConcurrentModification = errors.New("inventory changed concurrently, retries exhausted")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidLimit           = errors.New("daily limit must not be negative")
	ErrInvalidRange           = errors.New("date range start is after its end")
)

// InsufficientError carries what the customer needs to see.
type InsufficientError struct {
	ProductID   int64
	ProductName string
	Remaining   int
	Requested   int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("product %s only has %d items remaining today", e.ProductName, e.Remaining)
}

func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficientInventory }
