package orders

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderState  = errors.New("invalid order state for requested transition")
	ErrInvalidSession     = errors.New("invalid or inactive session")
	ErrProductUnavailable = errors.New("product is no longer available")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrInvalidTable       = errors.New("invalid table number")
	ErrMissingIdentity    = errors.New("order needs a user id, phone, guest name or session")
)
