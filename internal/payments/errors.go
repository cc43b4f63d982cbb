package payments

import "errors"

var (
	ErrMalformedWebhook     = errors.New("malformed webhook")
	ErrDuplicateWebhook     = errors.New("webhook already processed")
	ErrNotInbound           = errors.New("transfer is not inbound")
	ErrInvalidAmount        = errors.New("transfer amount must be positive")
	ErrIdentifierUnresolved = errors.New("no order id in transaction text")
	ErrAmountMismatch       = errors.New("transfer amount does not match amount due")
)
