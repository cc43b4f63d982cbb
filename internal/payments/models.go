package payments

import (
	"github.com/shopspring/decimal"
	"time"
)

// TransactionDateLayout is how the gateway formats transactionDate, in the
// restaurant's local time.
const TransactionDateLayout = "2006-01-02 15:04:05"

// Webhook is the SePay transaction notification.
type Webhook struct {
	ID              int64           `json:"id"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
	SubAccount      string          `json:"subAccount"`
	Code            string          `json:"code"`
	Content         string          `json:"content"`
	TransferType    string          `json:"transferType"` // "in" | "out"
	TransferAmount  decimal.Decimal `json:"transferAmount"`
	Accumulated     decimal.Decimal `json:"accumulated"`
	ReferenceCode   string          `json:"referenceCode"`
	Description     string          `json:"description"`
}

type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusFailed         Status = "FAILED"
	StatusAmountMismatch Status = "AMOUNT_MISMATCH"
)

// Record is one row of the append-only payment audit log, one per distinct
// provider transaction.
type Record struct {
	ID              int64
	ProviderTxnID   int64
	OrderID         int64 // 0 when no order could be linked
	Gateway         string
	TransactionDate time.Time
	AccountNumber   string
	Code            string
	Content         string
	TransferType    string
	TransferAmount  decimal.Decimal
	ReferenceCode   string
	Description     string
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
}

// Event is the payment-status push payload. Every payment-status event ends
// the order's payment subscription.
type Event struct {
	OrderID         int64            `json:"orderId"`
	PaymentID       int64            `json:"paymentId,omitempty"`
	Status          Status           `json:"status"` // SUCCESS or FAILED
	Reason          string           `json:"reason,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Message         string           `json:"message"`
	Gateway         string           `json:"gateway,omitempty"`
	TransactionDate string           `json:"transactionDate,omitempty"`
}

// Outcome reports what Process did with one delivery. Cause is the business
// rule that failed, nil on success and on duplicates.
type Outcome struct {
	TxnID     int64
	OrderID   int64
	RecordID  int64
	Status    Status
	Duplicate bool
	Cause     error
}

// WaitStatus answers whether a payment page is still listening for an order.
type WaitStatus struct {
	OrderID   int64 `json:"orderId"`
	Listening bool  `json:"listening"`
}
