// Package promotion applies discount codes to an order being created.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

var ErrPromotionInvalid = errors.New("promotion invalid")

type Reason string

const (
	ReasonNotFound        Reason = "not-found"
	ReasonInactive        Reason = "inactive"
	ReasonNotStarted      Reason = "not-started"
	ReasonExpired         Reason = "expired"
	ReasonUsageLimit      Reason = "usage-limit"
	ReasonMinAmount       Reason = "min-amount"
	ReasonNoEligibleItems Reason = "no-eligible-items"
)

// Error says which rule rejected the code.
type Error struct {
	Reason  Reason
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("promotion %s: %s", e.Code, e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrPromotionInvalid }

func invalid(code string, reason Reason, msg string) *Error {
	return &Error{Reason: reason, Code: code, Message: msg}
}

// Line is one order line as the applier sees it.
type Line struct {
	ProductID  int64
	CategoryID int64
	Price      decimal.Decimal
	Quantity   int
}

func (l Line) Total() decimal.Decimal { return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))) }

// Applier returns the discount for code and counts one use. Revert undoes
// the count when the order is abandoned afterwards.
type Applier interface {
	Apply(ctx context.Context, code string, total decimal.Decimal, lines []Line) (decimal.Decimal, error)
	Revert(ctx context.Context, code string) error
}

type Type string

const (
	TypeOrder   Type = "ORDER"
	TypeProduct Type = "PRODUCT"
)

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

type Promotion struct {
	ID                 int64
	Code               string
	Type               Type
	DiscountPercentage decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	ProductID          int64 // 0 when not product-scoped
	CategoryID         int64 // 0 when not category-scoped
	TotalQuantity      int
	UsedCount          int
	MinOrderAmount     decimal.Decimal
	Status             string
}

// Normalize upper-cases and trims a code as customers type it.
func Normalize(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

var hundred = decimal.NewFromInt(100)

// Evaluate checks p against an order and returns the discount. It does not
// count a use.
func Evaluate(p Promotion, now time.Time, total decimal.Decimal, lines []Line) (decimal.Decimal, error) {
	switch {
	case p.Status != StatusActive:
		return decimal.Zero, invalid(p.Code, ReasonInactive, "promotion code is not active")
	case now.Before(p.StartDate):
		return decimal.Zero, invalid(p.Code, ReasonNotStarted, "promotion has not started yet")
	case !now.Before(p.EndDate):
		return decimal.Zero, invalid(p.Code, ReasonExpired, "promotion has expired")
	case p.UsedCount >= p.TotalQuantity:
		return decimal.Zero, invalid(p.Code, ReasonUsageLimit, "promotion has been fully used")
	case total.LessThan(p.MinOrderAmount):
		return decimal.Zero, invalid(p.Code, ReasonMinAmount,
			fmt.Sprintf("order amount must be at least %s VND to use this promotion", p.MinOrderAmount.StringFixed(0)))
	}

	rate := p.DiscountPercentage.Div(hundred)
	if p.Type == TypeOrder {
		return clampDiscount(total.Mul(rate), total), nil
	}

	discount := decimal.Zero
	for _, l := range lines {
		if matches(p, l) {
			discount = discount.Add(l.Total().Mul(rate))
		}
	}
	if !discount.IsPositive() {
		return decimal.Zero, invalid(p.Code, ReasonNoEligibleItems, "no items in order are eligible for this promotion")
	}
	return clampDiscount(discount, total), nil
}

func matches(p Promotion, l Line) bool {
	if p.ProductID != 0 {
		return l.ProductID == p.ProductID
	}
	if p.CategoryID != 0 {
		return l.CategoryID == p.CategoryID
	}
	return false
}

func clampDiscount(d, total decimal.Decimal) decimal.Decimal {
	d = d.Round(0)
	if d.GreaterThan(total) {
		return total
	}
	return d
}
