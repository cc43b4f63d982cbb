package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Order struct {
	ID             int64
	TableNumber    int // 0 = takeaway
	SessionID      string
	UserID         string
	Phone          string
	CustomerName   string
	OrderTime      time.Time
	Status         Status
	TotalAmount    decimal.Decimal // before discount
	PromotionCode  string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	IsRated        bool
	UpdatedAt      time.Time
	Items          []Item
}

// AmountDue is what a payment must cover.
func (o Order) AmountDue() decimal.Decimal { return o.FinalAmount }

// Item snapshots product name and price so later menu edits leave history intact.
type Item struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	ProductName     string
	PriceAtPurchase decimal.Decimal
	Quantity        int
	Note            string
}

func (i Item) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Session struct {
	ID          string
	TableNumber int
	Active      bool
	CreatedAt   time.Time
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	Status      Status
	TableNumber *int
	UserID      string
	Limit       int
}

// ---- JSON views ----

type ItemView struct {
	OrderItemID  int64           `json:"orderItemId"`
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductPrice decimal.Decimal `json:"productPrice"`
	Quantity     int             `json:"quantity"`
	Note         string          `json:"note,omitempty"`
}

type View struct {
	OrderID        int64           `json:"orderId"`
	CustomerName   string          `json:"customerName,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	TableNumber    int             `json:"tableNumber"`
	Amount         decimal.Decimal `json:"amount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	PromotionCode  string          `json:"promotionCode,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
	OrderTime      time.Time       `json:"orderTime"`
	Status         Status          `json:"status"`
	IsRated        bool            `json:"isRated"`
	Items          []ItemView      `json:"items"`
}

func (o Order) View() View {
	items := make([]ItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemView{
			OrderItemID:  it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductPrice: it.PriceAtPurchase,
			Quantity:     it.Quantity,
			Note:         it.Note,
		})
	}
	return View{
		OrderID:        o.ID,
		CustomerName:   o.CustomerName,
		UserID:         o.UserID,
		TableNumber:    o.TableNumber,
		Amount:         o.FinalAmount,
		TotalAmount:    o.TotalAmount,
		PromotionCode:  o.PromotionCode,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		OrderTime:      o.OrderTime,
		Status:         o.Status,
		IsRated:        o.IsRated,
		Items:          items,
	}
}

// StatusChanged is the order-status-changed push payload.
type StatusChanged struct {
	OrderID        int64     `json:"orderId"`
	PreviousStatus Status    `json:"previousStatus"`
	Status         Status    `json:"status"`
	TableNumber    int       `json:"tableNumber"`
	ChangedAt      time.Time `json:"changedAt"`
}

// StatusView is what the status endpoint and its cache hold.
type StatusView struct {
	OrderID   int64     `json:"orderId"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}
