package inventory

import (
	"github.com/shopspring/decimal"
	"time"
)

// Record is the sellable counter of one product on one calendar day.
// Price and cost are snapshotted when the record is created.
type Record struct {
	ProductID    int64
	ProductName  string
	Date         time.Time
	PriceAtDate  decimal.Decimal
	CostAtDate   decimal.Decimal
	DailyLimit   int
	NumberRemain int
	Version      int64
	CreatedAt    time.Time
}

func (r Record) SoldQuantity() int { return r.DailyLimit - r.NumberRemain }

func (r Record) ProfitPerUnit() decimal.Decimal { return r.PriceAtDate.Sub(r.CostAtDate) }

func (r Record) TotalRevenue() decimal.Decimal {
	return r.PriceAtDate.Mul(decimal.NewFromInt(int64(r.SoldQuantity())))
}

func (r Record) TotalCost() decimal.Decimal {
	return r.CostAtDate.Mul(decimal.NewFromInt(int64(r.SoldQuantity())))
}

func (r Record) TotalProfit() decimal.Decimal { return r.TotalRevenue().Sub(r.TotalCost()) }

// Day truncates t to its calendar date in t's location and returns it as
// midnight UTC, the form stored in DATE columns.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// View is the pull/push shape of a record for today's screens.
type View struct {
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	NumberRemain int             `json:"numberRemain"`
	DailyLimit   int             `json:"dailyLimit"`
	PriceAtDate  decimal.Decimal `json:"priceAtDate"`
	CostAtDate   decimal.Decimal `json:"costAtDate"`
	Version      int64           `json:"version"`
}

func (r Record) View() View {
	return View{
		ProductID:    r.ProductID,
		ProductName:  r.ProductName,
		NumberRemain: r.NumberRemain,
		DailyLimit:   r.DailyLimit,
		PriceAtDate:  r.PriceAtDate,
		CostAtDate:   r.CostAtDate,
		Version:      r.Version,
	}
}

// History adds the derived profit figures.
type History struct {
	ProductID     int64           `json:"productId"`
	ProductName   string          `json:"productName"`
	Date          string          `json:"date"`
	DailyLimit    int             `json:"dailyLimit"`
	NumberRemain  int             `json:"numberRemain"`
	SoldQuantity  int             `json:"soldQuantity"`
	PriceAtDate   decimal.Decimal `json:"priceAtDate"`
	CostAtDate    decimal.Decimal `json:"costAtDate"`
	ProfitPerUnit decimal.Decimal `json:"profitPerUnit"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
}

func (r Record) History() History {
	return History{
		ProductID:     r.ProductID,
		ProductName:   r.ProductName,
		Date:          r.Date.Format("2006-01-02"),
		DailyLimit:    r.DailyLimit,
		NumberRemain:  r.NumberRemain,
		SoldQuantity:  r.SoldQuantity(),
		PriceAtDate:   r.PriceAtDate,
		CostAtDate:    r.CostAtDate,
		ProfitPerUnit: r.ProfitPerUnit(),
		TotalRevenue:  r.TotalRevenue(),
		TotalCost:     r.TotalCost(),
		TotalProfit:   r.TotalProfit(),
	}
}

// Update is the inventory-update push payload. Version lets a client that
// loaded a snapshot ignore updates it already reflects.
type Update struct {
	ProductID    int64     `json:"productId"`
	NumberRemain int       `json:"numberRemain"`
	DailyLimit   int       `json:"dailyLimit"`
	Version      int64     `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (r Record) Update(at time.Time) Update {
	return Update{
		ProductID:    r.ProductID,
		NumberRemain: r.NumberRemain,
		DailyLimit:   r.DailyLimit,
		Version:      r.Version,
		Timestamp:    at,
	}
}
