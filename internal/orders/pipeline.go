package orders

import (
	"context"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/promotion"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"strconv"
	"strings"
	"time"
)

type Reserver interface {
	Reserve(ctx context.Context, productID int64, date time.Time, quantity int) (inventory.Record, error)
	Release(ctx context.Context, productID int64, date time.Time, quantity int) (inventory.Record, error)
}

type ProductLookup interface {
	Get(ctx context.Context, id int64) (menu.Product, error)
}

type SessionLookup interface {
	Get(ctx context.Context, id string) (Session, error)
}

// Store is the order persistence the pipeline and status service need.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) (time.Time, bool, error)
	GetOrderStatus(ctx context.Context, id int64) (StatusView, error)
	MarkRated(ctx context.Context, id int64) (bool, error)
}

type ItemRequest struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
}

type CreateRequest struct {
	UserID        string        `json:"userId,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Name          string        `json:"name,omitempty"`
	SessionID     string        `json:"sessionId,omitempty"`
	TableNumber   *int          `json:"tableNumber,omitempty"`
	PromotionCode string        `json:"promotionCode,omitempty"`
	Items         []ItemRequest `json:"items"`
}

// Pipeline creates orders. Reservations across line items are all or
// nothing: when a later step fails, every reservation already taken is
// released again, newest first, and a claimed promotion use is reverted.
// Between the reserve and the release other readers can observe the lower
// count, and a crash inside that window leaves the reservation in place.
type Pipeline struct {
	Ledger     Reserver
	Products   ProductLookup
	Sessions   SessionLookup
	Promotions promotion.Applier
	Orders     Store
	Events     events.Publisher
	Log        logrus.FieldLogger
	Clock      func() time.Time
	Location   *time.Location
}

func (p *Pipeline) now() time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	if p.Clock != nil {
		return p.Clock().In(loc)
	}
	return time.Now().In(loc)
}

type reservation struct {
	productID int64
	quantity  int
	record    inventory.Record
}

func (p *Pipeline) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, inventory.ErrInvalidQuantity)
		}
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.UserID == "" && req.Phone == "" && req.Name == "" && req.SessionID == "" {
		return nil, ErrMissingIdentity
	}

	now := p.now()
	o := &Order{
		UserID:       req.UserID,
		Phone:        req.Phone,
		CustomerName: req.Name,
		SessionID:    req.SessionID,
		OrderTime:    now,
		Status:       StatusPending,
	}
	if req.TableNumber != nil {
		o.TableNumber = *req.TableNumber
	}
	if req.SessionID != "" {
		s, err := p.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if !s.Active {
			return nil, ErrInvalidSession
		}
		o.TableNumber = s.TableNumber
	}
	if o.TableNumber < 0 {
		return nil, fmt.Errorf("table number %d: %w", o.TableNumber, ErrInvalidTable)
	}

	// Resolve every product before touching inventory so an unknown or
	// retired product never needs compensation.
	products := make(map[int64]menu.Product, len(req.Items))
	var need []int64
	qty := make(map[int64]int, len(req.Items))
	for _, it := range req.Items {
		if _, ok := products[it.ProductID]; !ok {
			prod, err := p.Products.Get(ctx, it.ProductID)
			if err != nil {
				return nil, err
			}
			if !prod.Active {
				return nil, fmt.Errorf("%s: %w", prod.Name, ErrProductUnavailable)
			}
			products[it.ProductID] = prod
			need = append(need, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}

	day := inventory.Day(now)
	var held []reservation
	rollback := func(cause error) {
		p.release(ctx, day, held)
		p.log().WithFields(logrus.Fields{"released": len(held), "cause": cause}).Warn("order creation rolled back")
	}
	for _, pid := range need {
		rec, err := p.Ledger.Reserve(ctx, pid, day, qty[pid])
		if err != nil {
			rollback(err)
			return nil, err
		}
		held = append(held, reservation{productID: pid, quantity: qty[pid], record: rec})
	}

	lines := make([]promotion.Line, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		prod := products[it.ProductID]
		item := Item{
			ProductID:       prod.ID,
			ProductName:     prod.Name,
			PriceAtPurchase: prod.Price,
			Quantity:        it.Quantity,
			Note:            strings.TrimSpace(it.Note),
		}
		o.Items = append(o.Items, item)
		total = total.Add(item.Subtotal())
		lines = append(lines, promotion.Line{ProductID: prod.ID, CategoryID: prod.CategoryID, Price: prod.Price, Quantity: it.Quantity})
	}
	o.TotalAmount = total
	o.DiscountAmount = decimal.Zero

	code := promotion.Normalize(req.PromotionCode)
	if code != "" {
		if p.Promotions == nil {
			rollback(promotion.ErrPromotionInvalid)
			return nil, &promotion.Error{Reason: promotion.ReasonNotFound, Code: code, Message: "promotions are not available"}
		}
		discount, err := p.Promotions.Apply(ctx, code, total, lines)
		if err != nil {
			rollback(err)
			return nil, err
		}
		o.PromotionCode = code
		o.DiscountAmount = discount
	}
	o.FinalAmount = total.Sub(o.DiscountAmount)

	if err := p.Orders.Create(ctx, o); err != nil {
		if code != "" {
			if rerr := p.Promotions.Revert(context.WithoutCancel(ctx), code); rerr != nil {
				p.log().WithError(rerr).WithField("code", code).Error("promotion revert failed")
			}
		}
		rollback(err)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	p.log().WithFields(logrus.Fields{
		"order_id": o.ID,
		"table":    o.TableNumber,
		"items":    len(o.Items),
		"final":    o.FinalAmount.String(),
	}).Info("order created")

	p.announce(ctx, o, held)
	return o, nil
}

// release hands reservations back in reverse order. It ignores ctx
// cancellation so an abandoned request still returns its stock.
func (p *Pipeline) release(ctx context.Context, day time.Time, held []reservation) {
	ctx = context.WithoutCancel(ctx)
	for i := len(held) - 1; i >= 0; i-- {
		r := held[i]
		rec, err := p.Ledger.Release(ctx, r.productID, day, r.quantity)
		if err != nil {
			p.log().WithError(err).WithFields(logrus.Fields{
				"product_id": r.productID,
				"quantity":   r.quantity,
			}).Error("inventory release failed")
			continue
		}
		p.publishInventory(ctx, rec)
	}
}

func (p *Pipeline) announce(ctx context.Context, o *Order, held []reservation) {
	if p.Events == nil {
		return
	}
	p.Events.Publish(ctx, events.Event{
		Stream:  events.StreamOrders,
		Name:    events.NameOrderCreated,
		Payload: o.View(),
	})
	for _, r := range held {
		p.publishInventory(ctx, r.record)
	}
}

func (p *Pipeline) publishInventory(ctx context.Context, rec inventory.Record) {
	if p.Events == nil {
		return
	}
	p.Events.Publish(ctx, events.Event{
		Stream:  events.StreamInventory,
		Name:    events.NameInventoryUpdate,
		Payload: rec.Update(p.now()),
	})
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// ParseOrderID accepts the decimal ids used in paths and query strings.
func ParseOrderID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q: %w", s, ErrOrderNotFound)
	}
	return id, nil
}
