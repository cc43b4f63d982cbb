package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/sirupsen/logrus"
	"time"
)

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (string, bool, error)
	// Set stores body unless a status changed after at is already cached.
	Set(ctx context.Context, orderID int64, at time.Time, body []byte) (bool, error)
	Invalidate(ctx context.Context, orderID int64) error
}

// StatusService applies staff status changes and keeps the status cache and
// the order stream in step with them.
type StatusService struct {
	Orders Store
	Events events.Publisher
	Cache  StatusCache
	Log    logrus.FieldLogger
	Clock  func() time.Time
}

func (s *StatusService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *StatusService) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Transition moves an order to a new status on behalf of staff. The write is
// conditioned on the status read here, so a concurrent change (including a
// payment landing) makes this call fail instead of overwriting it.
func (s *StatusService) Transition(ctx context.Context, id int64, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOrderState, to)
	}
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to, ActorStaff) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidOrderState, o.Status, to)
	}
	updated, ok, err := s.Orders.UpdateStatus(ctx, id, o.Status, to)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d changed concurrently", ErrInvalidOrderState, id)
	}
	prev := o.Status
	o.Status = to
	o.UpdatedAt = updated
	s.Announce(ctx, o, prev)
	return o, nil
}

// MarkRated records that the customer rated a paid order. It is the only
// change a PAID order accepts, and only once.
func (s *StatusService) MarkRated(ctx context.Context, id int64) (Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPaid {
		return Order{}, fmt.Errorf("%w: only paid orders can be rated, current status %s", ErrInvalidOrderState, o.Status)
	}
	if o.IsRated {
		return Order{}, fmt.Errorf("%w: order %d is already rated", ErrInvalidOrderState, id)
	}
	ok, err := s.Orders.MarkRated(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d changed concurrently", ErrInvalidOrderState, id)
	}
	o.IsRated = true
	s.log().WithField("order_id", id).Info("order rated")
	return o, nil
}

// Announce refreshes the cache and broadcasts order-status-changed for a
// status change that has already been written.
func (s *StatusService) Announce(ctx context.Context, o Order, prev Status) {
	changedAt := o.UpdatedAt
	if changedAt.IsZero() {
		changedAt = s.now()
	}
	s.cache(ctx, StatusView{OrderID: o.ID, Status: o.Status, UpdatedAt: changedAt})

	s.log().WithFields(logrus.Fields{
		"order_id": o.ID,
		"from":     prev,
		"to":       o.Status,
	}).Info("order status changed")

	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, events.Event{
		Stream: events.StreamOrders,
		Name:   events.NameOrderStatusChanged,
		Payload: StatusChanged{
			OrderID:        o.ID,
			PreviousStatus: prev,
			Status:         o.Status,
			TableNumber:    o.TableNumber,
			ChangedAt:      changedAt,
		},
	})
}

// CurrentStatus reads through the cache. Cache errors fall back to the
// database.
func (s *StatusService) CurrentStatus(ctx context.Context, id int64) (StatusView, error) {
	if s.Cache != nil {
		if raw, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
			var v StatusView
			if err := json.Unmarshal([]byte(raw), &v); err == nil && v.Status.Valid() {
				return v, nil
			}
		}
	}
	v, err := s.Orders.GetOrderStatus(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	s.cache(ctx, v)
	return v, nil
}

func (s *StatusService) cache(ctx context.Context, v StatusView) {
	if s.Cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	stored, err := s.Cache.Set(ctx, v.OrderID, v.UpdatedAt, b)
	if err != nil {
		s.log().WithError(err).WithField("order_id", v.OrderID).Warn("status cache write failed")
		return
	}
	if !stored {
		s.log().WithField("order_id", v.OrderID).Debug("newer status already cached")
	}
}
