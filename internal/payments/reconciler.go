// Package payments reconciles bank transfer notifications with orders.
package payments

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"strconv"
	"strings"
	"time"
)

type Ledger interface {
	Exists(ctx context.Context, txnID int64) (bool, error)
	Insert(ctx context.Context, rec *Record) (bool, error)
	Settle(ctx context.Context, rec *Record) (time.Time, error)
}

type OrderReader interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
}

// Dedup is the in-flight marker shared by replicas.
type Dedup interface {
	Claim(ctx context.Context, id string) (bool, error)
	Done(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// StatusAnnouncer broadcasts a status change that has been written.
type StatusAnnouncer interface {
	Announce(ctx context.Context, o orders.Order, prev orders.Status)
}

// Reconciler applies SePay notifications exactly once per provider
// transaction. Every delivery that is not a duplicate leaves one Record.
type Reconciler struct {
	Payments  Ledger
	Orders    OrderReader
	Extractor OrderIDExtractor
	Dedup     Dedup
	Events    events.Publisher
	Status    StatusAnnouncer
	Tolerance decimal.Decimal
	Location  *time.Location
	Log       logrus.FieldLogger
	Clock     func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Reconciler) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

// Process handles one delivery. Business failures are recorded and reported
// in Outcome; the returned error is reserved for malformed input and
// infrastructure faults, after which the delivery may be retried.
func (r *Reconciler) Process(ctx context.Context, w Webhook) (Outcome, error) {
	if w.ID <= 0 {
		return Outcome{}, fmt.Errorf("%w: missing transaction id", ErrMalformedWebhook)
	}
	txn := strconv.FormatInt(w.ID, 10)
	log := r.log().WithField("txn_id", w.ID)

	held := false
	if r.Dedup != nil {
		claimed, err := r.Dedup.Claim(ctx, txn)
		switch {
		case err != nil:
			log.WithError(err).Warn("dedup claim failed, relying on database")
		case !claimed:
			log.Info("duplicate webhook dropped")
			return Outcome{TxnID: w.ID, Duplicate: true}, nil
		default:
			held = true
		}
	}

	out, err := r.process(ctx, log, w)

	if held {
		bg := context.WithoutCancel(ctx)
		if err != nil {
			_ = r.Dedup.Release(bg, txn)
		} else if derr := r.Dedup.Done(bg, txn); derr != nil {
			log.WithError(derr).Warn("dedup mark failed")
		}
	}
	return out, err
}

func (r *Reconciler) process(ctx context.Context, log logrus.FieldLogger, w Webhook) (Outcome, error) {
	exists, err := r.Payments.Exists(ctx, w.ID)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		log.Info("duplicate webhook dropped")
		return Outcome{TxnID: w.ID, Duplicate: true}, nil
	}

	rec := r.recordFrom(w)

	if !strings.EqualFold(strings.TrimSpace(w.TransferType), "in") {
		return r.reject(ctx, log, &rec, StatusFailed, ErrNotInbound)
	}
	if !w.TransferAmount.IsPositive() {
		return r.reject(ctx, log, &rec, StatusFailed, ErrInvalidAmount)
	}

	orderID, ok := r.extractor().Extract(w)
	if !ok {
		return r.reject(ctx, log, &rec, StatusFailed, ErrIdentifierUnresolved)
	}
	log = log.WithField("order_id", orderID)

	o, err := r.Orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		out, err := r.reject(ctx, log, &rec, StatusFailed, fmt.Errorf("order %d: %w", orderID, orders.ErrOrderNotFound))
		if err == nil && !out.Duplicate {
			r.notifyFailed(ctx, orderID, "ORDER_NOT_FOUND", "Order not found")
		}
		out.OrderID = orderID
		return out, err
	}
	if err != nil {
		return Outcome{}, err
	}

	rec.OrderID = o.ID
	if o.Status != orders.StatusServed {
		cause := fmt.Errorf("%w: order must be SERVED before payment, current status %s", orders.ErrInvalidOrderState, o.Status)
		return r.rejectWithEvent(ctx, log, &rec, StatusFailed, cause, "ORDER_NOT_SERVED", "Order has not been served yet")
	}

	due := o.AmountDue()
	if w.TransferAmount.Sub(due).Abs().GreaterThan(r.Tolerance) {
		cause := fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, due.String(), w.TransferAmount.String())
		return r.rejectWithEvent(ctx, log, &rec, StatusAmountMismatch, cause, "AMOUNT_MISMATCH", "Transfer amount does not match the order")
	}

	paidAt, err := r.Payments.Settle(ctx, &rec)
	switch {
	case errors.Is(err, ErrDuplicateWebhook):
		log.Info("duplicate webhook dropped")
		return Outcome{TxnID: w.ID, OrderID: o.ID, Duplicate: true}, nil
	case errors.Is(err, orders.ErrInvalidOrderState):
		return r.rejectWithEvent(ctx, log, &rec, StatusFailed, err, "ORDER_NOT_SERVED", "Order status changed before payment")
	case err != nil:
		return Outcome{}, err
	}

	log.WithField("amount", rec.TransferAmount.String()).Info("payment settled")

	amount := rec.TransferAmount
	r.publish(ctx, Event{
		OrderID:         o.ID,
		PaymentID:       rec.ID,
		Status:          StatusSuccess,
		Amount:          &amount,
		Message:         "Payment successful",
		Gateway:         rec.Gateway,
		TransactionDate: rec.TransactionDate.In(r.loc()).Format(TransactionDateLayout),
	})
	if r.Status != nil {
		prev := o.Status
		o.Status = orders.StatusPaid
		o.UpdatedAt = paidAt
		r.Status.Announce(ctx, o, prev)
	}
	return Outcome{TxnID: w.ID, OrderID: o.ID, RecordID: rec.ID, Status: StatusSuccess}, nil
}

// reject records a failed delivery.
func (r *Reconciler) reject(ctx context.Context, log logrus.FieldLogger, rec *Record, status Status, cause error) (Outcome, error) {
	rec.Status = status
	rec.ErrorMessage = cause.Error()
	inserted, err := r.Payments.Insert(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	if !inserted {
		log.Info("duplicate webhook dropped")
		return Outcome{TxnID: rec.ProviderTxnID, OrderID: rec.OrderID, Duplicate: true}, nil
	}
	log.WithFields(logrus.Fields{"status": status, "reason": cause.Error()}).Warn("payment rejected")
	return Outcome{TxnID: rec.ProviderTxnID, OrderID: rec.OrderID, RecordID: rec.ID, Status: status, Cause: cause}, nil
}

func (r *Reconciler) rejectWithEvent(ctx context.Context, log logrus.FieldLogger, rec *Record, status Status, cause error, reason, message string) (Outcome, error) {
	out, err := r.reject(ctx, log, rec, status, cause)
	if err != nil || out.Duplicate {
		return out, err
	}
	r.notifyFailed(ctx, rec.OrderID, reason, message)
	return out, nil
}

func (r *Reconciler) notifyFailed(ctx context.Context, orderID int64, reason, message string) {
	r.publish(ctx, Event{OrderID: orderID, Status: StatusFailed, Reason: reason, Message: message})
}

func (r *Reconciler) publish(ctx context.Context, ev Event) {
	if r.Events == nil {
		return
	}
	r.Events.Publish(ctx, events.Event{
		Stream:   events.StreamPayments,
		Key:      strconv.FormatInt(ev.OrderID, 10),
		Name:     events.NamePaymentStatus,
		Payload:  ev,
		Terminal: true,
	})
}

func (r *Reconciler) extractor() OrderIDExtractor {
	if r.Extractor == nil {
		return PatternExtractor{}
	}
	return r.Extractor
}

func (r *Reconciler) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r *Reconciler) recordFrom(w Webhook) Record {
	txAt, err := time.ParseInLocation(TransactionDateLayout, strings.TrimSpace(w.TransactionDate), r.loc())
	if err != nil {
		txAt = r.now()
	}
	return Record{
		ProviderTxnID:   w.ID,
		Gateway:         w.Gateway,
		TransactionDate: txAt,
		AccountNumber:   w.AccountNumber,
		Code:            w.Code,
		Content:         w.Content,
		TransferType:    w.TransferType,
		TransferAmount:  w.TransferAmount,
		ReferenceCode:   w.ReferenceCode,
		Description:     w.Description,
	}
}
