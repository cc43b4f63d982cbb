package httpx

import (
	"context"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/ariefcatur/foodstore-orders/internal/payments"
	"github.com/ariefcatur/foodstore-orders/internal/sse"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type InventorySnapshot interface {
	Snapshot(ctx context.Context, date time.Time) ([]inventory.Record, error)
}

// StreamsHandler serves the push streams. Subscriptions are registered before
// any snapshot is read, so an update racing the snapshot is queued behind it.
type StreamsHandler struct {
	Hub          *sse.Hub
	Inventory    InventorySnapshot
	Location     *time.Location
	WriteTimeout time.Duration
	Log          logrus.FieldLogger
}

type connectedPayload struct {
	SubscriberID string    `json:"subscriberId"`
	ClientID     string    `json:"clientId,omitempty"`
	OrderID      int64     `json:"orderId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *StreamsHandler) Register(r chi.Router) {
	r.Get("/api/orders/stream", h.orderStream)
	r.Get("/api/inventory/stream", h.inventoryStream)
	r.Get("/api/payment/events/{orderId}", h.paymentStream)
	r.Get("/api/payment/events/{orderId}/status", h.paymentStatus)
	r.Get("/api/streams/status", h.status)
}

func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("clientId")); id != "" {
		return id
	}
	return uuid.NewString()
}

func (h *StreamsHandler) connected(sub *sse.Subscriber, p connectedPayload) sse.Message {
	p.SubscriberID = sub.ID()
	p.Timestamp = time.Now().UTC()
	m, _ := sse.NewMessage(events.NameConnected, p)
	return m
}

func (h *StreamsHandler) serve(w http.ResponseWriter, r *http.Request, b *sse.Broker, sub *sse.Subscriber, initial ...sse.Message) {
	if err := sse.Serve(w, r, b, sub, h.WriteTimeout, initial...); err != nil {
		h.Log.WithError(err).WithFields(logrus.Fields{"stream": b.Name(), "subscriber": sub.ID()}).Debug("stream write failed")
	}
}

func (h *StreamsHandler) orderStream(w http.ResponseWriter, r *http.Request) {
	id := clientID(r)
	sub := h.Hub.Orders.Subscribe(id)
	h.serve(w, r, h.Hub.Orders, sub, h.connected(sub, connectedPayload{ClientID: id}))
}

func (h *StreamsHandler) inventoryStream(w http.ResponseWriter, r *http.Request) {
	id := clientID(r)
	b := h.Hub.Inventory
	sub := b.Subscribe(id)

	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	recs, err := h.Inventory.Snapshot(r.Context(), inventory.Day(time.Now().In(loc)))
	if err != nil {
		b.Unsubscribe(sub)
		writeError(w, r, h.Log, err)
		return
	}
	snapshot, err := sse.NewMessage(events.NameInventoryInit, views(recs))
	if err != nil {
		b.Unsubscribe(sub)
		writeError(w, r, h.Log, err)
		return
	}
	h.serve(w, r, b, sub, h.connected(sub, connectedPayload{ClientID: id}), snapshot)
}

func (h *StreamsHandler) paymentStream(w http.ResponseWriter, r *http.Request) {
	orderID, err := orders.ParseOrderID(chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	sub := h.Hub.Payments.Subscribe(strconv.FormatInt(orderID, 10))
	h.serve(w, r, h.Hub.Payments, sub, h.connected(sub, connectedPayload{OrderID: orderID}))
}

func (h *StreamsHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := orders.ParseOrderID(chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, payments.WaitStatus{
		OrderID:   orderID,
		Listening: h.Hub.Payments.HasSubscriber(strconv.FormatInt(orderID, 10)),
	})
}

func (h *StreamsHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Hub.Stats())
}
