package httpx

import (
	"context"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, req orders.CreateRequest) (*orders.Order, error)
}

type OrderReader interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
	List(ctx context.Context, f orders.Filter) ([]orders.Order, error)
}

type StatusChanger interface {
	Transition(ctx context.Context, id int64, to orders.Status) (orders.Order, error)
	CurrentStatus(ctx context.Context, id int64) (orders.StatusView, error)
	MarkRated(ctx context.Context, id int64) (orders.Order, error)
}

type SessionManager interface {
	Open(ctx context.Context, table int) (orders.Session, error)
	Get(ctx context.Context, id string) (orders.Session, error)
	Deactivate(ctx context.Context, id string) error
}

type OrdersHandler struct {
	Pipeline OrderCreator
	Orders   OrderReader
	Status   StatusChanger
	Sessions SessionManager
	Log      logrus.FieldLogger
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type OpenSessionReq struct {
	TableNumber int `json:"tableNumber"`
}

type SessionResp struct {
	SessionID   string    `json:"sessionId"`
	TableNumber int       `json:"tableNumber"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

func sessionResp(s orders.Session) SessionResp {
	return SessionResp{SessionID: s.ID, TableNumber: s.TableNumber, Active: s.Active, CreatedAt: s.CreatedAt}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/orders", h.createOrder)
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Get("/api/orders/{id}/status", h.getStatus)
	r.Put("/api/orders/{id}/status", h.updateStatus)
	r.Put("/api/orders/{id}/rated", h.markRated)

	r.Post("/api/sessions", h.openSession)
	r.Get("/api/sessions/{id}", h.getSession)
	r.Delete("/api/sessions/{id}", h.closeSession)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Pipeline.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o.View())
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f orders.Filter
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			writeError(w, r, h.Log, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		f.Status = st
	}
	if s := q.Get("table"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, h.Log, fmt.Errorf("%w: table must be a non-negative integer", errBadRequest))
			return
		}
		f.TableNumber = &n
	}
	f.UserID = strings.TrimSpace(q.Get("userId"))
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, h.Log, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		f.Limit = n
	}

	list, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out := make([]orders.View, 0, len(list))
	for _, o := range list {
		out = append(out, o.View())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	v, err := h.Status.CurrentStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, h.Log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	o, err := h.Status.Transition(r.Context(), id, to)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) markRated(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Status.MarkRated(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) openSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.TableNumber <= 0 {
		writeError(w, r, h.Log, fmt.Errorf("table %d: %w", req.TableNumber, orders.ErrInvalidTable))
		return
	}
	s, err := h.Sessions.Open(r.Context(), req.TableNumber)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResp(s))
}

func (h *OrdersHandler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResp(s))
}

func (h *OrdersHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
