package httpx

import (
	"context"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type InventoryLedger interface {
	Snapshot(ctx context.Context, date time.Time) ([]inventory.Record, error)
	SoldOut(ctx context.Context, date time.Time) ([]inventory.Record, error)
	History(ctx context.Context, from, to time.Time, productID int64) ([]inventory.Record, error)
	UpdateDailyLimit(ctx context.Context, productID int64, date time.Time, newLimit int) (inventory.Record, error)
}

type DailyJob interface {
	CreateForDate(ctx context.Context, date time.Time) (inventory.CreateResult, error)
}

type InventoryHandler struct {
	Ledger   InventoryLedger
	Job      DailyJob
	Events   events.Publisher
	Location *time.Location
	Log      logrus.FieldLogger
	Now      func() time.Time
}

type UpdateLimitReq struct {
	DailyLimit *int   `json:"dailyLimit"`
	Date       string `json:"date,omitempty"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/api/inventory/today", h.getToday)
	r.Get("/api/inventory/sold-out", h.soldOut)
	r.Get("/api/inventory/history", h.history)
	r.Put("/api/inventory/{productId}/limit", h.updateLimit)
	r.Post("/api/inventory/create", h.create)
}

func (h *InventoryHandler) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *InventoryHandler) currentDay() time.Time {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return inventory.Day(now.In(h.loc()))
}

// parseDate reads a yyyy-mm-dd value, defaulting to today when empty.
func (h *InventoryHandler) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return h.currentDay(), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, h.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be yyyy-mm-dd", errBadRequest, s)
	}
	return inventory.Day(t), nil
}

func views(recs []inventory.Record) []inventory.View {
	out := make([]inventory.View, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.View())
	}
	return out
}

func (h *InventoryHandler) getToday(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Ledger.Snapshot(r.Context(), h.currentDay())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, views(recs))
}

func (h *InventoryHandler) soldOut(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Ledger.SoldOut(r.Context(), h.currentDay())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, views(recs))
}

func (h *InventoryHandler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, r, h.Log, fmt.Errorf("%w: from and to are required", errBadRequest))
		return
	}
	from, err := h.parseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	to, err := h.parseDate(q.Get("to"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var productID int64
	if s := q.Get("productId"); s != "" {
		productID, err = strconv.ParseInt(s, 10, 64)
		if err != nil || productID <= 0 {
			writeError(w, r, h.Log, fmt.Errorf("%w: invalid productId %q", errBadRequest, s))
			return
		}
	}

	recs, err := h.Ledger.History(r.Context(), from, to, productID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out := make([]inventory.History, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.History())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) updateLimit(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		writeError(w, r, h.Log, fmt.Errorf("%w: invalid product id", errBadRequest))
		return
	}
	var req UpdateLimitReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.DailyLimit == nil {
		writeError(w, r, h.Log, fmt.Errorf("%w: dailyLimit is required", errBadRequest))
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	rec, err := h.Ledger.UpdateDailyLimit(r.Context(), productID, date, *req.DailyLimit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Events != nil && date.Equal(h.currentDay()) {
		h.Events.Publish(r.Context(), events.Event{
			Stream:  events.StreamInventory,
			Name:    events.NameInventoryUpdate,
			Payload: rec.Update(time.Now().UTC()),
		})
	}
	writeJSON(w, http.StatusOK, rec.View())
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) {
	date, err := h.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Job.CreateForDate(r.Context(), date)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
