package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/ariefcatur/foodstore-orders/internal/promotion"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"net/http"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

type insufficientDetails struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Remaining   int    `json:"remaining"`
	Requested   int    `json:"requested"`
}

// errorStatus maps domain errors to a status and a stable code. First match wins.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{errBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{inventory.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{inventory.ErrInvalidLimit, http.StatusBadRequest, "INVALID_LIMIT"},
	{inventory.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{inventory.ErrInventoryNotFound, http.StatusNotFound, "INVENTORY_NOT_FOUND"},
	{inventory.ErrInsufficientInventory, http.StatusConflict, "INSUFFICIENT_INVENTORY"},
	{inventory.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{menu.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{orders.ErrProductUnavailable, http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE"},
	{orders.ErrEmptyOrder, http.StatusBadRequest, "EMPTY_ORDER"},
	{orders.ErrMissingIdentity, http.StatusBadRequest, "MISSING_IDENTITY"},
	{orders.ErrInvalidTable, http.StatusBadRequest, "INVALID_TABLE"},
	{orders.ErrInvalidSession, http.StatusBadRequest, "INVALID_SESSION"},
	{promotion.ErrPromotionInvalid, http.StatusUnprocessableEntity, "PROMOTION_INVALID"},
	{orders.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{orders.ErrInvalidOrderState, http.StatusConflict, "INVALID_ORDER_STATE"},
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.err) {
			continue
		}
		body := errorResponse{Error: err.Error(), Code: e.code}
		var ins *inventory.InsufficientError
		if errors.As(err, &ins) {
			body.Details = insufficientDetails{ProductID: ins.ProductID, ProductName: ins.ProductName, Remaining: ins.Remaining, Requested: ins.Requested}
		}
		var pe *promotion.Error
		if errors.As(err, &pe) {
			body.Reason = string(pe.Reason)
		}
		writeJSON(w, e.status, body)
		return
	}
	log.WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}
