package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/foodstore-orders/internal/payments"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"net/http"
)

type WebhookProcessor interface {
	Process(ctx context.Context, w payments.Webhook) (payments.Outcome, error)
}

type WebhookQueue interface {
	Enqueue(ctx context.Context, w payments.Webhook) error
}

// PaymentsHandler receives gateway notifications. The gateway always gets a
// 200 unless the body is malformed; failures are recorded, not surfaced.
type PaymentsHandler struct {
	Reconciler WebhookProcessor
	// Queue, when set, hands webhooks to background workers. If enqueueing
	// fails the webhook is processed inline.
	Queue WebhookQueue
	Log   logrus.FieldLogger
}

type WebhookResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/api/payment/webhook/sepay", h.sepay)
}

func (h *PaymentsHandler) sepay(w http.ResponseWriter, r *http.Request) {
	var hook payments.Webhook
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&hook); err != nil {
		h.Log.WithError(err).Warn("malformed webhook body")
		writeJSON(w, http.StatusBadRequest, WebhookResp{Message: "invalid payload"})
		return
	}
	if hook.ID <= 0 {
		writeJSON(w, http.StatusBadRequest, WebhookResp{Message: "missing transaction id"})
		return
	}
	log := h.Log.WithField("txn_id", hook.ID)

	if h.Queue != nil {
		err := h.Queue.Enqueue(r.Context(), hook)
		if err == nil {
			writeJSON(w, http.StatusOK, WebhookResp{Success: true, Message: "Webhook queued"})
			return
		}
		log.WithError(err).Warn("enqueue failed, processing inline")
	}

	out, err := h.Reconciler.Process(r.Context(), hook)
	switch {
	case errors.Is(err, payments.ErrMalformedWebhook):
		writeJSON(w, http.StatusBadRequest, WebhookResp{Message: err.Error()})
	case err != nil:
		log.WithError(err).Error("webhook processing failed")
		writeJSON(w, http.StatusOK, WebhookResp{Message: "Webhook received, processing failed"})
	case out.Duplicate:
		writeJSON(w, http.StatusOK, WebhookResp{Success: true, Message: "Webhook already processed"})
	case out.Status == payments.StatusSuccess:
		writeJSON(w, http.StatusOK, WebhookResp{Success: true, Message: "Payment processed successfully"})
	default:
		writeJSON(w, http.StatusOK, WebhookResp{Success: true, Message: "Webhook recorded: " + out.Cause.Error()})
	}
}
