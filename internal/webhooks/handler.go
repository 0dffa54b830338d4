package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// EventDecoder fetches a trusted copy of a gateway event by id.
type EventDecoder interface {
	DecodeEvent(ctx context.Context, eventID string) (key string, data json.RawMessage, err error)
}

type Handler struct {
	Reconciler *Reconciler
	Validator  *EventValidator
	Omise      EventDecoder
	Logger     *slog.Logger
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference    string  `json:"reference"`
		TransferCode string  `json:"transfer_code"`
		Reason       *string `json:"reason"`
		Status       string  `json:"status"`
	} `json:"data"`
}

// Paystack handles POST /webhooks/paystack. The signature has already been
// checked by middleware.RequireSignature. Unknown events and references
// are acknowledged with 200; only store failures return 500 so the gateway
// retries.
func (h *Handler) Paystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(body); err != nil {
		h.Logger.Warn("rejected webhook payload", "error", err)
		http.Error(w, `{"error":"invalid event"}`, http.StatusBadRequest)
		return
	}
	var ev paystackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, `{"error":"invalid event"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch ev.Event {
	case "transfer.success":
		err = h.Reconciler.TransferSucceeded(ctx, ev.Data.Reference)
	case "transfer.failed", "transfer.reversed":
		reason := ev.Event
		if ev.Data.Reason != nil && *ev.Data.Reason != "" {
			reason = *ev.Data.Reason
		}
		err = h.Reconciler.TransferFailed(ctx, ev.Data.Reference, reason)
	case "charge.success":
		err = h.Reconciler.ChargeSucceeded(ctx, ev.Data.Reference)
	default:
		h.Logger.Info("ignored webhook event", "event", ev.Event)
	}
	h.ack(w, ev.Event, err)
}

type omiseEnvelope struct {
	ID string `json:"id"`
}

type omiseObject struct {
	ID             string  `json:"id"`
	Paid           bool    `json:"paid"`
	FailureCode    *string `json:"failure_code"`
	FailureMessage *string `json:"failure_message"`
}

// OmiseEvent handles POST /webhooks/omise. Omise does not sign payloads, so
// only the event id is read from the body and the event itself is fetched
// back from the API.
func (h *Handler) OmiseEvent(w http.ResponseWriter, r *http.Request) {
	if h.Omise == nil {
		http.NotFound(w, r)
		return
	}
	var env omiseEnvelope
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&env); err != nil || env.ID == "" {
		http.Error(w, `{"error":"invalid event"}`, http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	key, data, err := h.Omise.DecodeEvent(ctx, env.ID)
	if err != nil {
		h.Logger.Warn("omise event lookup failed", "event_id", env.ID, "error", err)
		http.Error(w, `{"error":"unknown event"}`, http.StatusUnauthorized)
		return
	}
	var obj omiseObject
	if err := json.Unmarshal(data, &obj); err != nil {
		h.Logger.Warn("omise event data", "event_id", env.ID, "error", err)
		h.ack(w, key, nil)
		return
	}

	switch key {
	case "transfer.pay":
		if obj.Paid {
			err = h.Reconciler.TransferSucceeded(ctx, obj.ID)
		}
	case "transfer.fail":
		reason := "transfer failed"
		if obj.FailureMessage != nil && *obj.FailureMessage != "" {
			reason = *obj.FailureMessage
		} else if obj.FailureCode != nil && *obj.FailureCode != "" {
			reason = *obj.FailureCode
		}
		err = h.Reconciler.TransferFailed(ctx, obj.ID, reason)
	case "charge.complete":
		err = h.Reconciler.ChargeSucceeded(ctx, obj.ID)
	default:
		h.Logger.Info("ignored webhook event", "event", key)
	}
	h.ack(w, key, err)
}

func (h *Handler) ack(w http.ResponseWriter, event string, err error) {
	if err != nil {
		h.Logger.Error("webhook reconciliation failed", "event", event, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
