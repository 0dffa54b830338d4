package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/models"
)

type recorder struct {
	mu    sync.Mutex
	calls []Message
}

func (r *recorder) Notify(_ context.Context, userID uuid.UUID, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Message{UserID: userID, Event: event, Payload: payload})
}

func TestParties(t *testing.T) {
	b := &models.Booking{ID: uuid.New(), ClientID: uuid.New(), ProviderID: uuid.New(), Status: models.BookingPaidOut}
	rec := &recorder{}
	Parties(context.Background(), rec, b, "booking.payout_succeeded", nil)
	if len(rec.calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.calls))
	}
	if rec.calls[0].UserID != b.ClientID || rec.calls[1].UserID != b.ProviderID {
		t.Error("client then provider should be notified")
	}
	if rec.calls[0].Payload["booking_id"] != b.ID || rec.calls[0].Payload["status"] != models.BookingPaidOut {
		t.Errorf("payload: %v", rec.calls[0].Payload)
	}
}

func TestLogNotifier_NilLogger(t *testing.T) {
	LogNotifier{}.Notify(context.Background(), uuid.New(), "booking.accept", map[string]any{"k": "v"})
	Nop{}.Notify(context.Background(), uuid.New(), "x", nil)
}
