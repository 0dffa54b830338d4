// Package notify delivers booking events to users. Delivery is best effort:
// a Notifier never returns an error to the state machine.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any)
}

// Message is the wire shape published for every notification.
type Message struct {
	UserID     uuid.UUID      `json:"user_id"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Parties notifies the client and the provider of b.
func Parties(ctx context.Context, n Notifier, b *models.Booking, event string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["booking_id"] = b.ID
	payload["status"] = b.Status
	n.Notify(ctx, b.ClientID, event, payload)
	n.Notify(ctx, b.ProviderID, event, payload)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notify", "user_id", userID, "event", event, "payload", payload)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, string, map[string]any) {}
