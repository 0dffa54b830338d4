// Package payouts settles confirmed bookings: it guards recipient cooldowns,
// claims the booking's payout row and initiates the gateway transfer.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/ledger"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

// NoRecipientMessage is reported when the provider never bound a payout account.
const NoRecipientMessage = "No transfer recipient setup"

var tracer = otel.Tracer("github.com/bookwell/backend/internal/payouts")

// PayoutStore is the payout persistence contract. Status writes are
// compare-and-set so concurrent writers converge without locks.
type PayoutStore interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error)
	GetByReference(ctx context.Context, ref string) (*models.Payout, error)
	Claim(ctx context.Context, p *models.Payout) (bool, error)
	RecordFailure(ctx context.Context, p *models.Payout) error
	MarkAccepted(ctx context.Context, id uuid.UUID, providerRef string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, ref, reason string) (bool, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, ref string) (bool, error)
}

type RecipientStore interface {
	GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, error)
	Upsert(ctx context.Context, r *models.TransferRecipient) error
}

// Outcome reports what settlement did. It is data on a successful booking
// transition, never an error of it.
type Outcome struct {
	Payout          *models.Payout `json:"payout,omitempty"`
	Initiated       bool           `json:"payout_initiated,omitempty"`
	PayoutError     string         `json:"payout_error,omitempty"`
	PayoutDelayed   bool           `json:"payout_delayed,omitempty"`
	CooldownSeconds int64          `json:"cooldown_remaining_seconds,omitempty"`
	PayoutPaused    bool           `json:"payout_paused,omitempty"`
	AlreadyHandled  bool           `json:"already_handled,omitempty"`
}

func (o Outcome) CooldownRemaining() time.Duration {
	return time.Duration(o.CooldownSeconds) * time.Second
}

type Settler struct {
	Payouts    PayoutStore
	Recipients RecipientStore
	Gateway    gateway.Gateway
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewSettler(p PayoutStore, r RecipientStore, gw gateway.Gateway, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{Payouts: p, Recipients: r, Gateway: gw, Logger: logger, Now: time.Now}
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Settle runs the settlement sequence for a COMPLETED_CONFIRMED booking
// against one settings snapshot. It never panics or returns an error: every
// failure ends up as a FAILED payout and a PayoutError. When Initiated is
// true the caller moves the booking to PAYOUT_INITIATED.
func (s *Settler) Settle(ctx context.Context, b *models.Booking, st models.AdminSettings) (out Outcome) {
	ctx, span := tracer.Start(ctx, "payouts.Settle")
	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	defer span.End()

	log := s.Logger.With("booking_id", b.ID, "provider_id", b.ProviderID)
	var claimed *models.Payout
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			log.ErrorContext(ctx, "settlement panicked", "error", msg)
			span.SetStatus(codes.Error, msg)
			out = s.failAttempt(ctx, b, claimed, msg)
		}
	}()

	if st.PayoutsPaused {
		return Outcome{PayoutPaused: true}
	}

	rcpt, err := s.Recipients.GetByProviderID(ctx, b.ProviderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.ErrorContext(ctx, "recipient lookup failed", "error", err)
		return s.failAttempt(ctx, b, nil, err.Error())
	}
	if rem := CooldownRemaining(rcpt, s.now()); rem > 0 {
		return Outcome{PayoutDelayed: true, CooldownSeconds: int64(rem.Round(time.Second) / time.Second)}
	}

	existing, err := s.Payouts.GetByBookingID(ctx, b.ID)
	switch {
	case err == nil && existing.InFlightOrDone():
		return Outcome{Payout: existing, AlreadyHandled: true}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		log.ErrorContext(ctx, "payout lookup failed", "error", err)
		return s.failAttempt(ctx, b, nil, err.Error())
	}

	if rcpt == nil {
		ref := fmt.Sprintf("failed_no_recipient_%s_%d", b.ID, s.now().UnixMilli())
		s.recordFailure(ctx, &models.Payout{
			ID:                uuid.New(),
			BookingID:         b.ID,
			ProviderID:        b.ProviderID,
			TransferReference: ref,
			FailureReason:     NoRecipientMessage,
		})
		return Outcome{PayoutError: NoRecipientMessage}
	}

	split, err := ledger.Settle(b.Amount, ledger.RateFor(b.CommissionRate, st.CommissionRate))
	if err != nil {
		return s.failAttempt(ctx, b, nil, err.Error())
	}

	p := &models.Payout{
		ID:                uuid.New(),
		BookingID:         b.ID,
		ProviderID:        b.ProviderID,
		Amount:            split.Payout,
		Fee:               split.Fee,
		TransferReference: fmt.Sprintf("payout_%s_%d", b.ID, s.now().UnixMilli()),
	}
	ok, err := s.Payouts.Claim(ctx, p)
	if err != nil {
		log.ErrorContext(ctx, "payout claim failed", "error", err)
		return s.failAttempt(ctx, b, nil, err.Error())
	}
	if !ok {
		cur, _ := s.Payouts.GetByBookingID(ctx, b.ID)
		return Outcome{Payout: cur, AlreadyHandled: true}
	}
	claimed = p
	span.SetAttributes(attribute.String("payout.reference", p.TransferReference))

	// The transfer may be in flight once the gateway is called, so the rest
	// of the attempt must not be cut short by the caller going away.
	ctx = context.WithoutCancel(ctx)
	res, err := s.Gateway.InitiateTransfer(ctx, gateway.TransferRequest{
		RecipientCode: rcpt.RecipientCode,
		Amount:        split.Payout,
		Reference:     p.TransferReference,
		Reason:        "Booking payout " + b.ID.String(),
	})
	if err != nil {
		log.WarnContext(ctx, "transfer initiation failed", "reference", p.TransferReference, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return s.failAttempt(ctx, b, p, err.Error())
	}
	if !res.Accepted {
		log.WarnContext(ctx, "transfer rejected", "reference", p.TransferReference, "message", res.Message)
		return s.failAttempt(ctx, b, p, res.Message)
	}

	still, err := s.Payouts.MarkAccepted(ctx, p.ID, res.ProviderReference)
	if err != nil {
		// The transfer is accepted; the webhook will still find the row by
		// our reference.
		log.ErrorContext(ctx, "recording provider reference failed", "reference", p.TransferReference, "error", err)
		still = true
	}
	p.ProviderReference = res.ProviderReference
	if !still {
		cur, err := s.Payouts.GetByBookingID(ctx, b.ID)
		if err == nil {
			p = cur
		}
		out := Outcome{Payout: p, AlreadyHandled: true}
		if p.Status == models.PayoutFailed {
			out.PayoutError = gateway.UserMessage(p.FailureReason)
		}
		return out
	}
	log.InfoContext(ctx, "payout initiated", "reference", p.TransferReference, "amount", p.Amount, "fee", p.Fee)
	return Outcome{Payout: p, Initiated: true}
}

// failAttempt records reason on the claimed attempt, or on a synthetic
// failed row when nothing was claimed, and reports it.
func (s *Settler) failAttempt(ctx context.Context, b *models.Booking, claimed *models.Payout, reason string) Outcome {
	if claimed != nil {
		if _, err := s.Payouts.MarkFailed(ctx, claimed.ID, claimed.TransferReference, reason); err != nil {
			s.Logger.ErrorContext(ctx, "marking payout failed", "booking_id", b.ID, "reference", claimed.TransferReference, "error", err)
		}
		claimed.Status = models.PayoutFailed
		claimed.FailureReason = reason
		return Outcome{Payout: claimed, PayoutError: gateway.UserMessage(reason)}
	}
	s.recordFailure(ctx, &models.Payout{
		ID:                uuid.New(),
		BookingID:         b.ID,
		ProviderID:        b.ProviderID,
		TransferReference: fmt.Sprintf("failed_error_%s_%d", b.ID, s.now().UnixMilli()),
		FailureReason:     reason,
	})
	return Outcome{PayoutError: gateway.UserMessage(reason)}
}

func (s *Settler) recordFailure(ctx context.Context, p *models.Payout) {
	if err := s.Payouts.RecordFailure(ctx, p); err != nil {
		s.Logger.ErrorContext(ctx, "recording failed payout", "booking_id", p.BookingID, "error", err)
	}
}
