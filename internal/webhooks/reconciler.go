// Package webhooks reconciles asynchronous gateway events with payouts and
// bookings. It races the synchronous initiation path and converges with it
// on the payout row through compare-and-set writes.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

var tracer = otel.Tracer("github.com/bookwell/backend/internal/webhooks")

// PurposeVerificationFee marks a charge as a provider's one-time fee.
const PurposeVerificationFee = "verification_fee"

type PayoutStore interface {
	GetByReference(ctx context.Context, ref string) (*models.Payout, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, ref string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, ref, reason string) (bool, error)
}

type BookingMachine interface {
	SystemApply(ctx context.Context, id uuid.UUID, action lifecycle.Action, payload map[string]any) (*models.Booking, error)
	MarkPaid(ctx context.Context, id uuid.UUID, tx *gateway.Transaction) (*bookings.Result, error)
}

type AccountStore interface {
	MarkVerificationFeePaid(ctx context.Context, id uuid.UUID) error
}

type SettingsReader interface {
	Get(ctx context.Context) (models.AdminSettings, error)
}

type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*gateway.Transaction, error)
	VerifyTransfer(ctx context.Context, reference, providerReference string) (*gateway.TransferStatus, error)
}

type Reconciler struct {
	Payouts  PayoutStore
	Bookings BookingMachine
	Accounts AccountStore
	Settings SettingsReader
	Gateway  Verifier
	Logger   *slog.Logger
}

func NewReconciler(p PayoutStore, b BookingMachine, a AccountStore, st SettingsReader, gw Verifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Payouts: p, Bookings: b, Accounts: a, Settings: st, Gateway: gw, Logger: logger}
}

// lookup returns nil for a reference we never issued.
func (r *Reconciler) lookup(ctx context.Context, ref string) (*models.Payout, error) {
	p, err := r.Payouts.GetByReference(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		r.Logger.InfoContext(ctx, "webhook for unknown transfer reference", "reference", ref)
		return nil, nil
	}
	return p, err
}

// TransferSucceeded marks the payout SUCCESS and the booking PAID_OUT. It
// is safe to call any number of times and before or after the initiating
// request has recorded the gateway's acceptance.
func (r *Reconciler) TransferSucceeded(ctx context.Context, ref string) error {
	ctx, span := tracer.Start(ctx, "webhooks.TransferSucceeded",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("payout.reference", ref)))
	defer span.End()

	p, err := r.lookup(ctx, ref)
	if err != nil || p == nil {
		return err
	}
	changed, err := r.Payouts.MarkSucceeded(ctx, p.ID, p.TransferReference)
	if err != nil {
		return fmt.Errorf("mark payout succeeded: %w", err)
	}
	if !changed && p.Status != models.PayoutSuccess {
		// A newer attempt owns the row.
		r.Logger.InfoContext(ctx, "stale transfer success ignored", "payout_id", p.ID, "reference", ref)
		return nil
	}
	if _, err := r.Bookings.SystemApply(ctx, p.BookingID, lifecycle.ActionPayoutSucceeded, map[string]any{"amount": p.Amount}); err != nil {
		return fmt.Errorf("advance booking: %w", err)
	}
	r.Logger.InfoContext(ctx, "payout succeeded", "payout_id", p.ID, "booking_id", p.BookingID, "reference", ref)
	return nil
}

// TransferFailed marks an in-flight payout FAILED and reopens the booking
// for a retry. A payout that already succeeded is left alone.
func (r *Reconciler) TransferFailed(ctx context.Context, ref, reason string) error {
	ctx, span := tracer.Start(ctx, "webhooks.TransferFailed",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("payout.reference", ref)))
	defer span.End()

	p, err := r.lookup(ctx, ref)
	if err != nil || p == nil {
		return err
	}
	if reason == "" {
		reason = "transfer failed"
	}
	changed, err := r.Payouts.MarkFailed(ctx, p.ID, p.TransferReference, reason)
	if err != nil {
		return fmt.Errorf("mark payout failed: %w", err)
	}
	if !changed {
		r.Logger.InfoContext(ctx, "transfer failure ignored, payout not in flight", "payout_id", p.ID, "reference", ref)
		return nil
	}
	msg := gateway.UserMessage(reason)
	if _, err := r.Bookings.SystemApply(ctx, p.BookingID, lifecycle.ActionPayoutFailed, map[string]any{"message": msg}); err != nil {
		return fmt.Errorf("reopen booking: %w", err)
	}
	r.Logger.WarnContext(ctx, "payout failed", "payout_id", p.ID, "booking_id", p.BookingID, "reference", ref, "reason", reason)
	return nil
}

// ChargeSucceeded re-verifies a charge with the gateway and applies it to
// its booking or to the payer's verification fee. Charges that cannot be
// matched are logged and acknowledged.
func (r *Reconciler) ChargeSucceeded(ctx context.Context, reference string) error {
	ctx, span := tracer.Start(ctx, "webhooks.ChargeSucceeded",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("charge.reference", reference)))
	defer span.End()

	tx, err := r.Gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return fmt.Errorf("verify charge: %w", err)
	}
	if !tx.Success {
		r.Logger.WarnContext(ctx, "charge event not confirmed by gateway", "reference", reference)
		return nil
	}

	if tx.Metadata["purpose"] == PurposeVerificationFee {
		return r.verificationFee(ctx, reference, tx)
	}

	id, err := uuid.Parse(tx.Metadata["booking_id"])
	if err != nil {
		r.Logger.InfoContext(ctx, "charge without booking metadata", "reference", reference)
		return nil
	}
	_, err = r.Bookings.MarkPaid(ctx, id, tx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bookings.ErrNotFound),
		errors.Is(err, bookings.ErrPaymentMismatch),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, bookings.ErrStale):
		r.Logger.WarnContext(ctx, "charge not applied", "booking_id", id, "reference", reference, "error", err)
		return nil
	}
	return err
}

func (r *Reconciler) verificationFee(ctx context.Context, reference string, tx *gateway.Transaction) error {
	id, err := uuid.Parse(tx.Metadata["account_id"])
	if err != nil {
		r.Logger.WarnContext(ctx, "verification fee without account metadata", "reference", reference)
		return nil
	}
	st, err := r.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if tx.Amount < st.VerificationFee {
		r.Logger.WarnContext(ctx, "verification fee underpaid", "account_id", id, "amount", tx.Amount, "required", st.VerificationFee)
		return nil
	}
	if err := r.Accounts.MarkVerificationFeePaid(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.Logger.WarnContext(ctx, "verification fee for unknown account", "account_id", id)
			return nil
		}
		return err
	}
	r.Logger.InfoContext(ctx, "verification fee paid", "account_id", id, "reference", reference)
	return nil
}

// Verify asks the gateway for the outcome of a booking's in-flight payout
// and reconciles it exactly like the matching webhook would. For a payout
// that already settled either way it re-applies the booking transition.
func (r *Reconciler) Verify(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error) {
	p, err := r.Payouts.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case models.PayoutFailed:
		// Reopens a booking left in PAYOUT_INITIATED by a failure that beat
		// the initiating request. Any other status makes this a no-op.
		if _, err := r.Bookings.SystemApply(ctx, bookingID, lifecycle.ActionPayoutFailed, map[string]any{"message": gateway.UserMessage(p.FailureReason)}); err != nil {
			return nil, fmt.Errorf("reopen booking: %w", err)
		}
		return p, nil
	case models.PayoutSuccess:
		if _, err := r.Bookings.SystemApply(ctx, bookingID, lifecycle.ActionPayoutSucceeded, map[string]any{"amount": p.Amount}); err != nil {
			return nil, fmt.Errorf("advance booking: %w", err)
		}
		return p, nil
	}
	st, err := r.Gateway.VerifyTransfer(ctx, p.TransferReference, p.ProviderReference)
	if err != nil {
		return nil, fmt.Errorf("verify transfer: %w", err)
	}
	switch st.Status {
	case gateway.TransferSuccess:
		err = r.TransferSucceeded(ctx, p.TransferReference)
	case gateway.TransferFailed, gateway.TransferReversed:
		reason := st.Reason
		if reason == "" {
			reason = "transfer " + st.Status
		}
		err = r.TransferFailed(ctx, p.TransferReference, reason)
	}
	if err != nil {
		return nil, err
	}
	return r.Payouts.GetByBookingID(ctx, bookingID)
}
