// Package scheduler runs the periodic auto-release sweep. It drives the
// same booking transitions and settlement path as user requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/payouts"
)

var tracer = otel.Tracer("github.com/bookwell/backend/internal/scheduler")

// AutoReleaseMessage is sent to both parties of an auto-released booking.
const AutoReleaseMessage = "Booking was automatically confirmed after the confirmation window expired."

type Store interface {
	ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time) ([]*models.Booking, error)
	ListAwaitingPayout(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
}

type Machine interface {
	ApplyWithMessage(ctx context.Context, actor models.Actor, id uuid.UUID, action lifecycle.Action, payload map[string]any) (*bookings.Result, error)
	RetryPayout(ctx context.Context, id uuid.UUID) (*bookings.Result, error)
}

// RecipientReader looks up a provider's payout destination.
type RecipientReader interface {
	GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (models.AdminSettings, error)
}

// Report summarises one sweep.
type Report struct {
	Released int
	Retried  int
	Skipped  int
	Failed   int
}

type Sweeper struct {
	Bookings     Store
	Machine      Machine
	Recipients   RecipientReader
	Settings     SettingsReader
	RetryBackoff time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewSweeper(store Store, machine Machine, recipients RecipientReader, settings SettingsReader, retryBackoff time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{Bookings: store, Machine: machine, Recipients: recipients, Settings: settings, RetryBackoff: retryBackoff, Logger: logger, Now: time.Now}
}

// Sweep auto-releases bookings left in COMPLETED past the timeout, then
// retries settlement for confirmed bookings whose payout is missing or
// failed. Bookings whose provider is inside a recipient cooldown are left
// alone until it ends; the provider was told when it started. One
// booking's failure never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "scheduler.Sweep")
	defer span.End()

	var rep Report
	st, err := s.Settings.Get(ctx)
	if err != nil {
		return rep, fmt.Errorf("load settings: %w", err)
	}
	now := s.Now()

	stale, err := s.Bookings.ListStale(ctx, models.BookingCompleted, now.Add(-st.AutoReleaseTimeout()))
	if err != nil {
		return rep, fmt.Errorf("list stale bookings: %w", err)
	}
	released := make(map[uuid.UUID]bool, len(stale))
	for _, b := range stale {
		res, err := s.Machine.ApplyWithMessage(ctx, models.SystemActor, b.ID, lifecycle.ActionAutoRelease, map[string]any{"message": AutoReleaseMessage})
		switch {
		case err == nil:
			rep.Released++
			released[b.ID] = true
			s.logOutcome(ctx, "booking auto-released", res)
		case errors.Is(err, bookings.ErrStale), errors.Is(err, lifecycle.ErrInvalidTransition):
			// Confirmed or disputed since the scan.
			rep.Skipped++
			s.Logger.InfoContext(ctx, "auto-release skipped", "booking_id", b.ID, "error", err)
		default:
			rep.Failed++
			s.Logger.ErrorContext(ctx, "auto-release failed", "booking_id", b.ID, "error", err)
		}
	}

	if !st.PayoutsPaused {
		awaiting, err := s.Bookings.ListAwaitingPayout(ctx, now.Add(-s.RetryBackoff))
		if err != nil {
			return rep, fmt.Errorf("list bookings awaiting payout: %w", err)
		}
		for _, b := range awaiting {
			if released[b.ID] {
				continue
			}
			if s.inCooldown(ctx, b, now) {
				rep.Skipped++
				continue
			}
			res, err := s.Machine.RetryPayout(ctx, b.ID)
			if err != nil {
				if errors.Is(err, bookings.ErrNotSettleable) {
					rep.Skipped++
					continue
				}
				rep.Failed++
				s.Logger.ErrorContext(ctx, "payout retry failed", "booking_id", b.ID, "error", err)
				continue
			}
			rep.Retried++
			s.logOutcome(ctx, "payout retried", res)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.released", rep.Released),
		attribute.Int("sweep.retried", rep.Retried),
		attribute.Int("sweep.failed", rep.Failed),
	)
	s.Logger.InfoContext(ctx, "auto-release sweep finished", "released", rep.Released, "retried", rep.Retried, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

func (s *Sweeper) inCooldown(ctx context.Context, b *models.Booking, now time.Time) bool {
	if s.Recipients == nil {
		return false
	}
	r, err := s.Recipients.GetByProviderID(ctx, b.ProviderID)
	if err != nil {
		return false
	}
	return payouts.CooldownRemaining(r, now) > 0
}

func (s *Sweeper) logOutcome(ctx context.Context, msg string, res *bookings.Result) {
	attrs := []any{"booking_id", res.Booking.ID, "status", res.Booking.Status}
	if o := res.Outcome; o != nil {
		attrs = append(attrs, "payout_initiated", o.Initiated, "payout_paused", o.PayoutPaused, "payout_delayed", o.PayoutDelayed)
		if o.PayoutError != "" {
			attrs = append(attrs, "payout_error", o.PayoutError)
		}
	}
	s.Logger.InfoContext(ctx, msg, attrs...)
}
