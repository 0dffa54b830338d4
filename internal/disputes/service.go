// Package disputes opens and resolves booking disputes. Every booking status
// change is delegated to the booking state machine, so a RELEASE settles the
// payout exactly like a client confirmation.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

var (
	ErrDisputeExists   = errors.New("a dispute has already been raised for this booking")
	ErrNotFound        = errors.New("dispute not found")
	ErrAlreadyResolved = errors.New("dispute is already resolved")
	ErrReasonRequired  = errors.New("a reason is required")
	ErrBadResolution   = errors.New("resolution must be REFUND or RELEASE")
)

type Store interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution models.DisputeResolution, by uuid.UUID, at time.Time) error
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
	// Delete removes an OPEN dispute whose booking never entered DISPUTED.
	Delete(ctx context.Context, id uuid.UUID) error
}

// BookingMachine is the part of the booking service disputes drive.
type BookingMachine interface {
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	ApplyWithMessage(ctx context.Context, actor models.Actor, id uuid.UUID, action lifecycle.Action, payload map[string]any) (*bookings.Result, error)
}

type Service struct {
	Store    Store
	Bookings BookingMachine
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewService(store Store, machine BookingMachine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Bookings: machine, Logger: logger, Now: time.Now}
}

// Raise records the dispute and freezes the booking in DISPUTED. The OPEN
// row is written first so a booking never sits in DISPUTED without a
// dispute an admin can resolve. Only one dispute may exist per booking.
func (s *Service) Raise(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	d := &models.Dispute{
		ID:        uuid.New(),
		BookingID: bookingID,
		RaisedBy:  actor.ID,
		Reason:    reason,
		Status:    models.DisputeOpen,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Store.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDisputeExists
		}
		return nil, fmt.Errorf("create dispute: %w", err)
	}

	if _, err := s.Bookings.ApplyWithMessage(ctx, actor, bookingID, lifecycle.ActionDispute, map[string]any{"reason": reason}); err != nil {
		if derr := s.Store.Delete(ctx, d.ID); derr != nil {
			s.Logger.ErrorContext(ctx, "withdrawing dispute after rejected raise", "dispute_id", d.ID, "booking_id", bookingID, "error", derr)
		}
		return nil, err
	}
	s.Logger.InfoContext(ctx, "dispute raised", "dispute_id", d.ID, "booking_id", bookingID, "by", actor.ID)
	return d, nil
}

// Resolve closes an open dispute. REFUND moves the booking to REFUNDED;
// RELEASE moves it to COMPLETED_CONFIRMED and runs settlement.
func (s *Service) Resolve(ctx context.Context, admin models.Actor, disputeID uuid.UUID, resolution models.DisputeResolution) (*models.Dispute, *bookings.Result, error) {
	action, target, err := resolutionAction(resolution)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.Store.GetByID(ctx, disputeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.DisputeOpen {
		return nil, nil, ErrAlreadyResolved
	}

	res, err := s.Bookings.ApplyWithMessage(ctx, admin, d.BookingID, action, map[string]any{"dispute_id": d.ID})
	if err != nil {
		// A previous attempt may have moved the booking and then failed to
		// record the resolution.
		if !errors.Is(err, lifecycle.ErrInvalidTransition) {
			return nil, nil, err
		}
		b, gerr := s.Bookings.Get(ctx, admin, d.BookingID)
		if gerr != nil || b.Status != target {
			return nil, nil, err
		}
		res = &bookings.Result{Booking: b}
	}

	now := s.Now().UTC()
	if err := s.Store.Resolve(ctx, d.ID, resolution, admin.ID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, ErrAlreadyResolved
		}
		return nil, nil, fmt.Errorf("resolve dispute: %w", err)
	}
	d.Status = models.DisputeResolved
	d.Resolution = &resolution
	d.ResolvedBy = &admin.ID
	d.ResolvedAt = &now
	s.Logger.InfoContext(ctx, "dispute resolved", "dispute_id", d.ID, "booking_id", d.BookingID, "resolution", resolution)
	return d, res, nil
}

func (s *Service) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	return s.Store.ListOpen(ctx)
}

func resolutionAction(r models.DisputeResolution) (lifecycle.Action, models.BookingStatus, error) {
	switch r {
	case models.ResolutionRefund:
		return lifecycle.ActionRefund, models.BookingRefunded, nil
	case models.ResolutionRelease:
		return lifecycle.ActionRelease, models.BookingCompletedConfirmed, nil
	}
	return "", "", ErrBadResolution
}
