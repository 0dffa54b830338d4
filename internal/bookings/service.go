// Package bookings is the booking state machine. Every status change goes
// through Service, which checks the transition table, role and guards,
// writes the change with a compare-and-set and drives settlement when a
// booking enters COMPLETED_CONFIRMED.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/notify"
	"github.com/bookwell/backend/internal/payouts"
	"github.com/bookwell/backend/internal/repository"
)

// Store is the booking persistence contract. UpdateStatus is a
// compare-and-set on the current status and returns repository.ErrConflict
// on a miss.
type Store interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, b *models.Booking, from models.BookingStatus) error
	MarkReviewed(ctx context.Context, id uuid.UUID, role models.Role) error
	ExistsBetween(ctx context.Context, clientID, providerID uuid.UUID, statuses []models.BookingStatus) (bool, error)
	CountByProvider(ctx context.Context, providerID uuid.UUID, statuses []models.BookingStatus, exclude uuid.UUID) (int, error)
	CountByClient(ctx context.Context, clientID uuid.UUID, statuses []models.BookingStatus) (int, error)
	ListByParty(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error)
}

type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type RecipientLookup interface {
	GetByProviderID(ctx context.Context, providerID uuid.UUID) (*models.TransferRecipient, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (models.AdminSettings, error)
}

type PayoutLookup interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payout, error)
}

type Settler interface {
	Settle(ctx context.Context, b *models.Booking, st models.AdminSettings) payouts.Outcome
}

type PaymentVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*gateway.Transaction, error)
}

// completedStatuses count as a finished booking for the repeat-client
// identity check.
var completedStatuses = []models.BookingStatus{
	models.BookingCompletedConfirmed,
	models.BookingPayoutInitiated,
	models.BookingPaidOut,
}

var reviewableStatuses = completedStatuses

// paidStatuses are every status a booking can reach after payment.
var paidStatuses = []models.BookingStatus{
	models.BookingPaid,
	models.BookingInProgress,
	models.BookingCompleted,
	models.BookingCompletedConfirmed,
	models.BookingPayoutInitiated,
	models.BookingPaidOut,
	models.BookingDisputed,
	models.BookingRefunded,
}

// Result is returned by every transition. Settlement outcome fields are
// flattened into the JSON when settlement ran.
type Result struct {
	Booking *models.Booking `json:"booking"`
	*payouts.Outcome
}

type Deps struct {
	Bookings   Store
	Accounts   AccountStore
	Recipients RecipientLookup
	Settings   SettingsReader
	Settler    Settler
	Payouts    PayoutLookup
	Payments   PaymentVerifier
	Notifier   notify.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

type CreateRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Amount     int64     `json:"amount"`
	Notes      string    `json:"notes"`
}

// Create opens a booking in CREATED for the calling client. The current
// platform commission rate is snapshotted onto the booking.
func (s *Service) Create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.Booking, error) {
	if actor.Role != models.RoleClient {
		return nil, ErrForbidden
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.ProviderID == actor.ID {
		return nil, ErrSelfBooking
	}
	provider, err := s.Accounts.GetByID(ctx, req.ProviderID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && provider.Role != models.RoleProvider) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, err
	}
	client, err := s.Accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	dup, err := s.Bookings.ExistsBetween(ctx, actor.ID, req.ProviderID, models.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateBooking
	}
	if !client.IdentityVerified {
		n, err := s.Bookings.CountByClient(ctx, actor.ID, completedStatuses)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, ErrIdentityRequired
		}
	}

	st, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	b := &models.Booking{
		ID:             uuid.New(),
		ClientID:       actor.ID,
		ProviderID:     req.ProviderID,
		Status:         models.BookingCreated,
		Amount:         req.Amount,
		CommissionRate: decimal.NewNullDecimal(st.CommissionRate),
		Notes:          req.Notes,
	}
	if err := s.Bookings.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateBooking
		}
		return nil, err
	}
	notify.Parties(ctx, s.Notifier, b, "booking.created", map[string]any{"amount": b.Amount})
	return b, nil
}

// Get returns a booking visible to actor.
func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !b.IsParty(actor.ID) {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	return s.Bookings.ListByParty(ctx, actor.ID)
}

// Apply performs action on the booking as actor.
func (s *Service) Apply(ctx context.Context, actor models.Actor, id uuid.UUID, action lifecycle.Action) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, b, action, nil)
}

// ApplyWithMessage is Apply with an extra notification payload.
func (s *Service) ApplyWithMessage(ctx context.Context, actor models.Actor, id uuid.UUID, action lifecycle.Action, payload map[string]any) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, b, action, payload)
}

func (s *Service) apply(ctx context.Context, actor models.Actor, b *models.Booking, action lifecycle.Action, payload map[string]any) (*Result, error) {
	t, err := lifecycle.Lookup(b.Status, action)
	if err != nil {
		return nil, err
	}
	if err := authorize(t, actor, b); err != nil {
		return nil, err
	}

	// One settings snapshot for the guards and the settlement below.
	st, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for _, g := range t.Guards {
		if err := s.check(ctx, g, b, st); err != nil {
			return nil, err
		}
	}

	now := s.Now().UTC()
	next := *b
	next.Status = t.To
	switch t.To {
	case models.BookingInProgress:
		next.StartedAt = &now
	case models.BookingCompleted, models.BookingCompletedConfirmed:
		if next.CompletedAt == nil {
			next.CompletedAt = &now
		}
	}
	if err := s.Bookings.UpdateStatus(ctx, &next, b.Status); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.conflict(ctx, b)
		}
		return nil, err
	}
	s.Logger.InfoContext(ctx, "booking transition", "booking_id", next.ID, "action", action, "from", b.Status, "to", next.Status, "actor", actor.Role)
	notify.Parties(ctx, s.Notifier, &next, "booking."+string(action), payload)

	res := &Result{Booking: &next}
	// A failed transfer reopens the booking for the next retry rather than
	// retrying inline.
	if next.Status == models.BookingCompletedConfirmed && action != lifecycle.ActionPayoutFailed {
		out := s.settle(ctx, &next, st)
		res.Outcome = &out
	}
	return res, nil
}

// conflict explains a missed compare-and-set. A booking still in its old
// status was blocked by the one-engagement-per-provider constraint.
func (s *Service) conflict(ctx context.Context, b *models.Booking) error {
	cur, err := s.Bookings.GetByID(ctx, b.ID)
	if err == nil && cur.Status == b.Status {
		return ErrProviderBusy
	}
	return ErrStale
}

func authorize(t lifecycle.Transition, actor models.Actor, b *models.Booking) error {
	if !t.Allows(actor.Role) {
		return ErrForbidden
	}
	switch actor.Role {
	case models.RoleClient:
		if actor.ID != b.ClientID {
			return ErrForbidden
		}
	case models.RoleProvider:
		if actor.ID != b.ProviderID {
			return ErrForbidden
		}
	}
	return nil
}

func (s *Service) check(ctx context.Context, g lifecycle.Guard, b *models.Booking, st models.AdminSettings) error {
	switch g {
	case lifecycle.GuardProviderEligible:
		acct, err := s.Accounts.GetByID(ctx, b.ProviderID)
		if err != nil {
			return fmt.Errorf("load provider: %w", err)
		}
		if !acct.VerificationFeePaid {
			return ErrProviderNotVerified
		}
		if _, err := s.Recipients.GetByProviderID(ctx, b.ProviderID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNoRecipient
			}
			return err
		}
		n, err := s.Bookings.CountByProvider(ctx, b.ProviderID, models.EngagedStatuses, b.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrProviderBusy
		}
	case lifecycle.GuardDisputeWindow:
		since := b.UpdatedAt
		if b.CompletedAt != nil {
			since = *b.CompletedAt
		}
		if s.Now().Sub(since) > st.DisputeWindow() {
			return ErrDisputeWindowClosed
		}
	}
	return nil
}

// settle runs settlement for a booking that just entered
// COMPLETED_CONFIRMED and advances it to PAYOUT_INITIATED when the gateway
// accepted the transfer.
func (s *Service) settle(ctx context.Context, b *models.Booking, st models.AdminSettings) payouts.Outcome {
	out := s.Settler.Settle(ctx, b, st)
	switch {
	case out.Initiated:
		s.advance(ctx, b, lifecycle.ActionInitiatePayout, map[string]any{"amount": out.Payout.Amount})
		// A failure webhook that lands between the gateway's acceptance and
		// the advance above finds nothing to reopen.
		if p := s.failedPayout(ctx, b); p != nil {
			s.reopen(ctx, b, p)
			out.Initiated = false
			out.Payout = p
			out.PayoutError = gateway.UserMessage(p.FailureReason)
		}
	case out.PayoutError != "":
		s.Notifier.Notify(ctx, b.ProviderID, "payout.failed", map[string]any{"booking_id": b.ID, "message": out.PayoutError})
	case out.PayoutDelayed:
		s.Notifier.Notify(ctx, b.ProviderID, "payout.delayed", map[string]any{"booking_id": b.ID, "cooldown_remaining_seconds": out.CooldownSeconds})
	case out.AlreadyHandled:
		// A concurrent writer, usually the transfer webhook, may have moved
		// the booking on.
		if cur, err := s.Bookings.GetByID(ctx, b.ID); err == nil {
			*b = *cur
		}
	}
	return out
}

// advance applies a system transition to b in place. A booking that has
// already moved on, for example because a webhook got there first, is
// reloaded instead.
func (s *Service) advance(ctx context.Context, b *models.Booking, action lifecycle.Action, payload map[string]any) {
	res, err := s.apply(ctx, models.SystemActor, b, action, payload)
	if err == nil {
		*b = *res.Booking
		return
	}
	if !errors.Is(err, ErrStale) && !errors.Is(err, lifecycle.ErrInvalidTransition) {
		s.Logger.ErrorContext(ctx, "system transition failed", "booking_id", b.ID, "action", action, "error", err)
		return
	}
	if cur, err := s.Bookings.GetByID(ctx, b.ID); err == nil {
		*b = *cur
	}
}

// failedPayout returns the booking's payout when b is PAYOUT_INITIATED but
// the payout has already failed.
func (s *Service) failedPayout(ctx context.Context, b *models.Booking) *models.Payout {
	if s.Payouts == nil || b.Status != models.BookingPayoutInitiated {
		return nil
	}
	p, err := s.Payouts.GetByBookingID(ctx, b.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Logger.ErrorContext(ctx, "payout lookup failed", "booking_id", b.ID, "error", err)
		}
		return nil
	}
	if p.Status != models.PayoutFailed {
		return nil
	}
	return p
}

// reopen moves a PAYOUT_INITIATED booking with a failed payout back to
// COMPLETED_CONFIRMED.
func (s *Service) reopen(ctx context.Context, b *models.Booking, p *models.Payout) {
	s.Logger.WarnContext(ctx, "reopening booking with failed payout", "booking_id", b.ID, "payout_id", p.ID, "reason", p.FailureReason)
	s.advance(ctx, b, lifecycle.ActionPayoutFailed, map[string]any{"message": gateway.UserMessage(p.FailureReason)})
}

// SystemApply drives a system transition for the webhook reconciler. An
// action that no longer applies to the booking's status is not an error.
func (s *Service) SystemApply(ctx context.Context, id uuid.UUID, action lifecycle.Action, payload map[string]any) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, b, action, payload)
	return b, nil
}

// RetryPayout reruns settlement for a confirmed booking whose payout is
// missing or failed. A PAYOUT_INITIATED booking whose payout failed is
// reopened first.
func (s *Service) RetryPayout(ctx context.Context, id uuid.UUID) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p := s.failedPayout(ctx, b); p != nil {
		s.reopen(ctx, b, p)
	}
	if b.Status != models.BookingCompletedConfirmed {
		return nil, fmt.Errorf("%w: booking is %s", ErrNotSettleable, b.Status)
	}
	st, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := s.settle(ctx, b, st)
	return &Result{Booking: b, Outcome: &out}, nil
}

// ConfirmPayment verifies the client's payment reference with the gateway
// and marks the booking PAID.
func (s *Service) ConfirmPayment(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != b.ClientID {
		return nil, ErrForbidden
	}
	if models.ContainsStatus(paidStatuses, b.Status) {
		return &Result{Booking: b}, nil
	}
	tx, err := s.Payments.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentNotVerified, err)
	}
	return s.MarkPaid(ctx, id, tx)
}

// MarkPaid applies a verified charge to its booking. It is idempotent.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, tx *gateway.Transaction) (*Result, error) {
	if !tx.Success {
		return nil, ErrPaymentNotVerified
	}
	if tx.Metadata["booking_id"] != id.String() {
		return nil, ErrPaymentMismatch
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Amount < b.Amount {
		return nil, ErrPaymentMismatch
	}
	if models.ContainsStatus(paidStatuses, b.Status) {
		return &Result{Booking: b}, nil
	}
	return s.apply(ctx, models.SystemActor, b, lifecycle.ActionPay, map[string]any{"amount": tx.Amount})
}

// Review records that the actor's side reviewed a finished booking.
func (s *Service) Review(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	b, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsParty(actor.ID) {
		return ErrForbidden
	}
	if !models.ContainsStatus(reviewableStatuses, b.Status) {
		return ErrNotReviewable
	}
	role := models.RoleClient
	if actor.ID == b.ProviderID {
		role = models.RoleProvider
	}
	return s.Bookings.MarkReviewed(ctx, id, role)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return b, err
}
