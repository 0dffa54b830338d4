package disputes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/gateway/gatewaytest"
	"github.com/bookwell/backend/internal/lifecycle"
	"github.com/bookwell/backend/internal/memstore"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/payouts"
)

type fixture struct {
	db       *memstore.DB
	gw       *gatewaytest.Fake
	svc      *Service
	now      time.Time
	client   models.Actor
	provider models.Actor
	admin    models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:       &gatewaytest.Fake{},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		client:   models.Actor{ID: uuid.New(), Role: models.RoleClient},
		provider: models.Actor{ID: uuid.New(), Role: models.RoleProvider},
		admin:    models.Actor{ID: uuid.New(), Role: models.RoleAdmin},
	}
	clock := func() time.Time { return f.now }
	f.db = memstore.New(clock)
	f.db.Accounts.Put(&models.Account{ID: f.client.ID, Role: models.RoleClient})
	f.db.Accounts.Put(&models.Account{ID: f.provider.ID, Role: models.RoleProvider, VerificationFeePaid: true})
	f.db.Recipients.Upsert(context.Background(), &models.TransferRecipient{ProviderID: f.provider.ID, RecipientCode: "RCP_1"})

	settler := payouts.NewSettler(f.db.Payouts, f.db.Recipients, f.gw, nil)
	settler.Now = clock
	machine := bookings.NewService(bookings.Deps{
		Bookings:   f.db.Bookings,
		Accounts:   f.db.Accounts,
		Recipients: f.db.Recipients,
		Settings:   f.db.Settings,
		Settler:    settler,
		Payouts:    f.db.Payouts,
		Payments:   f.gw,
		Now:        clock,
	})
	f.svc = NewService(f.db.Disputes, machine, nil)
	f.svc.Now = clock
	return f
}

func (f *fixture) seed(status models.BookingStatus) *models.Booking {
	b := &models.Booking{
		ID:             uuid.New(),
		ClientID:       f.client.ID,
		ProviderID:     f.provider.ID,
		Status:         status,
		Amount:         100000,
		CommissionRate: decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
		CreatedAt:      f.now,
		UpdatedAt:      f.now,
	}
	f.db.Bookings.Put(b)
	return b
}

func (f *fixture) status(t *testing.T, id uuid.UUID) models.BookingStatus {
	t.Helper()
	b, err := f.db.Bookings.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return b.Status
}

// ---------------------------------------------------------------------------
// Raise
// ---------------------------------------------------------------------------

func TestRaise_FreezesBooking(t *testing.T) {
	f := newFixture(t)
	b := f.seed(models.BookingInProgress)

	d, err := f.svc.Raise(context.Background(), f.provider, b.ID, "client did not show")
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if d.Status != models.DisputeOpen || d.RaisedBy != f.provider.ID {
		t.Errorf("dispute: %+v", d)
	}
	if got := f.status(t, b.ID); got != models.BookingDisputed {
		t.Errorf("booking status: got %s", got)
	}

	if _, err := f.svc.Raise(context.Background(), f.client, b.ID, "again"); !errors.Is(err, ErrDisputeExists) {
		t.Errorf("second dispute: got %v", err)
	}
}

func TestRaise_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.seed(models.BookingCreated)
	if _, err := f.svc.Raise(ctx, f.client, b.ID, "x"); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("dispute on CREATED: got %v", err)
	}

	b = f.seed(models.BookingInProgress)
	if _, err := f.svc.Raise(ctx, f.client, b.ID, "   "); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("empty reason: got %v", err)
	}
	stranger := models.Actor{ID: uuid.New(), Role: models.RoleClient}
	if _, err := f.svc.Raise(ctx, stranger, b.ID, "x"); !errors.Is(err, bookings.ErrForbidden) {
		t.Errorf("non-party: got %v", err)
	}
	if open, _ := f.svc.ListOpen(ctx); len(open) != 0 {
		t.Errorf("rejected raises must not create disputes, got %d", len(open))
	}
}

// failingCreate rejects inserts until down is cleared.
type failingCreate struct {
	*memstore.Disputes
	down bool
}

func (s *failingCreate) Create(ctx context.Context, d *models.Dispute) error {
	if s.down {
		return errors.New("db down")
	}
	return s.Disputes.Create(ctx, d)
}

func TestRaise_StoreFailureLeavesBookingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &failingCreate{Disputes: f.db.Disputes, down: true}
	f.svc.Store = store
	b := f.seed(models.BookingInProgress)

	if _, err := f.svc.Raise(ctx, f.client, b.ID, "no show"); err == nil {
		t.Fatal("expected the store error")
	}
	if got := f.status(t, b.ID); got != models.BookingInProgress {
		t.Fatalf("booking must not be frozen without a dispute, got %s", got)
	}

	store.down = false
	d, err := f.svc.Raise(ctx, f.client, b.ID, "no show")
	if err != nil {
		t.Fatalf("raise after recovery: %v", err)
	}
	open, _ := f.svc.ListOpen(ctx)
	if len(open) != 1 || open[0].ID != d.ID || f.status(t, b.ID) != models.BookingDisputed {
		t.Errorf("expected one open dispute on a DISPUTED booking, got %d / %s", len(open), f.status(t, b.ID))
	}
}

func TestRaise_RejectedTransitionWithdrawsDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(models.BookingCompleted)
	done := f.now.Add(-72 * time.Hour)
	b.CompletedAt = &done
	f.db.Bookings.Put(b)

	if _, err := f.svc.Raise(ctx, f.client, b.ID, "late"); !errors.Is(err, bookings.ErrDisputeWindowClosed) {
		t.Fatalf("expected the window to be closed, got %v", err)
	}
	if _, err := f.db.Disputes.GetByBookingID(ctx, b.ID); err == nil {
		t.Error("a rejected raise must not leave a dispute row behind")
	}
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve_Refund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(models.BookingPaid)
	d, err := f.svc.Raise(ctx, f.client, b.ID, "provider cancelled")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.svc.Resolve(ctx, f.client, d.ID, models.ResolutionRefund); !errors.Is(err, bookings.ErrForbidden) {
		t.Errorf("client resolving: got %v", err)
	}

	got, res, err := f.svc.Resolve(ctx, f.admin, d.ID, models.ResolutionRefund)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != models.DisputeResolved || *got.Resolution != models.ResolutionRefund || got.ResolvedAt == nil {
		t.Errorf("dispute: %+v", got)
	}
	if res.Booking.Status != models.BookingRefunded || res.Outcome != nil {
		t.Errorf("result: %+v", res)
	}
	if f.gw.Calls() != 0 {
		t.Error("refund must not disburse")
	}
	if _, _, err := f.svc.Resolve(ctx, f.admin, d.ID, models.ResolutionRelease); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second resolve: got %v", err)
	}
}

func TestResolve_ReleaseSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(models.BookingInProgress)
	d, err := f.svc.Raise(ctx, f.client, b.ID, "late")
	if err != nil {
		t.Fatal(err)
	}

	_, res, err := f.svc.Resolve(ctx, f.admin, d.ID, models.ResolutionRelease)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome == nil || !res.Outcome.Initiated {
		t.Fatalf("release should settle like a confirmation: %+v", res.Outcome)
	}
	if res.Booking.Status != models.BookingPayoutInitiated {
		t.Errorf("booking status: got %s", res.Booking.Status)
	}
	if f.gw.Last().Amount != 75000 {
		t.Errorf("payout amount: got %d, want 75000", f.gw.Last().Amount)
	}
}

func TestResolve_ReleaseHonoursPause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.db.Settings.Get(ctx)
	st.PayoutsPaused = true
	f.db.Settings.Update(ctx, &st)

	b := f.seed(models.BookingInProgress)
	d, _ := f.svc.Raise(ctx, f.client, b.ID, "late")
	_, res, err := f.svc.Resolve(ctx, f.admin, d.ID, models.ResolutionRelease)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome == nil || !res.Outcome.PayoutPaused {
		t.Errorf("expected paused outcome, got %+v", res.Outcome)
	}
	if res.Booking.Status != models.BookingCompletedConfirmed || f.db.Payouts.Count() != 0 {
		t.Error("paused release must leave the booking confirmed with no payout")
	}
}

func TestResolve_RecordsAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(models.BookingRefunded)
	d := &models.Dispute{ID: uuid.New(), BookingID: b.ID, RaisedBy: f.client.ID, Reason: "x", Status: models.DisputeOpen}
	if err := f.db.Disputes.Create(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, _, err := f.svc.Resolve(ctx, f.admin, d.ID, models.ResolutionRefund)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != models.DisputeResolved {
		t.Errorf("dispute should be recorded as resolved: %+v", got)
	}

	b2 := f.seed(models.BookingRefunded)
	d2 := &models.Dispute{ID: uuid.New(), BookingID: b2.ID, RaisedBy: f.client.ID, Reason: "x", Status: models.DisputeOpen}
	f.db.Disputes.Create(ctx, d2)
	if _, _, err := f.svc.Resolve(ctx, f.admin, d2.ID, models.ResolutionRelease); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("mismatched resolution: got %v", err)
	}
}

func TestResolve_BadInput(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.Resolve(context.Background(), f.admin, uuid.New(), "SPLIT"); !errors.Is(err, ErrBadResolution) {
		t.Errorf("bad resolution: got %v", err)
	}
	if _, _, err := f.svc.Resolve(context.Background(), f.admin, uuid.New(), models.ResolutionRefund); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown dispute: got %v", err)
	}
}
