package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/gateway/gatewaytest"
	"github.com/bookwell/backend/internal/memstore"
	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/payouts"
)

type events struct {
	mu   sync.Mutex
	sent []string
}

func (e *events) Notify(_ context.Context, _ uuid.UUID, event string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, event)
}

func (e *events) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.sent {
		if s == event {
			n++
		}
	}
	return n
}

type fixture struct {
	db      *memstore.DB
	gw      *gatewaytest.Fake
	events  *events
	sweeper *Sweeper
	now     time.Time
	client  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:     &gatewaytest.Fake{},
		events: &events{},
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		client: uuid.New(),
	}
	clock := func() time.Time { return f.now }
	f.db = memstore.New(clock)
	f.db.Accounts.Put(&models.Account{ID: f.client, Role: models.RoleClient})

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
		Notifier:   f.events,
		Now:        clock,
	})
	f.sweeper = NewSweeper(f.db.Bookings, machine, f.db.Recipients, f.db.Settings, time.Hour, nil)
	f.sweeper.Now = clock
	return f
}

// seed stores a booking for a fresh provider with a bound recipient, last
// touched age ago.
func (f *fixture) seed(status models.BookingStatus, age time.Duration) *models.Booking {
	provider := uuid.New()
	f.db.Accounts.Put(&models.Account{ID: provider, Role: models.RoleProvider, VerificationFeePaid: true})
	f.db.Recipients.Upsert(context.Background(), &models.TransferRecipient{ProviderID: provider, RecipientCode: "RCP_" + provider.String()[:8]})
	b := &models.Booking{
		ID:             uuid.New(),
		ClientID:       f.client,
		ProviderID:     provider,
		Status:         status,
		Amount:         100000,
		CommissionRate: decimal.NewNullDecimal(decimal.RequireFromString("0.2")),
		CreatedAt:      f.now.Add(-age),
		UpdatedAt:      f.now.Add(-age),
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
// Auto-release
// ---------------------------------------------------------------------------

func TestSweep_ReleasesOnlyStaleCompleted(t *testing.T) {
	f := newFixture(t)
	old := f.seed(models.BookingCompleted, 25*time.Hour)
	young := f.seed(models.BookingCompleted, time.Hour)
	inProgress := f.seed(models.BookingInProgress, 48*time.Hour)

	rep, err := f.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Released != 1 || rep.Failed != 0 {
		t.Errorf("report: %+v", rep)
	}
	if got := f.status(t, old.ID); got != models.BookingPayoutInitiated {
		t.Errorf("stale booking: got %s", got)
	}
	if got := f.status(t, young.ID); got != models.BookingCompleted {
		t.Errorf("young booking: got %s", got)
	}
	if got := f.status(t, inProgress.ID); got != models.BookingInProgress {
		t.Errorf("in-progress booking: got %s", got)
	}
	if f.gw.Calls() != 1 || f.gw.Last().Amount != 80000 {
		t.Errorf("expected one transfer of 80000, got %d calls, last %+v", f.gw.Calls(), f.gw.Last())
	}

	// The next tick finds nothing to do.
	rep, _ = f.sweeper.Sweep(context.Background())
	if rep.Released != 0 || rep.Retried != 0 || f.gw.Calls() != 1 {
		t.Errorf("second sweep: %+v, %d calls", rep, f.gw.Calls())
	}
}

func TestSweep_UsesConfiguredTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.db.Settings.Get(ctx)
	st.AutoReleaseTimeoutHours = 72
	f.db.Settings.Update(ctx, &st)

	b := f.seed(models.BookingCompleted, 48*time.Hour)
	if rep, _ := f.sweeper.Sweep(ctx); rep.Released != 0 {
		t.Errorf("released before timeout: %+v", rep)
	}
	f.now = f.now.Add(25 * time.Hour)
	if rep, _ := f.sweeper.Sweep(ctx); rep.Released != 1 {
		t.Errorf("not released after timeout: %+v", rep)
	}
	if got := f.status(t, b.ID); got != models.BookingPayoutInitiated {
		t.Errorf("status: got %s", got)
	}
}

func TestSweep_SettlementRunsOncePerTick(t *testing.T) {
	f := newFixture(t)
	f.gw.Result = &gateway.TransferResult{Message: "Invalid recipient"}
	f.sweeper.RetryBackoff = -time.Minute

	b := f.seed(models.BookingCompleted, 30*time.Hour)
	rep, err := f.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Released != 1 || rep.Retried != 0 {
		t.Errorf("report: %+v", rep)
	}
	if f.gw.Calls() != 1 {
		t.Errorf("a booking released this tick must not be retried in the same tick: %d calls", f.gw.Calls())
	}
	if got := f.status(t, b.ID); got != models.BookingCompletedConfirmed {
		t.Errorf("rejected payout should leave the booking confirmed: %s", got)
	}
}

// ---------------------------------------------------------------------------
// Retry step
// ---------------------------------------------------------------------------

func TestSweep_RetriesFailedAndMissingPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := f.seed(models.BookingCompletedConfirmed, 2*time.Hour)
	failed := f.seed(models.BookingCompletedConfirmed, 3*time.Hour)
	f.db.Payouts.Put(&models.Payout{
		ID: uuid.New(), BookingID: failed.ID, ProviderID: failed.ProviderID,
		Status: models.PayoutFailed, TransferReference: "payout_old", Attempts: 1,
		UpdatedAt: f.now.Add(-2 * time.Hour),
	})
	recent := f.seed(models.BookingCompletedConfirmed, 3*time.Hour)
	f.db.Payouts.Put(&models.Payout{
		ID: uuid.New(), BookingID: recent.ID, ProviderID: recent.ProviderID,
		Status: models.PayoutFailed, TransferReference: "payout_recent", Attempts: 1,
		UpdatedAt: f.now.Add(-10 * time.Minute),
	})

	rep, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Retried != 2 {
		t.Errorf("report: %+v", rep)
	}
	for _, id := range []uuid.UUID{missing.ID, failed.ID} {
		if got := f.status(t, id); got != models.BookingPayoutInitiated {
			t.Errorf("%s: got %s", id, got)
		}
	}
	if got := f.status(t, recent.ID); got != models.BookingCompletedConfirmed {
		t.Errorf("payout inside the backoff was retried: %s", got)
	}
	p, _ := f.db.Payouts.GetByBookingID(ctx, failed.ID)
	if p.Attempts != 2 || p.Status != models.PayoutProcessing {
		t.Errorf("retried payout: %+v", p)
	}
}

func TestSweep_CooldownIsNotRetriedEachTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.seed(models.BookingCompletedConfirmed, 2*time.Hour)
	rcpt, _ := f.db.Recipients.GetByProviderID(ctx, b.ProviderID)
	changed := f.now.Add(-time.Hour)
	rcpt.LastChangedAt = &changed
	f.db.Recipients.Upsert(ctx, rcpt)

	for tick := 0; tick < 3; tick++ {
		rep, err := f.sweeper.Sweep(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Skipped != 1 || rep.Retried != 0 {
			t.Errorf("tick %d: %+v", tick, rep)
		}
		f.now = f.now.Add(time.Hour)
	}
	if n := f.events.count("payout.delayed"); n != 0 {
		t.Errorf("payout.delayed sent %d times during the cooldown", n)
	}
	if f.gw.Calls() != 0 {
		t.Error("no transfer should be attempted during the cooldown")
	}

	f.now = changed.Add(payouts.RecipientCooldown + time.Minute)
	rep, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Retried != 1 || f.status(t, b.ID) != models.BookingPayoutInitiated {
		t.Errorf("after the cooldown: %+v / %s", rep, f.status(t, b.ID))
	}
}

func TestSweep_PausedSkipsRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.db.Settings.Get(ctx)
	st.PayoutsPaused = true
	f.db.Settings.Update(ctx, &st)

	stale := f.seed(models.BookingCompleted, 30*time.Hour)
	f.seed(models.BookingCompletedConfirmed, 5*time.Hour)

	rep, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Released != 1 || rep.Retried != 0 || f.gw.Calls() != 0 {
		t.Errorf("paused sweep: %+v, %d calls", rep, f.gw.Calls())
	}
	if got := f.status(t, stale.ID); got != models.BookingCompletedConfirmed {
		t.Errorf("paused release should stop at COMPLETED_CONFIRMED: %s", got)
	}
}

// ---------------------------------------------------------------------------
// Isolation
// ---------------------------------------------------------------------------

// phantomStore reports a booking that cannot be loaded alongside real ones.
type phantomStore struct {
	*memstore.Bookings
}

func (p phantomStore) ListStale(ctx context.Context, status models.BookingStatus, cutoff time.Time) ([]*models.Booking, error) {
	list, err := p.Bookings.ListStale(ctx, status, cutoff)
	return append([]*models.Booking{{ID: uuid.New(), Status: status}}, list...), err
}

func TestSweep_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.sweeper.Bookings = phantomStore{f.db.Bookings}
	b := f.seed(models.BookingCompleted, 30*time.Hour)

	rep, err := f.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("a per-booking failure must not fail the sweep: %v", err)
	}
	if rep.Failed != 1 || rep.Released != 1 {
		t.Errorf("report: %+v", rep)
	}
	if got := f.status(t, b.ID); got != models.BookingPayoutInitiated {
		t.Errorf("real booking: got %s", got)
	}
}

type failingSettings struct{}

func (failingSettings) Get(context.Context) (models.AdminSettings, error) {
	return models.AdminSettings{}, errors.New("db down")
}

func TestSweep_SettingsFailureAbortsTick(t *testing.T) {
	f := newFixture(t)
	f.sweeper.Settings = failingSettings{}
	if _, err := f.sweeper.Sweep(context.Background()); err == nil {
		t.Error("expected error")
	}
}
