// Package memstore is an in-memory implementation of the repository
// contracts. Guarded writes follow the same compare-and-set rules as the SQL
// in internal/repository, so service tests exercise the real race semantics.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/models"
	"github.com/bookwell/backend/internal/repository"
)

// DB holds every table behind one mutex.
type DB struct {
	mu         sync.Mutex
	now        func() time.Time
	accounts   map[uuid.UUID]*models.Account
	bookings   map[uuid.UUID]*models.Booking
	payouts    map[uuid.UUID]*models.Payout // by booking id
	recipients map[uuid.UUID]*models.TransferRecipient
	disputes   map[uuid.UUID]*models.Dispute
	settings   models.AdminSettings

	Accounts   *Accounts
	Bookings   *Bookings
	Payouts    *Payouts
	Recipients *Recipients
	Disputes   *Disputes
	Settings   *Settings
}

// New returns an empty store seeded with default settings. now may be nil.
func New(now func() time.Time) *DB {
	if now == nil {
		now = time.Now
	}
	db := &DB{
		now:        now,
		accounts:   make(map[uuid.UUID]*models.Account),
		bookings:   make(map[uuid.UUID]*models.Booking),
		payouts:    make(map[uuid.UUID]*models.Payout),
		recipients: make(map[uuid.UUID]*models.TransferRecipient),
		disputes:   make(map[uuid.UUID]*models.Dispute),
		settings:   models.DefaultSettings(),
	}
	db.Accounts = &Accounts{db}
	db.Bookings = &Bookings{db}
	db.Payouts = &Payouts{db}
	db.Recipients = &Recipients{db}
	db.Disputes = &Disputes{db}
	db.Settings = &Settings{db}
	return db
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

type Accounts struct{ db *DB }

func (s *Accounts) Create(_ context.Context, a *models.Account) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.accounts {
		if existing.Email == a.Email {
			return repository.ErrConflict
		}
	}
	now := s.db.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	s.db.accounts[a.ID] = &cp
	return nil
}

// Put stores a copy of a as-is.
func (s *Accounts) Put(a *models.Account) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *a
	s.db.accounts[a.ID] = &cp
}

func (s *Accounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Accounts) MarkVerificationFeePaid(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.VerificationFeePaid = true
	a.UpdatedAt = s.db.now()
	return nil
}

func (s *Accounts) SetIdentityVerified(_ context.Context, id uuid.UUID, verified bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.IdentityVerified = verified
	a.UpdatedAt = s.db.now()
	return nil
}

// ---------------------------------------------------------------------------
// Bookings
// ---------------------------------------------------------------------------

type Bookings struct{ db *DB }

func (s *Bookings) Create(_ context.Context, b *models.Booking) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.bookings[b.ID]; ok {
		return repository.ErrConflict
	}
	if s.violates(b, b.Status) {
		return repository.ErrConflict
	}
	now := s.db.now()
	b.CreatedAt, b.UpdatedAt = now, now
	cp := *b
	s.db.bookings[b.ID] = &cp
	return nil
}

// Put stores a copy of b without touching its timestamps.
func (s *Bookings) Put(b *models.Booking) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *b
	s.db.bookings[b.ID] = &cp
}

func (s *Bookings) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Bookings) UpdateStatus(_ context.Context, b *models.Booking, from models.BookingStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.bookings[b.ID]
	if !ok || cur.Status != from || s.violates(cur, b.Status) {
		return repository.ErrConflict
	}
	cur.Status = b.Status
	cur.StartedAt = b.StartedAt
	cur.CompletedAt = b.CompletedAt
	cur.UpdatedAt = s.db.now()
	b.UpdatedAt = cur.UpdatedAt
	return nil
}

// violates reports whether moving b to status would break the partial
// unique indexes on bookings. Callers hold the lock.
func (s *Bookings) violates(b *models.Booking, status models.BookingStatus) bool {
	engaged := models.ContainsStatus(models.EngagedStatuses, status)
	active := models.ContainsStatus(models.ActiveStatuses, status)
	for _, o := range s.db.bookings {
		if o.ID == b.ID {
			continue
		}
		if engaged && o.ProviderID == b.ProviderID && models.ContainsStatus(models.EngagedStatuses, o.Status) {
			return true
		}
		if active && o.ClientID == b.ClientID && o.ProviderID == b.ProviderID && models.ContainsStatus(models.ActiveStatuses, o.Status) {
			return true
		}
	}
	return false
}

func (s *Bookings) MarkReviewed(_ context.Context, id uuid.UUID, role models.Role) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	if role == models.RoleProvider {
		b.ProviderReviewed = true
	} else {
		b.ClientReviewed = true
	}
	return nil
}

func (s *Bookings) ExistsBetween(_ context.Context, clientID, providerID uuid.UUID, statuses []models.BookingStatus) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, b := range s.db.bookings {
		if b.ClientID == clientID && b.ProviderID == providerID && models.ContainsStatus(statuses, b.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Bookings) CountByProvider(_ context.Context, providerID uuid.UUID, statuses []models.BookingStatus, exclude uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, b := range s.db.bookings {
		if b.ProviderID == providerID && b.ID != exclude && models.ContainsStatus(statuses, b.Status) {
			n++
		}
	}
	return n, nil
}

func (s *Bookings) CountByClient(_ context.Context, clientID uuid.UUID, statuses []models.BookingStatus) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, b := range s.db.bookings {
		if b.ClientID == clientID && models.ContainsStatus(statuses, b.Status) {
			n++
		}
	}
	return n, nil
}

func (s *Bookings) ListByParty(_ context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.IsParty(userID) }), nil
}

func (s *Bookings) ListStale(_ context.Context, status models.BookingStatus, cutoff time.Time) ([]*models.Booking, error) {
	return s.list(func(b *models.Booking) bool {
		return b.Status == status && b.UpdatedAt.Before(cutoff)
	}), nil
}

func (s *Bookings) ListAwaitingPayout(_ context.Context, cutoff time.Time) ([]*models.Booking, error) {
	return s.list(func(b *models.Booking) bool {
		if b.Status != models.BookingCompletedConfirmed {
			return false
		}
		p, ok := s.db.payouts[b.ID]
		if !ok {
			return b.UpdatedAt.Before(cutoff)
		}
		return p.Status == models.PayoutFailed && p.UpdatedAt.Before(cutoff)
	}), nil
}

// EscrowBalance mirrors ledger.Repository.EscrowBalance.
func (s *Bookings) EscrowBalance(_ context.Context, clientID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total int64
	for _, b := range s.db.bookings {
		if b.ClientID == clientID && models.ContainsStatus(models.EscrowStatuses, b.Status) {
			total += b.Amount
		}
	}
	return total, nil
}

func (s *Bookings) list(match func(*models.Booking) bool) []*models.Booking {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.db.bookings {
		if match(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// ---------------------------------------------------------------------------
// Payouts
// ---------------------------------------------------------------------------

type Payouts struct{ db *DB }

func (s *Payouts) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*models.Payout, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payouts[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Payouts) GetByReference(_ context.Context, ref string) (*models.Payout, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payouts {
		if p.TransferReference == ref || (p.ProviderReference != "" && p.ProviderReference == ref) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Put stores a copy of p as-is.
func (s *Payouts) Put(p *models.Payout) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *p
	s.db.payouts[p.BookingID] = &cp
}

// Count returns the number of payout rows.
func (s *Payouts) Count() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.payouts)
}

func (s *Payouts) Claim(_ context.Context, p *models.Payout) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	cur, ok := s.db.payouts[p.BookingID]
	if ok && cur.Status != models.PayoutFailed {
		return false, nil
	}
	if !ok {
		cur = &models.Payout{ID: p.ID, BookingID: p.BookingID, ProviderID: p.ProviderID, CreatedAt: now}
		s.db.payouts[p.BookingID] = cur
	}
	cur.Amount, cur.Fee = p.Amount, p.Fee
	cur.Status = models.PayoutProcessing
	cur.TransferReference = p.TransferReference
	cur.ProviderReference = ""
	cur.FailureReason = ""
	cur.Attempts++
	cur.UpdatedAt = now
	*p = *cur
	return true, nil
}

func (s *Payouts) RecordFailure(_ context.Context, p *models.Payout) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	cur, ok := s.db.payouts[p.BookingID]
	if ok && cur.Status != models.PayoutFailed {
		return nil
	}
	if !ok {
		cur = &models.Payout{ID: p.ID, BookingID: p.BookingID, ProviderID: p.ProviderID, Amount: p.Amount, Fee: p.Fee, CreatedAt: now}
		s.db.payouts[p.BookingID] = cur
	}
	cur.Status = models.PayoutFailed
	cur.TransferReference = p.TransferReference
	cur.FailureReason = p.FailureReason
	cur.Attempts++
	cur.UpdatedAt = now
	return nil
}

func (s *Payouts) byID(id uuid.UUID) *models.Payout {
	for _, p := range s.db.payouts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Payouts) MarkAccepted(_ context.Context, id uuid.UUID, providerRef string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.byID(id)
	if p == nil || p.Status == models.PayoutSuccess {
		return false, nil
	}
	p.ProviderReference = providerRef
	p.UpdatedAt = s.db.now()
	return p.Status == models.PayoutProcessing, nil
}

func (s *Payouts) MarkFailed(_ context.Context, id uuid.UUID, ref, reason string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.byID(id)
	if p == nil || p.TransferReference != ref || p.Status != models.PayoutProcessing {
		return false, nil
	}
	p.Status = models.PayoutFailed
	p.FailureReason = reason
	p.UpdatedAt = s.db.now()
	return true, nil
}

func (s *Payouts) MarkSucceeded(_ context.Context, id uuid.UUID, ref string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.byID(id)
	if p == nil || p.TransferReference != ref || p.Status == models.PayoutSuccess {
		return false, nil
	}
	p.Status = models.PayoutSuccess
	p.FailureReason = ""
	p.UpdatedAt = s.db.now()
	return true, nil
}

// ---------------------------------------------------------------------------
// Recipients
// ---------------------------------------------------------------------------

type Recipients struct{ db *DB }

func (s *Recipients) GetByProviderID(_ context.Context, providerID uuid.UUID) (*models.TransferRecipient, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.recipients[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Recipients) Upsert(_ context.Context, r *models.TransferRecipient) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	if cur, ok := s.db.recipients[r.ProviderID]; ok {
		r.CreatedAt = cur.CreatedAt
	} else {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	cp := *r
	s.db.recipients[r.ProviderID] = &cp
	return nil
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

type Disputes struct{ db *DB }

func (s *Disputes) Create(_ context.Context, d *models.Dispute) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.disputes {
		if existing.BookingID == d.BookingID {
			return repository.ErrConflict
		}
	}
	d.CreatedAt = s.db.now()
	cp := *d
	s.db.disputes[d.ID] = &cp
	return nil
}

func (s *Disputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Disputes) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, d := range s.db.disputes {
		if d.BookingID == bookingID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Disputes) Resolve(_ context.Context, id uuid.UUID, resolution models.DisputeResolution, by uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.disputes[id]
	if !ok || d.Status != models.DisputeOpen {
		return repository.ErrConflict
	}
	d.Status = models.DisputeResolved
	d.Resolution = &resolution
	d.ResolvedBy = &by
	d.ResolvedAt = &at
	return nil
}

func (s *Disputes) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if d, ok := s.db.disputes[id]; ok && d.Status == models.DisputeOpen {
		delete(s.db.disputes, id)
	}
	return nil
}

func (s *Disputes) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Dispute
	for _, d := range s.db.disputes {
		if d.Status == models.DisputeOpen {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

type Settings struct{ db *DB }

func (s *Settings) Get(_ context.Context) (models.AdminSettings, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.settings, nil
}

func (s *Settings) Update(_ context.Context, st *models.AdminSettings) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st.UpdatedAt = s.db.now()
	s.db.settings = *st
	return nil
}
