package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/gateway/gatewaytest"
	"github.com/bookwell/backend/internal/memstore"
	"github.com/bookwell/backend/internal/models"
)

func TestCooldownRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	old := now.Add(-48 * time.Hour)
	cases := []struct {
		name string
		r    *models.TransferRecipient
		want time.Duration
	}{
		{"none", nil, 0},
		{"never changed", &models.TransferRecipient{}, 0},
		{"sentinel", &models.TransferRecipient{LastChangedAt: &firstChangeSentinel}, 0},
		{"recent", &models.TransferRecipient{LastChangedAt: &recent}, 22 * time.Hour},
		{"expired", &models.TransferRecipient{LastChangedAt: &old}, 0},
	}
	for _, tc := range cases {
		if got := CooldownRemaining(tc.r, now); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestBind_CooldownProgression(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	db := memstore.New(func() time.Time { return now })
	gw := &gatewaytest.Fake{Banks: []gateway.Bank{{Name: "GTBank", Code: "058"}}}
	r := NewRecipients(db.Recipients, gw)
	r.Now = func() time.Time { return now }
	ctx := context.Background()
	provider := uuid.New()

	first, err := r.Bind(ctx, provider, BindRequest{AccountNumber: "0123456789", BankCode: "058"})
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if first.LastChangedAt != nil || first.AccountName != "TEST ACCOUNT" || first.BankName != "GTBank" {
		t.Errorf("first bind: %+v", first)
	}

	same, err := r.Bind(ctx, provider, BindRequest{AccountNumber: " 0123456789 ", BankCode: "058"})
	if err != nil || same.LastChangedAt != nil {
		t.Errorf("resubmitting the bound account should be a no-op: %+v %v", same, err)
	}

	second, _ := r.Bind(ctx, provider, BindRequest{AccountNumber: "9999999999", BankCode: "058"})
	if second.LastChangedAt == nil || !second.LastChangedAt.Equal(firstChangeSentinel) {
		t.Errorf("first change should record the sentinel, got %v", second.LastChangedAt)
	}
	if _, rem, _ := r.Get(ctx, provider); rem != 0 {
		t.Errorf("first change should not hold payouts, got %s", rem)
	}

	third, _ := r.Bind(ctx, provider, BindRequest{AccountNumber: "1111111111", BankCode: "058"})
	if third.LastChangedAt == nil || !third.LastChangedAt.Equal(now) {
		t.Errorf("later change should record now, got %v", third.LastChangedAt)
	}
	if _, rem, _ := r.Get(ctx, provider); rem != RecipientCooldown {
		t.Errorf("cooldown: got %s", rem)
	}
}

type noDirectory struct{ *gatewaytest.Fake }

func (noDirectory) ResolveAccount(context.Context, string, string) (*gateway.ResolvedAccount, error) {
	return nil, gateway.ErrUnsupported
}

func TestBind_Validation(t *testing.T) {
	db := memstore.New(nil)
	ctx := context.Background()
	r := NewRecipients(db.Recipients, &gatewaytest.Fake{})
	if _, err := r.Bind(ctx, uuid.New(), BindRequest{BankCode: "058"}); !errors.Is(err, ErrMissingBankDetails) {
		t.Errorf("missing account number: got %v", err)
	}

	r = NewRecipients(db.Recipients, noDirectory{&gatewaytest.Fake{}})
	if _, err := r.Bind(ctx, uuid.New(), BindRequest{AccountNumber: "1", BankCode: "bbl"}); !errors.Is(err, ErrAccountNotResolved) {
		t.Errorf("unresolvable without a name: got %v", err)
	}
	got, err := r.Bind(ctx, uuid.New(), BindRequest{AccountNumber: "1", BankCode: "bbl", AccountName: "Somchai"})
	if err != nil || got.AccountName != "Somchai" || got.RecipientCode != "RCP_test" {
		t.Errorf("bind with supplied name: %+v %v", got, err)
	}
}
