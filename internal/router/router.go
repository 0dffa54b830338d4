package router

import (
	"net/http"

	"github.com/bookwell/backend/internal/auth"
	"github.com/bookwell/backend/internal/dashboard"
	"github.com/bookwell/backend/internal/handlers"
	"github.com/bookwell/backend/internal/middleware"
	"github.com/bookwell/backend/internal/models"
)

type Handlers struct {
	Auth      *auth.Handler
	Bookings  *handlers.BookingHandler
	Payouts   *handlers.PayoutHandler
	Dashboard *dashboard.Handler
}

// New returns an http.Handler that serves API under /api/v1. Everything but
// register and login requires a bearer token.
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.Authenticate(tokens)
	user := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	only := func(role models.Role, fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(role)(fn))
	}

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)
	mux.Handle("GET "+base+"/account/me", user(h.Dashboard.GetMe))

	mux.Handle("POST "+base+"/bookings", user(h.Bookings.CreateBooking))
	mux.Handle("GET "+base+"/bookings", user(h.Bookings.ListBookings))
	mux.Handle("GET "+base+"/bookings/{id}", user(h.Bookings.GetBooking))
	mux.Handle("POST "+base+"/bookings/{id}/{action}", user(h.Bookings.ApplyAction))
	mux.Handle("POST "+base+"/bookings/{id}/payment/verify", user(h.Bookings.VerifyPayment))
	mux.Handle("POST "+base+"/bookings/{id}/review", user(h.Bookings.Review))
	mux.Handle("POST "+base+"/bookings/{id}/disputes", user(h.Bookings.RaiseDispute))
	mux.Handle("GET "+base+"/escrow", user(h.Bookings.GetEscrow))

	mux.Handle("GET "+base+"/banks", user(h.Payouts.ListBanks))
	mux.Handle("GET "+base+"/banks/resolve", user(h.Payouts.ResolveAccount))
	mux.Handle("GET "+base+"/payout-account", only(models.RoleProvider, h.Payouts.GetPayoutAccount))
	mux.Handle("PUT "+base+"/payout-account", only(models.RoleProvider, h.Payouts.PutPayoutAccount))

	admin := func(fn http.HandlerFunc) http.Handler { return only(models.RoleAdmin, fn) }
	mux.Handle("GET "+base+"/admin/settings", admin(h.Dashboard.GetSettings))
	mux.Handle("PATCH "+base+"/admin/settings", admin(h.Dashboard.UpdateSettings))
	mux.Handle("GET "+base+"/admin/disputes", admin(h.Dashboard.ListDisputes))
	mux.Handle("POST "+base+"/admin/disputes/{id}/resolve", admin(h.Dashboard.ResolveDispute))
	mux.Handle("POST "+base+"/admin/payouts/{bookingId}/retry", admin(h.Dashboard.RetryPayout))
	mux.Handle("POST "+base+"/admin/payouts/{bookingId}/verify", admin(h.Dashboard.VerifyPayout))
	mux.Handle("POST "+base+"/admin/users/{id}/verify-identity", admin(h.Dashboard.VerifyIdentity))

	return mux
}
