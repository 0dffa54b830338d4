package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bookwell/backend/internal/models"
)

type stubValidator struct {
	actor models.Actor
	err   error
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (models.Actor, error) {
	if token != "good" {
		return models.Actor{}, errors.New("bad token")
	}
	return s.actor, s.err
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate(t *testing.T) {
	want := models.Actor{ID: uuid.New(), Role: models.RoleProvider}
	var got models.Actor
	h := Authenticate(stubValidator{actor: want})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
	if got != want {
		t.Errorf("actor in context: got %+v, want %+v", got, want)
	}
}

// ---------------------------------------------------------------------------
// RequireRole
// ---------------------------------------------------------------------------

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole(models.RoleAdmin)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no actor: expected 401, got %d", rec.Code)
	}

	req = req.WithContext(WithActor(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleClient}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("client: expected 403, got %d", rec.Code)
	}

	req = req.WithContext(WithActor(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireSignature
// ---------------------------------------------------------------------------

func TestRequireSignature(t *testing.T) {
	verify := func(body []byte, sig string) error {
		if sig != "sig:"+string(body) {
			return errors.New("mismatch")
		}
		return nil
	}
	var seen string
	h := RequireSignature("X-Sig", verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Sig", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || seen != "" {
		t.Fatalf("bad signature: code %d, handler saw %q", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Sig", `sig:{"a":1}`)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good signature: expected 200, got %d", rec.Code)
	}
	if seen != `{"a":1}` {
		t.Errorf("body not restored for handler: %q", seen)
	}
}
