package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bookwell/backend/internal/models"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// TokenValidator turns a bearer token into the calling actor.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
}

// ActorFromCtx returns the actor set by Authenticate.
func ActorFromCtx(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(ctxActorKey).(models.Actor)
	return a, ok
}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

// Authenticate validates the Bearer token in the Authorization header and
// stores the resulting actor in the request context.
func Authenticate(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				http.Error(w, `{"error":"missing or invalid Authorization header"}`, http.StatusUnauthorized)
				return
			}
			actor, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects actors whose role is not listed. It must run after
// Authenticate.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromCtx(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
