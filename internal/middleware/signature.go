package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
)

// maxWebhookBody caps the payload read for signature verification.
const maxWebhookBody = 1 << 20

// VerifyFunc checks sig against the raw request body.
type VerifyFunc func(body []byte, sig string) error

// RequireSignature reads the raw body, verifies the signature carried in
// header, then replaces r.Body so the handler can re-read it. A mismatch is
// rejected with 401 and no hint.
func RequireSignature(header string, verify VerifyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			if err := verify(body, r.Header.Get(header)); err != nil {
				log.Warn("webhook signature rejected", "path", r.URL.Path, "error", err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
