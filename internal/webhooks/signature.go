package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"

	"github.com/bookwell/backend/internal/middleware"
)

// PaystackSignatureHeader carries the hex HMAC-SHA512 of the raw body.
const PaystackSignatureHeader = "X-Paystack-Signature"

var ErrBadSignature = errors.New("webhook signature mismatch")

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaystackVerifier checks the signature header against the raw body in
// constant time. An empty secret rejects everything.
func PaystackVerifier(secret string) middleware.VerifyFunc {
	return func(body []byte, sig string) error {
		if secret == "" || sig == "" {
			return ErrBadSignature
		}
		want, err := hex.DecodeString(Sign(secret, body))
		if err != nil {
			return ErrBadSignature
		}
		got, err := hex.DecodeString(sig)
		if err != nil || !hmac.Equal(want, got) {
			return ErrBadSignature
		}
		return nil
	}
}
