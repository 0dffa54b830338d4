package gateway

import "strings"

var knownFailures = []struct {
	match string
	msg   string
}{
	{"invalid recipient", "Your payout account was rejected by the bank. Update your bank details to receive payouts."},
	{"recipient", "Your payout account could not be used. Check your bank details."},
	{"insufficient balance", "Payouts are temporarily unavailable. The platform will retry shortly."},
	{"balance is not enough", "Payouts are temporarily unavailable. The platform will retry shortly."},
	{"otp", "Payout requires manual approval by the platform and will be processed shortly."},
	{"not available for", "Transfers are not enabled for this account yet. Contact support."},
	{"timeout", "The payment provider did not respond. The payout will be retried."},
}

// UserMessage turns a provider error string into a message a provider can
// act on. Unknown messages are returned prefixed but unchanged.
func UserMessage(raw string) string {
	lower := strings.ToLower(raw)
	for _, k := range knownFailures {
		if strings.Contains(lower, k.match) {
			return k.msg
		}
	}
	if raw == "" {
		return "Payout failed"
	}
	return "Payout failed: " + raw
}
