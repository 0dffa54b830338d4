package payouts

import (
	"time"

	"github.com/bookwell/backend/internal/models"
)

// RecipientCooldown is how long payouts are held after a provider changes
// their payout destination.
const RecipientCooldown = 24 * time.Hour

// firstChangeSentinel is written on the first change after initial setup so
// that setup itself never starts a cooldown.
var firstChangeSentinel = time.Unix(0, 0).UTC()

// CooldownRemaining returns how long payouts to r are still held at now.
// A never-changed recipient has no cooldown.
func CooldownRemaining(r *models.TransferRecipient, now time.Time) time.Duration {
	if r == nil || r.LastChangedAt == nil {
		return 0
	}
	rem := r.LastChangedAt.Add(RecipientCooldown).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}
