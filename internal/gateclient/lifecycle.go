package gateclient

import (
	"time"

	"github.com/tempora/schedgate/internal/model"
)

// DisplayState returns the status a UI should render for a gate at the
// given instant.  A PENDING gate whose expires_at has passed is shown
// as EXPIRED so action controls can be disabled without a server round
// trip; the authoritative terminal transition still happens server-side
// on the next confirm or cancel attempt.  Terminal states pass through
// unchanged.
func DisplayState(g model.Gate, now time.Time) model.GateStatus {
	if g.Status == model.GateStatusPending && !now.Before(g.ExpiresAt) {
		return model.GateStatusExpired
	}
	return g.Status
}

// Actionable reports whether confirm/cancel controls should be enabled
// for the gate as of now.
func Actionable(g model.Gate, now time.Time) bool {
	return DisplayState(g, now) == model.GateStatusPending
}
