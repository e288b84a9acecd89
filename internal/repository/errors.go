// Package repository defines data access for gates and API clients
// along with the sentinel errors shared across repositories.  The
// sentinels let handlers map failure scenarios onto the HTTP contract:
// ErrGateNotFound becomes 404, ErrGateExpired and ErrGateResolved both
// become 409 with distinguishing detail text.
package repository

import "errors"

// ErrGateNotFound is returned when a gate token does not resolve to a
// row. Handlers translate this into a 404 response.
var ErrGateNotFound = errors.New("gate not found")

// ErrGateExpired is returned when a terminal transition is attempted on
// a gate whose expires_at has passed (or that the sweep already flipped
// to EXPIRED). Handlers translate this into a 409 response with detail
// "Gate has expired".
var ErrGateExpired = errors.New("gate expired")

// ErrGateResolved is returned when a terminal transition is attempted
// on a gate that was already confirmed or cancelled. Cancellation of an
// already-confirmed gate must surface this, never succeed silently.
var ErrGateResolved = errors.New("gate already resolved")

// ErrClientNotFound is returned when an API client id is unknown.
// Handlers respond 401 rather than 404 to avoid confirming which client
// ids exist.
var ErrClientNotFound = errors.New("api client not found")
