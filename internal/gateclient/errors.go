// Package gateclient implements the client side of the scheduling-gate
// confirmation protocol.  A gate is fetched by token, reviewed by the
// user and then either confirmed (optionally with per-block
// modifications) or cancelled.  Both terminal transitions are executed
// by the remote gate service; the client only reconciles its caches and
// notifies the user once the server has answered.
package gateclient

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed gate operation.  Handlers and UI code switch
// on the kind; Detail carries the server-supplied message verbatim when
// one was present.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindUnauthorized    Kind = "unauthorized"
	KindExpired         Kind = "expired"
	KindAlreadyResolved Kind = "already_resolved"
	KindValidation      Kind = "validation_error"
	KindUnknown         Kind = "unknown"
)

// Error is the failure type returned by all Client operations.  Detail
// holds the server's `detail` field when the response carried one, or a
// transport-level description otherwise.
type Error struct {
	Kind      Kind
	Detail    string
	retryable bool
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gate operation failed: %s", e.Kind)
	}
	return fmt.Sprintf("gate operation failed: %s: %s", e.Kind, e.Detail)
}

// Retryable reports whether the failure was transport-level (network
// error or timeout) and therefore worth retrying.  Server-decided
// failures are never retryable: confirm and cancel are non-idempotent
// from the caller's perspective.
func (e *Error) Retryable() bool { return e.retryable }

// KindOf extracts the Kind from an error returned by this package.
// Unrelated errors report KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// mapStatus translates an HTTP status plus the server's detail message
// into the error taxonomy.  The gate service signals both expiry and
// prior resolution with 409; the detail text disambiguates them.
func mapStatus(status int, detail string) *Error {
	switch status {
	case 404:
		return &Error{Kind: KindNotFound, Detail: detail}
	case 401, 403:
		return &Error{Kind: KindUnauthorized, Detail: detail}
	case 400, 422:
		return &Error{Kind: KindValidation, Detail: detail}
	case 409:
		if strings.Contains(strings.ToLower(detail), "expired") {
			return &Error{Kind: KindExpired, Detail: detail}
		}
		return &Error{Kind: KindAlreadyResolved, Detail: detail}
	case 410:
		return &Error{Kind: KindExpired, Detail: detail}
	default:
		return &Error{Kind: KindUnknown, Detail: detail}
	}
}

// transportError wraps a network-level failure.  These are the only
// errors marked retryable.
func transportError(err error) *Error {
	return &Error{Kind: KindUnknown, Detail: err.Error(), retryable: true}
}
