package model

import (
	"encoding/json"
	"time"
)

// GateStatus enumerates the lifecycle states of a gate.  A gate starts
// PENDING and reaches exactly one terminal state.  Transitions are
// decided server-side; clients never flip status locally.
type GateStatus string

const (
	GateStatusPending   GateStatus = "PENDING"
	GateStatusConfirmed GateStatus = "CONFIRMED"
	GateStatusCancelled GateStatus = "CANCELLED"
	GateStatusExpired   GateStatus = "EXPIRED"
)

// Terminal reports whether the status is one of the terminal states.
func (s GateStatus) Terminal() bool {
	return s == GateStatusConfirmed || s == GateStatusCancelled || s == GateStatusExpired
}

// Gate is a server-issued, time-boxed scheduling proposal awaiting an
// explicit user decision.  GateToken is the opaque primary lookup key
// and ActionID names the scheduling run the gate guards.  PreviewData
// and DisplayMode are opaque at this layer: the owning scheduling
// engine defines their shape, and the gate service passes them through
// untouched.  A gate is confirmable strictly before ExpiresAt;
// ResolvedAt is nil until a terminal transition happens.
type Gate struct {
	ID           uint64          `json:"-"`
	GateToken    string          `json:"gate_token"`
	ActionID     string          `json:"action_id"`
	DisplayMode  string          `json:"display_mode"`
	PreviewData  json.RawMessage `json:"preview_data,omitempty"`
	Status       GateStatus      `json:"status"`
	ExpiresAt    time.Time       `json:"expires_at"`
	CreatedAt    time.Time       `json:"created_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`

	// Modifications is hydrated on status reads of a CONFIRMED gate;
	// it is not a stored column of the gates table.
	Modifications []Modification `json:"modifications,omitempty"`
}

// Modification is a user-supplied override to one proposed time block
// inside a gate's preview.  The list sent on confirmation is a set keyed
// by TimeblockID; the service applies entries in order and the last one
// for a given id wins.  Membership of TimeblockID in the gate's preview
// is enforced server-side, not by clients.
type Modification struct {
	TimeblockID        string `json:"timeblock_id"`
	NewStartTime       string `json:"new_start_time,omitempty"`
	NewDurationMinutes int    `json:"new_duration_minutes,omitempty"`
}
