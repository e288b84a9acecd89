// Package queue defines message payloads exchanged over the message broker.
package queue

// GateResolvedQueue is the durable queue carrying terminal gate
// transitions to downstream consumers.
const GateResolvedQueue = "gate.resolved"

// GateResolvedEvent is published whenever a gate reaches a terminal
// state: confirmed, cancelled, or expired by the sweep.  It carries
// enough for downstream consumers to log, notify, or kick off the
// guarded action without querying the primary database.
type GateResolvedEvent struct {
	GateToken     string `json:"gate_token"`
	ActionID      string `json:"action_id"`
	Status        string `json:"status"`
	Modifications int    `json:"modifications"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	ResolvedAt    string `json:"resolved_at"`
}
