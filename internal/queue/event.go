// Package queue defines the events exchanged over the message broker
// and the consumer that turns them into fan-out and cleanup work.
// Events are published after the triggering transaction commits, so the
// broker only ever sees state that is durable in the case store.
package queue

// Queue names.  One durable queue per event type.
const (
	CaseOpenedQueue  = "case.opened"
	CaseClaimedQueue = "case.claimed"
	CaseClosedQueue  = "case.closed"
)

// CaseOpenedEvent is published when a reporter creates a case.  It
// triggers the new-case fan-out and the best-effort AI diagnosis
// enrichment.
type CaseOpenedEvent struct {
	CaseID     string  `json:"case_id"`
	ReporterID string  `json:"reporter_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ReportedAt string  `json:"reported_at"`
}

// CaseClaimedEvent is published when a claim wins.  It triggers the mute
// fan-out toward everyone who got the original alert.
type CaseClaimedEvent struct {
	CaseID    string `json:"case_id"`
	RescuerID string `json:"rescuer_id"`
	ClaimedAt string `json:"claimed_at"`
}

// CaseClosedEvent is published when a case reaches a terminal state.  It
// triggers immediate media cleanup and the reporter notification.
type CaseClosedEvent struct {
	CaseID   string `json:"case_id"`
	ActorID  string `json:"actor_id"`
	Status   string `json:"status"`
	ClosedAt string `json:"closed_at"`
}
