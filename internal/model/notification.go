package model

import "time"

// Notification kinds recorded in notification_records.kind.  At most one
// record exists per (case, user, kind); the unique constraint is the
// dedup mechanism for fan-out.
const (
	KindNewRescue  = "new_rescue"  // visible alert about a freshly reported case
	KindMute       = "mute"        // silent data push sent to non-winners after a claim
	KindCaseUpdate = "case_update" // terminal-status notice sent to the reporter
)

// NotificationRecord marks one successful push dispatch.  Records are
// written only after a confirmed send, never updated and never deleted;
// the table doubles as a permanent audit log.
type NotificationRecord struct {
	ID     uint64    // notification_records.id
	CaseID string    // notification_records.case_id
	UserID string    // notification_records.user_id
	Kind   string    // notification_records.kind
	SentAt time.Time // notification_records.sent_at
}

// IdempotencyRecord caches the first response produced for a mutating
// request.  It is written in the same transaction as the mutation it
// guards and replayed verbatim on retries carrying the same key.
// Only status and body are stored: every guarded endpoint responds
// application/json and the replay path sets that header itself, so a
// headers column would never vary.  Revisit if a mutating endpoint ever
// emits anything but JSON.
type IdempotencyRecord struct {
	ActorID   string    // idempotency_records.actor_id
	Endpoint  string    // idempotency_records.endpoint
	Key       string    // idempotency_records.idem_key
	Status    int       // idempotency_records.response_status
	Body      []byte    // idempotency_records.response_body
	CreatedAt time.Time // idempotency_records.created_at
}
