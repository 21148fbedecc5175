package repository

import (
	"context"
	"database/sql"
)

// NotificationRepo provides data access to the notification_records
// table, the dedup/audit log for push fan-out.  Records are insert-only:
// written once after a confirmed dispatch, never updated, never deleted.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the
// provided database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Exists reports whether a dedup marker is already present for the
// (case, user, kind) triple.
func (r *NotificationRepo) Exists(ctx context.Context, caseID, userID, kind string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM notification_records WHERE case_id = ? AND user_id = ? AND kind = ?`,
		caseID, userID, kind).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record writes the dedup marker after a confirmed dispatch.  The unique
// key on (case_id, user_id, kind) makes the insert idempotent: a
// concurrent duplicate simply loses the race and is reported as not
// inserted, which is fine because the marker already exists.
func (r *NotificationRepo) Record(ctx context.Context, caseID, userID, kind string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO notification_records (case_id, user_id, kind) VALUES (?, ?, ?)`,
		caseID, userID, kind)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PriorRecipients lists users who already received a notification of the
// given kind for the case and still carry a push token, excluding one
// actor (the claim winner in the mute fan-out).
func (r *NotificationRepo) PriorRecipients(ctx context.Context, caseID, kind, excludeID string) ([]Recipient, error) {
	const q = `SELECT n.user_id, p.push_token
	           FROM notification_records n
	           JOIN user_profiles p ON p.id = n.user_id
	           WHERE n.case_id = ? AND n.kind = ? AND n.user_id <> ?
	             AND p.push_token IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, q, caseID, kind, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.UserID, &rec.PushToken); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
