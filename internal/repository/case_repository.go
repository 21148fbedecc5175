package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/strayaid/rescue-dispatch/internal/model"
)

// CaseRepo provides data access to the rescue_cases table.  It owns the
// two coordination primitives of the whole service: the atomic
// single-winner claim and the validated state transition.  Both are
// conditional writes pushed into MySQL so the guarantee holds across
// replicas with no in-process locking.  All timestamps are UTC.
type CaseRepo struct {
	db *sql.DB
}

// NewCaseRepo returns a new CaseRepo bound to the provided database.
func NewCaseRepo(db *sql.DB) *CaseRepo { return &CaseRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning the case mutation and its idempotency record.
func (r *CaseRepo) DB() *sql.DB { return r.db }

const caseColumns = `id, reporter_id, assigned_rescuer_id, latitude, longitude,
       description, wound_severity, diagnosis, photo_object_key, crop_object_key,
       status, is_visible, closed_at, created_at, updated_at`

// scanCase reads one rescue_cases row from any row scanner.
func scanCase(row interface {
	Scan(dest ...interface{}) error
}) (*model.RescueCase, error) {
	var c model.RescueCase
	var assignee, desc, diag, photo, crop sql.NullString
	var severity sql.NullInt64
	var closedAt sql.NullTime
	var status string
	if err := row.Scan(
		&c.ID, &c.ReporterID, &assignee, &c.Latitude, &c.Longitude,
		&desc, &severity, &diag, &photo, &crop,
		&status, &c.IsVisible, &closedAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = model.CaseStatus(status)
	if assignee.Valid {
		v := assignee.String
		c.AssignedRescuerID = &v
	}
	if desc.Valid {
		v := desc.String
		c.Description = &v
	}
	if severity.Valid {
		v := int(severity.Int64)
		c.WoundSeverity = &v
	}
	if diag.Valid {
		v := diag.String
		c.Diagnosis = &v
	}
	if photo.Valid {
		v := photo.String
		c.PhotoObjectKey = &v
	}
	if crop.Valid {
		v := crop.String
		c.CropObjectKey = &v
	}
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	return &c, nil
}

// CreateTx inserts a new case within the provided transaction.  The ID,
// reporter and location must be set by the caller; status starts as
// pending and timestamps default in the database.
func (r *CaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.RescueCase) error {
	const q = `INSERT INTO rescue_cases
	           (id, reporter_id, latitude, longitude, description, wound_severity, status, is_visible)
	           VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`
	var desc interface{}
	if c.Description != nil {
		desc = *c.Description
	}
	var severity interface{}
	if c.WoundSeverity != nil {
		severity = *c.WoundSeverity
	}
	_, err := tx.ExecContext(ctx, q, c.ID, c.ReporterID, c.Latitude, c.Longitude, desc, severity, c.IsVisible)
	return err
}

// GetByID loads a single case with no visibility filtering.  Internal
// callers (workers, fan-out) use this; request handlers should prefer
// GetForActor.
func (r *CaseRepo) GetByID(ctx context.Context, id string) (*model.RescueCase, error) {
	c, err := scanCase(r.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM rescue_cases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetForActor loads a case applying the row-visibility rule: the row must
// be flagged visible, or the actor must be its reporter, its assignee, or
// an admin.  An invisible row is indistinguishable from a missing one.
func (r *CaseRepo) GetForActor(ctx context.Context, id, actorID string, isAdmin bool) (*model.RescueCase, error) {
	const q = `SELECT ` + caseColumns + ` FROM rescue_cases
	           WHERE id = ? AND (is_visible = 1 OR reporter_id = ? OR assigned_rescuer_id = ? OR ?)`
	c, err := scanCase(r.db.QueryRowContext(ctx, q, id, actorID, actorID, isAdmin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetTx loads a case inside the transaction with FOR UPDATE, serializing
// concurrent transitions on the same row.
func (r *CaseRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.RescueCase, error) {
	c, err := scanCase(tx.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM rescue_cases WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ClaimTx attempts the atomic first-caller-wins claim.  It is a single
// conditional UPDATE: the row is touched only while still pending and
// unassigned, so under N concurrent attempts exactly one affects a row.
// It returns true when this caller won.  Never read-then-write here.
func (r *CaseRepo) ClaimTx(ctx context.Context, tx *sql.Tx, caseID, actorID string) (bool, error) {
	const q = `UPDATE rescue_cases
	           SET assigned_rescuer_id = ?, status = 'claimed', updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = 'pending' AND assigned_rescuer_id IS NULL`
	res, err := tx.ExecContext(ctx, q, actorID, caseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TransitionTx applies the move current→next for the locked case.  The
// caller is expected to have loaded the row via GetTx and validated the
// transition table and actor authorization; the WHERE clause re-checks
// the observed status so a row changed since the read affects nothing
// and the caller can report a conflict.  closed_at is set on entering
// any terminal state, which is the timestamp the cleanup sweep ages on.
func (r *CaseRepo) TransitionTx(ctx context.Context, tx *sql.Tx, caseID string, current, next model.CaseStatus) (bool, error) {
	var q string
	if next.IsTerminal() {
		q = `UPDATE rescue_cases
		     SET status = ?, closed_at = UTC_TIMESTAMP(), updated_at = UTC_TIMESTAMP()
		     WHERE id = ? AND status = ?`
	} else {
		q = `UPDATE rescue_cases
		     SET status = ?, updated_at = UTC_TIMESTAMP()
		     WHERE id = ? AND status = ?`
	}
	res, err := tx.ExecContext(ctx, q, string(next), caseID, string(current))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AttachMediaTx stores one or both media object keys on the case.  Only
// the reporter may attach media, and only while the case is not closed.
// Returns ErrNotFound when the case does not exist, ErrForbidden when
// the actor is not the reporter, ErrConflict when the case is terminal.
func (r *CaseRepo) AttachMediaTx(ctx context.Context, tx *sql.Tx, caseID, actorID string, photoKey, cropKey *string) error {
	var reporterID, status string
	err := tx.QueryRowContext(ctx,
		`SELECT reporter_id, status FROM rescue_cases WHERE id = ? FOR UPDATE`, caseID,
	).Scan(&reporterID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if reporterID != actorID {
		return ErrForbidden
	}
	if model.CaseStatus(status).IsTerminal() {
		return ErrConflict
	}
	const q = `UPDATE rescue_cases
	           SET photo_object_key = COALESCE(?, photo_object_key),
	               crop_object_key  = COALESCE(?, crop_object_key),
	               updated_at = UTC_TIMESTAMP()
	           WHERE id = ?`
	var photo, crop interface{}
	if photoKey != nil {
		photo = *photoKey
	}
	if cropKey != nil {
		crop = *cropKey
	}
	_, err = tx.ExecContext(ctx, q, photo, crop, caseID)
	return err
}

// SetDiagnosis stores the structured AI diagnosis payload.  Best-effort
// enrichment: the worker calls this outside any request transaction.
func (r *CaseRepo) SetDiagnosis(ctx context.Context, caseID, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rescue_cases SET diagnosis = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		payload, caseID)
	return err
}

// MediaRefs returns the current media object keys for a case.
func (r *CaseRepo) MediaRefs(ctx context.Context, caseID string) (photoKey, cropKey *string, err error) {
	var photo, crop sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT photo_object_key, crop_object_key FROM rescue_cases WHERE id = ?`, caseID,
	).Scan(&photo, &crop)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if photo.Valid {
		v := photo.String
		photoKey = &v
	}
	if crop.Valid {
		v := crop.String
		cropKey = &v
	}
	return photoKey, cropKey, nil
}

// ClearMediaRefs removes both media references in a single update.
// Reference clearing always proceeds regardless of object-delete
// outcomes; failed deletes are logged by the cleaner for out-of-band
// reconciliation.
func (r *CaseRepo) ClearMediaRefs(ctx context.Context, caseID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rescue_cases
		 SET photo_object_key = NULL, crop_object_key = NULL, updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`, caseID)
	return err
}

// SweepCandidates selects a bounded batch of terminal cases closed
// before the cutoff that still hold at least one media reference.  This
// is the backstop for cases whose immediate cleanup never ran.
func (r *CaseRepo) SweepCandidates(ctx context.Context, closedBefore time.Time, limit int) ([]string, error) {
	const q = `SELECT id FROM rescue_cases
	           WHERE status IN ('resolved', 'cancelled', 'unreachable')
	             AND closed_at IS NOT NULL AND closed_at < ?
	             AND (photo_object_key IS NOT NULL OR crop_object_key IS NOT NULL)
	           ORDER BY closed_at
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, closedBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListNearby returns visible cases within radiusM meters of the given
// point, newest first.  Distance is computed by MySQL; POINT takes
// longitude first.
func (r *CaseRepo) ListNearby(ctx context.Context, lat, lng float64, radiusM int, limit int) ([]model.RescueCase, error) {
	const q = `SELECT ` + caseColumns + ` FROM rescue_cases
	           WHERE is_visible = 1
	             AND ST_Distance_Sphere(POINT(longitude, latitude), POINT(?, ?)) <= ?
	           ORDER BY created_at DESC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, lng, lat, radiusM, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cases := make([]model.RescueCase, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}
