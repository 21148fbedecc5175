package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/strayaid/rescue-dispatch/internal/model"
)

// IdempotencyRepo provides data access to the idempotency_records table.
// A record maps (actor, endpoint, client key) to the first response ever
// produced for that request; it is written inside the same transaction
// as the mutation it guards, so a crash leaves either both or neither.
type IdempotencyRepo struct {
	db *sql.DB
}

// NewIdempotencyRepo returns a new IdempotencyRepo bound to the provided
// database.
func NewIdempotencyRepo(db *sql.DB) *IdempotencyRepo { return &IdempotencyRepo{db: db} }

// Lookup returns the stored record for (actor, endpoint, key), or nil
// when no request with this key has completed yet.
func (r *IdempotencyRepo) Lookup(ctx context.Context, actorID, endpoint, key string) (*model.IdempotencyRecord, error) {
	const q = `SELECT actor_id, endpoint, idem_key, response_status, response_body, created_at
	           FROM idempotency_records
	           WHERE actor_id = ? AND endpoint = ? AND idem_key = ?`
	var rec model.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, q, actorID, endpoint, key).Scan(
		&rec.ActorID, &rec.Endpoint, &rec.Key, &rec.Status, &rec.Body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertTx persists the response for a completed mutation within the
// caller's transaction.  When two requests carrying the same key race,
// the primary key makes the second insert fail; that surfaces as
// ErrConflict and the caller must abort the whole transaction so the
// duplicate mutation is rolled back with it.
func (r *IdempotencyRepo) InsertTx(ctx context.Context, tx *sql.Tx, rec *model.IdempotencyRecord) error {
	const q = `INSERT INTO idempotency_records (actor_id, endpoint, idem_key, response_status, response_body)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, rec.ActorID, rec.Endpoint, rec.Key, rec.Status, rec.Body)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}
