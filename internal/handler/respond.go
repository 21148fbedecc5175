// Package handler contains the Echo HTTP handlers for the rescue
// dispatch API.  Mutating handlers share one shape: open a transaction,
// apply the change, persist the idempotency record with the exact
// response bytes, commit, then publish any lifecycle event.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/strayaid/rescue-dispatch/internal/middleware"
	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/repository"
)

// caseResponse is the wire form of a rescue case.
type caseResponse struct {
	ID                string          `json:"id"`
	ReporterID        string          `json:"reporter_id"`
	AssignedRescuerID *string         `json:"assigned_rescuer_id"`
	Latitude          float64         `json:"latitude"`
	Longitude         float64         `json:"longitude"`
	Description       *string         `json:"description,omitempty"`
	WoundSeverity     *int            `json:"wound_severity,omitempty"`
	Diagnosis         json.RawMessage `json:"diagnosis,omitempty"`
	HasPhoto          bool            `json:"has_photo"`
	HasCrop           bool            `json:"has_crop"`
	Status            string          `json:"status"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// caseResponseOf maps a stored case to its wire form.  Object keys are
// internal; clients see only presence flags and fetch media through the
// presigned-URL endpoint.
func caseResponseOf(rc *model.RescueCase) caseResponse {
	out := caseResponse{
		ID:                rc.ID,
		ReporterID:        rc.ReporterID,
		AssignedRescuerID: rc.AssignedRescuerID,
		Latitude:          rc.Latitude,
		Longitude:         rc.Longitude,
		Description:       rc.Description,
		WoundSeverity:     rc.WoundSeverity,
		HasPhoto:          rc.PhotoObjectKey != nil,
		HasCrop:           rc.CropObjectKey != nil,
		Status:            string(rc.Status),
		ClosedAt:          rc.ClosedAt,
		CreatedAt:         rc.CreatedAt,
		UpdatedAt:         rc.UpdatedAt,
	}
	if rc.Diagnosis != nil {
		out.Diagnosis = json.RawMessage(*rc.Diagnosis)
	}
	return out
}

// recordResponse marshals the payload and persists it as the idempotency
// record for the current request inside the caller's transaction.  The
// returned bytes are what the caller must send after commit, and what
// the middleware will replay on retries.
func recordResponse(ctx context.Context, c echo.Context, tx *sql.Tx, idems *repository.IdempotencyRepo, status int, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	key, endpoint := middleware.IdempotencyScope(c)
	rec := &model.IdempotencyRecord{
		ActorID:  middleware.ActorID(c),
		Endpoint: endpoint,
		Key:      key,
		Status:   status,
		Body:     body,
	}
	if err := idems.InsertTx(ctx, tx, rec); err != nil {
		return 0, nil, err
	}
	return status, body, nil
}

// idempotencyInsertError translates a failed record insert.  A duplicate
// key means a request with the same Idempotency-Key committed (or is
// committing) concurrently; the whole transaction was rolled back with
// it, so the duplicate mutation never lands.
func idempotencyInsertError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "a request with this Idempotency-Key is already in progress",
			"retryable": true,
		})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not persist response"})
}
