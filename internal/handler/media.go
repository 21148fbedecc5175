package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/middleware"
	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/repository"
	"github.com/strayaid/rescue-dispatch/internal/storage"
)

// Media kinds accepted by the media endpoints.
const (
	MediaKindPhoto = "photo"
	MediaKindCrop  = "crop"
)

// MediaHandler serves media attachment and presigned URL endpoints.
// Image bytes never pass through the service: uploads and downloads go
// straight to the object store via short-lived URLs.
type MediaHandler struct {
	cases  *repository.CaseRepo
	idems  *repository.IdempotencyRepo
	store  storage.ObjectStore
	urlTTL time.Duration
	log    *zap.Logger
}

// NewMediaHandler wires a MediaHandler.
func NewMediaHandler(cases *repository.CaseRepo, idems *repository.IdempotencyRepo, store storage.ObjectStore, urlTTL time.Duration, log *zap.Logger) *MediaHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaHandler{cases: cases, idems: idems, store: store, urlTTL: urlTTL, log: log}
}

type attachMediaRequest struct {
	PhotoObjectKey *string `json:"photo_object_key"`
	CropObjectKey  *string `json:"crop_object_key"`
}

// Attach handles POST /api/v1/cases/:id/media.  Only the reporter may
// attach, and only while the case is open; attaching to a closed case
// would leave objects the cleanup already ran past.
func (h *MediaHandler) Attach(c echo.Context) error {
	actor := middleware.ActorID(c)
	caseID := c.Param("id")

	var req attachMediaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.PhotoObjectKey == nil && req.CropObjectKey == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one object key is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), mutationTimeout)
	defer cancel()

	tx, err := h.cases.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = h.cases.AttachMediaTx(ctx, tx, caseID, actor, req.PhotoObjectKey, req.CropObjectKey)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the reporter may attach media"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "case is closed"})
	case err != nil:
		h.log.Error("attach media failed", zap.String("case_id", caseID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not attach media"})
	}

	payload := echo.Map{
		"case_id":   caseID,
		"has_photo": req.PhotoObjectKey != nil,
		"has_crop":  req.CropObjectKey != nil,
		"attached":  true,
	}
	status, body, err := recordResponse(ctx, c, tx, h.idems, http.StatusOK, payload)
	if err != nil {
		return idempotencyInsertError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	return c.JSONBlob(status, body)
}

// DownloadURL handles GET /api/v1/cases/:id/media/:kind.  Access follows
// the same row-visibility rule as case reads; a case the actor cannot
// see yields the same 404 as a missing one.
func (h *MediaHandler) DownloadURL(c echo.Context) error {
	actor := middleware.ActorID(c)
	isAdmin := middleware.ActorRole(c) == model.RoleAdmin
	kind := c.Param("kind")
	if kind != MediaKindPhoto && kind != MediaKindCrop {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be photo or crop"})
	}

	rc, err := h.cases.GetForActor(c.Request().Context(), c.Param("id"), actor, isAdmin)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load case"})
	}

	var key *string
	if kind == MediaKindPhoto {
		key = rc.PhotoObjectKey
	} else {
		key = rc.CropObjectKey
	}
	if key == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no such media on this case"})
	}

	url, err := h.store.PresignGet(c.Request().Context(), *key)
	if err != nil {
		h.log.Error("presign download failed", zap.String("case_id", rc.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not sign download URL"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"url":        url,
		"kind":       kind,
		"expires_in": int(h.urlTTL.Seconds()),
	})
}

// UploadURL handles GET /api/v1/media/upload-url?kind=.  The service
// mints the object key; the client uploads directly and then attaches
// the key to a case it reported.
func (h *MediaHandler) UploadURL(c echo.Context) error {
	actor := middleware.ActorID(c)
	kind := c.QueryParam("kind")
	if kind != MediaKindPhoto && kind != MediaKindCrop {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be photo or crop"})
	}

	key := "uploads/" + actor + "/" + uuid.NewString() + "-" + kind + ".jpg"
	url, err := h.store.PresignPut(c.Request().Context(), key, "image/jpeg")
	if err != nil {
		h.log.Error("presign upload failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not sign upload URL"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"object_key": key,
		"url":        url,
		"expires_in": int(h.urlTTL.Seconds()),
	})
}
