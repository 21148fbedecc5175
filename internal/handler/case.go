package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/middleware"
	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/queue"
	"github.com/strayaid/rescue-dispatch/internal/repository"
	queue_publisher "github.com/strayaid/rescue-dispatch/internal/service"
)

// mutationTimeout bounds the synchronous path of every mutating request.
// Fan-out and cleanup are queue-driven and run on their own clocks.
const mutationTimeout = 5 * time.Second

// CaseHandler serves the case lifecycle endpoints.  Every mutation runs
// in one transaction together with its idempotency record, and events
// are published only after that transaction commits.
type CaseHandler struct {
	cases    *repository.CaseRepo
	profiles *repository.ProfileRepo
	idems    *repository.IdempotencyRepo
	pub      *queue_publisher.Publisher
	log      *zap.Logger
}

// NewCaseHandler wires a CaseHandler.
func NewCaseHandler(cases *repository.CaseRepo, profiles *repository.ProfileRepo, idems *repository.IdempotencyRepo, pub *queue_publisher.Publisher, log *zap.Logger) *CaseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CaseHandler{cases: cases, profiles: profiles, idems: idems, pub: pub, log: log}
}

type createCaseRequest struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Description   *string `json:"description"`
	WoundSeverity *int    `json:"wound_severity"`
}

// Create handles POST /api/v1/cases.  The new case starts pending and
// visible; the post-commit case.opened event drives fan-out and the
// diagnosis enrichment.
func (h *CaseHandler) Create(c echo.Context) error {
	actor := middleware.ActorID(c)

	var req createCaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !model.ValidCoordinates(req.Latitude, req.Longitude) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coordinates"})
	}
	if req.WoundSeverity != nil && !model.ValidSeverity(*req.WoundSeverity) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "wound_severity must be between 1 and 10"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), mutationTimeout)
	defer cancel()

	// Profile bootstrap so the reporter exists before any fan-out query
	// references them.
	if _, err := h.profiles.Ensure(ctx, actor, middleware.ActorRole(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}

	rc := &model.RescueCase{
		ID:            uuid.NewString(),
		ReporterID:    actor,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Description:   req.Description,
		WoundSeverity: req.WoundSeverity,
		Status:        model.StatusPending,
		IsVisible:     true,
	}

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

	if err := h.cases.CreateTx(ctx, tx, rc); err != nil {
		h.log.Error("create case failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create case"})
	}

	created, err := h.cases.GetTx(ctx, tx, rc.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load case"})
	}

	status, body, err := recordResponse(ctx, c, tx, h.idems, http.StatusCreated, caseResponseOf(created))
	if err != nil {
		return idempotencyInsertError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	if h.pub != nil {
		ev := queue.CaseOpenedEvent{
			CaseID:     created.ID,
			ReporterID: created.ReporterID,
			Latitude:   created.Latitude,
			Longitude:  created.Longitude,
			ReportedAt: created.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := h.pub.Publish(context.Background(), queue.CaseOpenedQueue, ev); err != nil {
			h.log.Warn("case.opened publish failed", zap.String("case_id", created.ID), zap.Error(err))
		}
	}

	return c.JSONBlob(status, body)
}

type claimResponse struct {
	Won             bool    `json:"won"`
	CurrentStatus   string  `json:"current_status"`
	CurrentAssignee *string `json:"current_assignee"`
}

// Claim handles POST /api/v1/cases/:id/claim.  The outcome rides on one
// conditional UPDATE: under concurrent attempts exactly one caller wins.
// Losing is a normal answer, not an error; the loser gets the
// authoritative status and assignee so clients can reconcile.
func (h *CaseHandler) Claim(c echo.Context) error {
	actor := middleware.ActorID(c)
	caseID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), mutationTimeout)
	defer cancel()

	profile, err := h.profiles.Ensure(ctx, actor, middleware.ActorRole(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if !profile.CanClaim() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "role not allowed to claim cases"})
	}

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

	won, err := h.cases.ClaimTx(ctx, tx, caseID, actor)
	if err != nil {
		h.log.Error("claim failed", zap.String("case_id", caseID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not claim case"})
	}

	current, err := h.cases.GetTx(ctx, tx, caseID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load case"})
	}

	httpStatus := http.StatusOK
	if !won {
		httpStatus = http.StatusConflict
	}
	payload := claimResponse{
		Won:             won,
		CurrentStatus:   string(current.Status),
		CurrentAssignee: current.AssignedRescuerID,
	}

	status, body, err := recordResponse(ctx, c, tx, h.idems, httpStatus, payload)
	if err != nil {
		return idempotencyInsertError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	if won && h.pub != nil {
		ev := queue.CaseClaimedEvent{
			CaseID:    caseID,
			RescuerID: actor,
			ClaimedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.pub.Publish(context.Background(), queue.CaseClaimedQueue, ev); err != nil {
			h.log.Warn("case.claimed publish failed", zap.String("case_id", caseID), zap.Error(err))
		}
	}

	return c.JSONBlob(status, body)
}

type transitionRequest struct {
	NextStatus string `json:"next_status"`
}

type transitionResponse struct {
	OK            bool   `json:"ok"`
	CurrentStatus string `json:"current_status"`
}

// Transition handles POST /api/v1/cases/:id/transition.  Authorization
// (reporter, assignee or admin) and transition-table membership are both
// checked against the row locked FOR UPDATE, and the UPDATE re-checks
// the observed status, so stale-state races surface as conflicts.
// Admin widens who may act, never which moves exist.
func (h *CaseHandler) Transition(c echo.Context) error {
	actor := middleware.ActorID(c)
	caseID := c.Param("id")

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	next, ok := model.ParseCaseStatus(req.NextStatus)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status: " + req.NextStatus})
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

	current, err := h.cases.GetTx(ctx, tx, caseID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load case"})
	}

	applied := false
	if current.ActorMayTransition(actor, middleware.ActorRole(c)) && current.Status.CanTransitionTo(next) {
		applied, err = h.cases.TransitionTx(ctx, tx, caseID, current.Status, next)
		if err != nil {
			h.log.Error("transition failed", zap.String("case_id", caseID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not apply transition"})
		}
	}

	httpStatus := http.StatusOK
	resultStatus := next
	if !applied {
		httpStatus = http.StatusConflict
		resultStatus = current.Status
	}
	payload := transitionResponse{OK: applied, CurrentStatus: string(resultStatus)}

	status, body, err := recordResponse(ctx, c, tx, h.idems, httpStatus, payload)
	if err != nil {
		return idempotencyInsertError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not commit"})
	}
	committed = true

	if applied && next.IsTerminal() && h.pub != nil {
		ev := queue.CaseClosedEvent{
			CaseID:   caseID,
			ActorID:  actor,
			Status:   string(next),
			ClosedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.pub.Publish(context.Background(), queue.CaseClosedQueue, ev); err != nil {
			h.log.Warn("case.closed publish failed", zap.String("case_id", caseID), zap.Error(err))
		}
	}

	return c.JSONBlob(status, body)
}

// Get handles GET /api/v1/cases/:id under the row-visibility rule.  An
// invisible case is indistinguishable from a missing one.
func (h *CaseHandler) Get(c echo.Context) error {
	actor := middleware.ActorID(c)
	isAdmin := middleware.ActorRole(c) == model.RoleAdmin

	rc, err := h.cases.GetForActor(c.Request().Context(), c.Param("id"), actor, isAdmin)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load case"})
	}
	return c.JSON(http.StatusOK, caseResponseOf(rc))
}

const (
	feedDefaultRadiusM = 5000
	feedMaxRadiusM     = 50000
	feedLimit          = 100
)

// ListNearby handles GET /api/v1/cases?lat=&lng=&radius= and returns
// visible cases around the point, newest first.
func (h *CaseHandler) ListNearby(c echo.Context) error {
	lat, errLat := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.QueryParam("lng"), 64)
	if errLat != nil || errLng != nil || !model.ValidCoordinates(lat, lng) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lat and lng query parameters are required"})
	}

	radius := feedDefaultRadiusM
	if raw := c.QueryParam("radius"); raw != "" {
		r, err := strconv.Atoi(raw)
		if err != nil || r <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid radius"})
		}
		if r > feedMaxRadiusM {
			r = feedMaxRadiusM
		}
		radius = r
	}

	cases, err := h.cases.ListNearby(c.Request().Context(), lat, lng, radius, feedLimit)
	if err != nil {
		h.log.Error("feed query failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load cases"})
	}

	out := make([]caseResponse, 0, len(cases))
	for i := range cases {
		out = append(out, caseResponseOf(&cases[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"cases": out, "radius_m": radius})
}
