package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/middleware"
	"github.com/strayaid/rescue-dispatch/internal/model"
	"github.com/strayaid/rescue-dispatch/internal/repository"
)

// ProfileHandler serves the actor-profile endpoints.  Profiles are
// bootstrapped lazily: the first authenticated call creates the row from
// the token's subject and role claims.
type ProfileHandler struct {
	profiles *repository.ProfileRepo
	log      *zap.Logger
}

// NewProfileHandler wires a ProfileHandler.
func NewProfileHandler(profiles *repository.ProfileRepo, log *zap.Logger) *ProfileHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileHandler{profiles: profiles, log: log}
}

type profileResponse struct {
	ID            string   `json:"id"`
	Role          string   `json:"role"`
	Verified      bool     `json:"verified"`
	TrustScore    int      `json:"trust_score"`
	HomeLatitude  *float64 `json:"home_latitude"`
	HomeLongitude *float64 `json:"home_longitude"`
	AlertRadiusM  int      `json:"alert_radius_m"`
	HasPushToken  bool     `json:"has_push_token"`
}

func profileResponseOf(p *model.UserProfile) profileResponse {
	return profileResponse{
		ID:            p.ID,
		Role:          p.Role,
		Verified:      p.Verified,
		TrustScore:    p.TrustScore,
		HomeLatitude:  p.HomeLatitude,
		HomeLongitude: p.HomeLongitude,
		AlertRadiusM:  p.AlertRadiusM,
		HasPushToken:  p.PushToken != nil,
	}
}

// Me handles GET /api/v1/me.  Creates the profile if this is the actor's
// first contact.
func (h *ProfileHandler) Me(c echo.Context) error {
	p, err := h.profiles.Ensure(c.Request().Context(), middleware.ActorID(c), middleware.ActorRole(c))
	if err != nil {
		h.log.Error("profile bootstrap failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	return c.JSON(http.StatusOK, profileResponseOf(p))
}

type updateAreaRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   int     `json:"radius_m"`
}

// UpdateArea handles PUT /api/v1/profile/area.  The radius must be one
// of the supported values; it decides which new-case alerts this actor
// receives.
func (h *ProfileHandler) UpdateArea(c echo.Context) error {
	actor := middleware.ActorID(c)

	var req updateAreaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !model.ValidCoordinates(req.Latitude, req.Longitude) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coordinates"})
	}
	if !model.ValidAlertRadius(req.RadiusM) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported radius_m"})
	}

	ctx := c.Request().Context()
	if _, err := h.profiles.Ensure(ctx, actor, middleware.ActorRole(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if err := h.profiles.UpdateHomeArea(ctx, actor, req.Latitude, req.Longitude, req.RadiusM); err != nil {
		h.log.Error("update area failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update area"})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": true})
}

type updateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateLocation handles PUT /api/v1/profile/location.
func (h *ProfileHandler) UpdateLocation(c echo.Context) error {
	actor := middleware.ActorID(c)

	var req updateLocationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !model.ValidCoordinates(req.Latitude, req.Longitude) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coordinates"})
	}

	ctx := c.Request().Context()
	if _, err := h.profiles.Ensure(ctx, actor, middleware.ActorRole(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if err := h.profiles.UpdateLocation(ctx, actor, req.Latitude, req.Longitude); err != nil {
		h.log.Error("update location failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update location"})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": true})
}

type updateTokenRequest struct {
	Token string `json:"token"`
}

// UpdateToken handles PUT /api/v1/profile/fcm-token.  Registering a
// token makes the actor reachable by fan-out; tokens the transport later
// reports unregistered are cleared automatically.
func (h *ProfileHandler) UpdateToken(c echo.Context) error {
	actor := middleware.ActorID(c)

	var req updateTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	ctx := c.Request().Context()
	if _, err := h.profiles.Ensure(ctx, actor, middleware.ActorRole(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if err := h.profiles.SetPushToken(ctx, actor, req.Token); err != nil {
		h.log.Error("update push token failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update token"})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": true})
}
