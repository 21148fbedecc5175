package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Request-contract tests: every malformed request must be rejected
// before any store or transaction is touched, so the handlers here run
// with nil dependencies on purpose.

func jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "actor-1")
	c.Set("role", "citizen")
	return c, rec
}

func TestCreateRejectsInvalidCoordinates(t *testing.T) {
	h := NewCaseHandler(nil, nil, nil, nil, nil)
	c, rec := jsonRequest(http.MethodPost, "/api/v1/cases", `{"latitude":91,"longitude":0}`)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRejectsOutOfRangeSeverity(t *testing.T) {
	h := NewCaseHandler(nil, nil, nil, nil, nil)
	c, rec := jsonRequest(http.MethodPost, "/api/v1/cases",
		`{"latitude":28.6,"longitude":77.2,"wound_severity":11}`)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	h := NewCaseHandler(nil, nil, nil, nil, nil)
	c, rec := jsonRequest(http.MethodPost, "/api/v1/cases/c1/transition", `{"next_status":"done"}`)
	c.SetParamNames("id")
	c.SetParamValues("c1")
	require.NoError(t, h.Transition(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNearbyRequiresCoordinates(t *testing.T) {
	h := NewCaseHandler(nil, nil, nil, nil, nil)

	c, rec := jsonRequest(http.MethodGet, "/api/v1/cases", "")
	require.NoError(t, h.ListNearby(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = jsonRequest(http.MethodGet, "/api/v1/cases?lat=95&lng=77.2", "")
	require.NoError(t, h.ListNearby(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNearbyRejectsBadRadius(t *testing.T) {
	h := NewCaseHandler(nil, nil, nil, nil, nil)
	c, rec := jsonRequest(http.MethodGet, "/api/v1/cases?lat=28.6&lng=77.2&radius=-5", "")
	require.NoError(t, h.ListNearby(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachRequiresAtLeastOneKey(t *testing.T) {
	h := NewMediaHandler(nil, nil, nil, 0, nil)
	c, rec := jsonRequest(http.MethodPost, "/api/v1/cases/c1/media", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("c1")
	require.NoError(t, h.Attach(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadURLRejectsUnknownKind(t *testing.T) {
	h := NewMediaHandler(nil, nil, nil, 0, nil)
	c, rec := jsonRequest(http.MethodGet, "/api/v1/cases/c1/media/thumbnail", "")
	c.SetParamNames("id", "kind")
	c.SetParamValues("c1", "thumbnail")
	require.NoError(t, h.DownloadURL(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadURLRejectsUnknownKind(t *testing.T) {
	h := NewMediaHandler(nil, nil, nil, 0, nil)
	c, rec := jsonRequest(http.MethodGet, "/api/v1/media/upload-url?kind=gif", "")
	require.NoError(t, h.UploadURL(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAreaRejectsUnsupportedRadius(t *testing.T) {
	h := NewProfileHandler(nil, nil)
	c, rec := jsonRequest(http.MethodPut, "/api/v1/profile/area",
		`{"latitude":28.6,"longitude":77.2,"radius_m":3000}`)
	require.NoError(t, h.UpdateArea(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// A lost claim answers with the authoritative state so the losing
// client can reconcile; this pins the wire contract clients parse.
func TestLostClaimResponseShape(t *testing.T) {
	winner := "rescuer-1"
	b, err := json.Marshal(claimResponse{
		Won:             false,
		CurrentStatus:   "claimed",
		CurrentAssignee: &winner,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"won":false,"current_status":"claimed","current_assignee":"rescuer-1"}`, string(b))
}

func TestRejectedTransitionResponseShape(t *testing.T) {
	b, err := json.Marshal(transitionResponse{OK: false, CurrentStatus: "claimed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"current_status":"claimed"}`, string(b))
}

func TestUpdateTokenRequiresToken(t *testing.T) {
	h := NewProfileHandler(nil, nil)
	c, rec := jsonRequest(http.MethodPut, "/api/v1/profile/fcm-token", `{"token":"  "}`)
	require.NoError(t, h.UpdateToken(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
