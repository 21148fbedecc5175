package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strayaid/rescue-dispatch/internal/model"
)

type fakeReplayStore struct {
	rec *model.IdempotencyRecord
	err error

	gotActor    string
	gotEndpoint string
	gotKey      string
}

func (f *fakeReplayStore) Lookup(_ context.Context, actorID, endpoint, key string) (*model.IdempotencyRecord, error) {
	f.gotActor = actorID
	f.gotEndpoint = endpoint
	f.gotKey = key
	return f.rec, f.err
}

func idemRequest(key string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/c1/claim", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/cases/:id/claim")
	c.Set("user_id", "actor-1")
	return c, rec
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	handlerRan := false
	mw := Idempotency(&fakeReplayStore{})
	h := mw(func(c echo.Context) error {
		handlerRan = true
		return c.NoContent(http.StatusOK)
	})

	c, rec := idemRequest("")
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, handlerRan)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := &fakeReplayStore{rec: &model.IdempotencyRecord{
		Status: http.StatusCreated,
		Body:   []byte(`{"id":"case-1"}`),
	}}
	handlerRan := false
	mw := Idempotency(store)
	h := mw(func(c echo.Context) error {
		handlerRan = true
		return c.NoContent(http.StatusOK)
	})

	c, rec := idemRequest("retry-key")
	require.NoError(t, h(c))

	// The wrapped handler never runs: the stored bytes come back verbatim
	// with the original status.
	assert.False(t, handlerRan)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"case-1"}`, rec.Body.String())

	assert.Equal(t, "actor-1", store.gotActor)
	assert.Equal(t, "POST /api/v1/cases/:id/claim", store.gotEndpoint)
	assert.Equal(t, "retry-key", store.gotKey)
}

func TestIdempotencyFirstRequestPassesThroughWithScope(t *testing.T) {
	mw := Idempotency(&fakeReplayStore{})
	var key, endpoint string
	h := mw(func(c echo.Context) error {
		key, endpoint = IdempotencyScope(c)
		return c.NoContent(http.StatusOK)
	})

	c, rec := idemRequest("first-key")
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first-key", key)
	assert.Equal(t, "POST /api/v1/cases/:id/claim", endpoint)
}

func TestIdempotencyStoreFailureIsRetryable(t *testing.T) {
	mw := Idempotency(&fakeReplayStore{err: context.DeadlineExceeded})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	c, rec := idemRequest("some-key")
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
