package diagnosis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutURLDisablesClient(t *testing.T) {
	assert.Nil(t, New(""))
}

func TestAnalyzeReturnsRawJSON(t *testing.T) {
	var got analyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"species":"dog","severity":"moderate"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	payload, err := c.Analyze(context.Background(), "https://signed/photo.jpg", "injured leg")
	require.NoError(t, err)

	assert.Equal(t, "https://signed/photo.jpg", got.ImageURL)
	assert.Equal(t, "injured leg", got.Description)
	assert.JSONEq(t, `{"species":"dog","severity":"moderate"}`, payload)
}

func TestAnalyzeRejectsNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Analyze(context.Background(), "https://signed/photo.jpg", "")
	assert.Error(t, err)
}

func TestAnalyzeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Analyze(context.Background(), "https://signed/photo.jpg", "")
	assert.Error(t, err)
}
