package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fcmServer(t *testing.T, status int, body fcmResponse, gotAuth *string, gotReq *fcmRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		if gotReq != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(gotReq))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestSendSuccess(t *testing.T) {
	var auth string
	var req fcmRequest
	srv := fcmServer(t, http.StatusOK, fcmResponse{Success: 1}, &auth, &req)
	defer srv.Close()

	p := NewFCMPusher(srv.URL, "server-key")
	err := p.Send(context.Background(), "tok-1", NewRescueMessage("case-1", 28.6, 77.2))
	require.NoError(t, err)

	assert.Equal(t, "key=server-key", auth)
	assert.Equal(t, "tok-1", req.To)
	assert.Equal(t, "high", req.Priority)
	require.NotNil(t, req.Notification)
	assert.Equal(t, "new_rescue", req.Data["type"])
	assert.Equal(t, "case-1", req.Data["case_id"])
}

func TestSendDataOnlyOmitsNotification(t *testing.T) {
	var req fcmRequest
	srv := fcmServer(t, http.StatusOK, fcmResponse{Success: 1}, nil, &req)
	defer srv.Close()

	p := NewFCMPusher(srv.URL, "server-key")
	require.NoError(t, p.Send(context.Background(), "tok-1", MuteMessage("case-1", "winner")))

	// The mute is silent: data only, no visible notification block.
	assert.Nil(t, req.Notification)
	assert.Equal(t, "mute", req.Data["type"])
	assert.Equal(t, "winner", req.Data["claimed_by"])
}

func TestSendUnregisteredToken(t *testing.T) {
	srv := fcmServer(t, http.StatusOK, fcmResponse{
		Failure: 1,
		Results: []struct {
			Error string `json:"error"`
		}{{Error: "NotRegistered"}},
	}, nil, nil)
	defer srv.Close()

	p := NewFCMPusher(srv.URL, "server-key")
	err := p.Send(context.Background(), "dead", MuteMessage("case-1", "winner"))
	assert.ErrorIs(t, err, ErrUnregistered)
}

func TestSendServerErrorIsTransient(t *testing.T) {
	srv := fcmServer(t, http.StatusServiceUnavailable, fcmResponse{}, nil, nil)
	defer srv.Close()

	p := NewFCMPusher(srv.URL, "server-key")
	err := p.Send(context.Background(), "tok-1", MuteMessage("case-1", "winner"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnregistered)
}
