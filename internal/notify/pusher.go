// Package notify implements the push fan-out engine: audience
// computation, dedup bookkeeping and the FCM transport.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ErrUnregistered marks a token the transport reports as permanently
// invalid.  The fan-out reacts by clearing the stored token so the
// profile drops out of future audiences until the client re-registers.
var ErrUnregistered = errors.New("push token unregistered")

// Message is one push payload.  Title and Body are empty for silent
// data-only pushes (the mute signal); Data always carries the machine
// readable fields.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// NewRescueMessage builds the visible alert dispatched to nearby
// rescuers when a case is reported.
func NewRescueMessage(caseID string, lat, lng float64) Message {
	return Message{
		Title: "Animal rescue needed nearby",
		Body:  "A new rescue case was reported in your area. Open the app to claim it.",
		Data: map[string]string{
			"type":    "new_rescue",
			"case_id": caseID,
			"lat":     fmt.Sprintf("%.6f", lat),
			"lng":     fmt.Sprintf("%.6f", lng),
		},
	}
}

// MuteMessage builds the silent data-only push that tells a non-winning
// client to stop alerting for a case somebody else claimed.
func MuteMessage(caseID, claimedBy string) Message {
	return Message{
		Data: map[string]string{
			"type":       "mute",
			"case_id":    caseID,
			"claimed_by": claimedBy,
		},
	}
}

// CaseUpdateMessage builds the terminal-status notice for the reporter.
func CaseUpdateMessage(caseID, status string) Message {
	return Message{
		Title: "Update on your rescue case",
		Body:  "Your reported case is now " + status + ".",
		Data: map[string]string{
			"type":    "case_update",
			"case_id": caseID,
			"status":  status,
		},
	}
}

// Pusher delivers one message to one device token.  Implementations
// return ErrUnregistered for permanently dead tokens and any other error
// for transient failures.
type Pusher interface {
	Send(ctx context.Context, token string, msg Message) error
}

// FCMPusher sends through the FCM HTTP API using a server key.
type FCMPusher struct {
	client    *resty.Client
	endpoint  string
	serverKey string
}

// NewFCMPusher builds an FCMPusher for the given endpoint and key.
func NewFCMPusher(endpoint, serverKey string) *FCMPusher {
	return &FCMPusher{
		client:    resty.New(),
		endpoint:  endpoint,
		serverKey: serverKey,
	}
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	// Data-only messages ride the high-priority lane so muting is prompt.
	Priority string `json:"priority"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// Send posts one message to FCM.  A non-2xx status or transport error is
// transient; the NotRegistered/InvalidRegistration result codes map to
// ErrUnregistered.
func (p *FCMPusher) Send(ctx context.Context, token string, msg Message) error {
	req := fcmRequest{To: token, Data: msg.Data, Priority: "high"}
	if msg.Title != "" || msg.Body != "" {
		req.Notification = &fcmNotification{Title: msg.Title, Body: msg.Body}
	}

	var out fcmResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "key="+p.serverKey).
		SetBody(req).
		SetResult(&out).
		Post(p.endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("fcm: status %d", resp.StatusCode())
	}
	if out.Failure > 0 && len(out.Results) > 0 {
		switch out.Results[0].Error {
		case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
			return ErrUnregistered
		default:
			return fmt.Errorf("fcm: %s", out.Results[0].Error)
		}
	}
	return nil
}
