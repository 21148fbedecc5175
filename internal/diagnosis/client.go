// Package diagnosis calls the external AI wound-diagnosis service.  The
// enrichment is strictly best-effort: it runs on the queue consumer
// after a case is created and a failure only means the case carries no
// diagnosis payload.
package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the diagnosis endpoint.  A nil Client (unset
// DIAGNOSIS_URL) disables enrichment entirely.
type Client struct {
	http *resty.Client
	url  string
}

// New returns a Client for the given endpoint, or nil when url is empty.
func New(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		http: resty.New().SetTimeout(30 * time.Second),
		url:  url,
	}
}

type analyzeRequest struct {
	ImageURL    string `json:"image_url"`
	Description string `json:"description,omitempty"`
}

// Analyze submits the case photo (as a presigned URL) plus the optional
// reporter description and returns the structured diagnosis as raw JSON
// suitable for the rescue_cases.diagnosis column.
func (c *Client) Analyze(ctx context.Context, imageURL, description string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(analyzeRequest{ImageURL: imageURL, Description: description}).
		Post(c.url)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("diagnosis: status %d", resp.StatusCode())
	}
	body := resp.Body()
	if !json.Valid(body) {
		return "", fmt.Errorf("diagnosis: response is not valid JSON")
	}
	return string(body), nil
}
