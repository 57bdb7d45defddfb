package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/healthlock/consent-node/internal/log"
)

const (
	deliveryTimeout = 5 * time.Second
	maxRetries      = 3
)

// HTTPSink delivers events to the audit trail collaborator over HTTP with bounded
// retries and backoff.
type HTTPSink struct {
	url    string
	client *retryablehttp.Client
}

// NewHTTPSink returns a sink posting events to url.
func NewHTTPSink(url string) *HTTPSink {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.HTTPClient.Timeout = deliveryTimeout
	client.Logger = nil
	return &HTTPSink{url: url, client: client}
}

// Emit posts the event. Failures are logged and swallowed.
func (s *HTTPSink) Emit(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Error(ctx, "marshalling audit event", err, "action", ev.Action)
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		log.Error(ctx, "building audit request", err, "action", ev.Action)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error(ctx, "delivering audit event", err, "action", ev.Action)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		log.Warn(ctx, "audit trail rejected event", "status", resp.StatusCode, "action", ev.Action)
	}
}
