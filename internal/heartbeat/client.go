package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"lb-heartbeat-agent/internal/model"
)

const (
	HeartbeatPath = "/api/lb/v1/heartbeat"
	APIKeyHeader  = "X-LB-API-Key"

	pingTimeout     = 5 * time.Second
	deliveryTimeout = 10 * time.Second
	maxBodyLog      = 4 << 10
)

// Client talks to the controller's load-balancer API.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
}

// NewClient creates a client for baseURL (e.g. http://host:port). Per-call
// timeouts are applied through the request context.
func NewClient(baseURL, apiKey, version string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		userAgent: "lb-heartbeat-agent/" + version,
		http:      httpClient,
	}
}

// Ping issues a bare GET against the controller base URL and returns how
// long it took. The status code and body are ignored.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, configError(err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	res, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, transportError("latency ping", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyLog))
	_ = res.Body.Close()
	return elapsed, nil
}

// Deliver POSTs hb to the heartbeat endpoint. Only a 200 counts as accepted.
func (c *Client) Deliver(ctx context.Context, hb model.Heartbeat, requestID string) (model.HeartbeatAck, error) {
	var ack model.HeartbeatAck

	payload, err := json.Marshal(hb)
	if err != nil {
		return ack, unexpectedError("encode heartbeat", err)
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+HeartbeatPath, bytes.NewReader(payload))
	if err != nil {
		return ack, configError(err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return ack, transportError("deliver heartbeat", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyLog))
	if res.StatusCode != http.StatusOK {
		return ack, &Error{
			Kind:       KindStatus,
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	// The acknowledgement is informational; an unexpected body still counts
	// as delivered.
	_ = json.Unmarshal(body, &ack)
	return ack, nil
}
