// Package a2aclient provides a client for the A2A protocol engine HTTP API.
package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RecipientAny asks the engine to pick a recipient via its load balancer.
const RecipientAny = "any"

// Client is an A2A engine API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client. An empty baseURL targets a local engine.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("a2a error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Message is a protocol message as returned by the engine.
type Message struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	CreatedAt int64          `json:"created_at"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SendMessageRequest is the POST /messages body.
type SendMessageRequest struct {
	Kind      string         `json:"kind"`
	Sender    string         `json:"sender,omitempty"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SendMessage submits a message through the send pipeline. The returned
// message carries the engine-assigned id and resolved recipient.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, "POST", "/messages", body)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessage fetches a message by id. An unknown id returns (nil, nil).
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	respBody, err := c.doRequest(ctx, "GET", "/messages/"+url.PathEscape(id), nil)
	if err != nil || respBody == nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Peer is one entry in the engine's registry snapshot.
type Peer struct {
	AgentID    string  `json:"agentId"`
	Status     string  `json:"status"`
	LastSeen   int64   `json:"lastSeen"`
	StaleSince int64   `json:"staleSince,omitempty"`
	Load       int64   `json:"load"`
	Weight     float64 `json:"weight"`
}

// PeersResponse is the GET /peers payload.
type PeersResponse struct {
	Peers []Peer `json:"peers"`
	Count int    `json:"count"`
}

// ListPeers returns every peer the engine knows about.
func (c *Client) ListPeers(ctx context.Context) (*PeersResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/peers", nil)
	if err != nil {
		return nil, err
	}

	var resp PeersResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPeer fetches one peer. An unknown agent id returns (nil, nil).
func (c *Client) GetPeer(ctx context.Context, agentID string) (*Peer, error) {
	respBody, err := c.doRequest(ctx, "GET", "/peers/"+url.PathEscape(agentID), nil)
	if err != nil || respBody == nil {
		return nil, err
	}

	var peer Peer
	if err := json.Unmarshal(respBody, &peer); err != nil {
		return nil, err
	}
	return &peer, nil
}

// SecurityMetrics mirrors the engine's durable failure counters.
type SecurityMetrics struct {
	AgentID             string `json:"agent_id"`
	EncryptionFailures  int64  `json:"encryption_failures"`
	DecryptionFailures  int64  `json:"decryption_failures"`
	RateLimitViolations int64  `json:"rate_limit_violations"`
	CompressionFailures int64  `json:"compression_failures"`
	InvalidMessages     int64  `json:"invalid_messages"`
	LastUpdate          int64  `json:"last_update"`
}

// GetSecurityMetrics fetches the engine's security counters.
func (c *Client) GetSecurityMetrics(ctx context.Context) (*SecurityMetrics, error) {
	respBody, err := c.doRequest(ctx, "GET", "/security/metrics", nil)
	if err != nil {
		return nil, err
	}

	var m SecurityMetrics
	if err := json.Unmarshal(respBody, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SecurityEvent is one recorded security event.
type SecurityEvent struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Kind      string         `json:"kind"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"ts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventQuery filters GET /security/events.
type EventQuery struct {
	Kind     string
	Severity string
	Since    int64
	Until    int64
	Limit    int
}

// SecurityEventsResponse is the GET /security/events payload.
type SecurityEventsResponse struct {
	Events []SecurityEvent `json:"events"`
	Count  int             `json:"count"`
}

// ListSecurityEvents returns recorded security events, newest first.
func (c *Client) ListSecurityEvents(ctx context.Context, q EventQuery) (*SecurityEventsResponse, error) {
	params := url.Values{}
	if q.Kind != "" {
		params.Set("kind", q.Kind)
	}
	if q.Severity != "" {
		params.Set("severity", q.Severity)
	}
	if q.Since > 0 {
		params.Set("since", strconv.FormatInt(q.Since, 10))
	}
	if q.Until > 0 {
		params.Set("until", strconv.FormatInt(q.Until, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/security/events"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp SecurityEventsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports whether the engine and its backends are reachable.
func (c *Client) Health(ctx context.Context) error {
	respBody, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("engine %s", resp.Status)
	}
	return nil
}
