package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// AuthError reports a non-success response from the signed-URL exchange.
// It is fatal to the session; there is no retry.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("signed-url exchange failed: HTTP %d %s", e.Status, e.Body)
}

// ClientConfig configures the agent-platform client for one deployment.
type ClientConfig struct {
	APIKey           string
	AgentID          string
	APIBaseURL       string
	HandshakeTimeout time.Duration
	HTTPClient       *http.Client
}

// Client exchanges credentials for a conversation URL and dials the
// agent websocket.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.elevenlabs.io"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// SignedURL exchanges the agent id and API key for a single-use websocket
// URL. A non-2xx response yields an *AuthError.
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.APIBaseURL, "/") + "/v1/convai/conversation/get-signed-url")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("agent_id", c.cfg.AgentID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signed-url request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode signed-url response: %w", err)
	}
	if strings.TrimSpace(payload.SignedURL) == "" {
		return "", fmt.Errorf("signed-url response missing signed_url")
	}
	return payload.SignedURL, nil
}

// Dial opens the conversation websocket at a previously signed URL.
func (c *Client) Dial(ctx context.Context, signedURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial conversation websocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial conversation websocket: %w", err)
	}
	return conn, nil
}
