package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/agentcore/server/pkg/types"
)

// Client is a minimal HTTP client over a TestServer, grounded on the
// teacher's citest/testutil.TestClient shape but trimmed to the
// session/event surface the citest/server specs exercise.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient wraps ts's base URL.
func NewClient(ts *TestServer) *Client {
	return &Client{baseURL: ts.BaseURL, http: &http.Client{}}
}

// CreateSession calls POST /sessions.
func (c *Client) CreateSession(ctx context.Context, title string) (*types.Session, error) {
	body, _ := json.Marshal(map[string]string{"title": title})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create session: unexpected status %d", resp.StatusCode)
	}
	var sess types.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession calls DELETE /sessions/{id}.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/sessions/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Get issues a GET against path (relative to the server base URL) and
// returns the raw response for the spec to assert on.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// ReadBody drains and closes resp.Body.
func ReadBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
