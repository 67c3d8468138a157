// Package connect asks a voice backend to start a bot and returns the
// credentials for joining its room.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is the body of POST /connect.
type Request struct {
	BotType string `json:"botType,omitempty"`
	RoomURL string `json:"room_url,omitempty"`
}

// Credentials is the backend's answer to a connect request.
type Credentials struct {
	RoomURL string `json:"room_url"`
	Token   string `json:"token"`
}

// SignalURL returns the room URL with the token attached as a query
// parameter, ready to be dialed.
func (c Credentials) SignalURL() (string, error) {
	u, err := url.Parse(c.RoomURL)
	if err != nil {
		return "", fmt.Errorf("room url: %w", err)
	}
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type Client struct {
	URL  string
	HTTP *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Connect requests a new bot of the given type.
func (c *Client) Connect(ctx context.Context, req Request) (Credentials, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Credentials{}, err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(r)
	if err != nil {
		return Credentials{}, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Credentials{}, fmt.Errorf("connect: %s: %s", resp.Status, readDetail(resp.Body))
	}
	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("connect: decode: %w", err)
	}
	if creds.RoomURL == "" {
		return Credentials{}, fmt.Errorf("connect: response missing room_url")
	}
	return creds, nil
}

// Health probes the backend's /health endpoint next to the connect URL.
func (c *Client) Health(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimSuffix(u.Path, "/connect") + "/health"
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(r)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: %s", resp.Status)
	}
	return nil
}

// readDetail extracts a FastAPI style {"detail": ...} message, falling back
// to the raw body.
func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var d struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(b, &d) == nil && d.Detail != "" {
		return d.Detail
	}
	return strings.TrimSpace(string(b))
}
