// ABOUTME: HTTP client for the restaurant backend API.
// ABOUTME: Resolves platform users to accounts and serves menu/order lookups.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotLinked indicates the platform user has no backend account.
var ErrNotLinked = fmt.Errorf("platform user not linked to an account")

// Account identifies a business-domain user.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MenuItem is one entry of the restaurant menu.
type MenuItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// Order is one entry of a user's order history.
type Order struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a backend client. The token is attached as a bearer token to
// every request.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "backend"),
	}
}

// UserByPlatform resolves a messaging-platform identity to its backend
// account. Returns ErrNotLinked when the backend has no mapping.
func (c *Client) UserByPlatform(ctx context.Context, platform, platformID string) (*Account, error) {
	path := fmt.Sprintf("/api/v1/users/by-platform/%s/%s",
		url.PathEscape(platform), url.PathEscape(platformID))

	var account Account
	if err := c.get(ctx, path, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// NotifySupportRequest tells the backend that the account opened a support
// chat. Best effort: callers log failures and carry on.
func (c *Client) NotifySupportRequest(ctx context.Context, accountID string) error {
	body := fmt.Sprintf(`{"userId":%q}`, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/notifications/support", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Menu fetches the current menu.
func (c *Client) Menu(ctx context.Context) ([]MenuItem, error) {
	var items []MenuItem
	if err := c.get(ctx, "/api/v1/menu", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Orders fetches the account's order history, most recent first.
func (c *Client) Orders(ctx context.Context, accountID string) ([]Order, error) {
	var orders []Order
	path := "/api/v1/orders?userId=" + url.QueryEscape(accountID)
	if err := c.get(ctx, path, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotLinked
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding backend response: %w", err)
	}
	return nil
}
