// Package api is a small REST client for the admin backend the push feed
// belongs to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"orderfeed/internal/model"
)

const (
	DefaultBaseURL    = "https://api.marasimpex.com"
	DefaultOrdersPath = "/admin/orders"
	defaultTimeout    = 10 * time.Second
)

// ErrUnauthorized is returned for a 401 response.
var ErrUnauthorized = errors.New("api: unauthorized")

// StatusError is any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	BaseURL    string
	Token      string
	OrdersPath string
	HTTP       *http.Client
	Log        *zap.Logger
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		OrdersPath: DefaultOrdersPath,
		HTTP:       &http.Client{Timeout: defaultTimeout},
		Log:        zap.NewNop(),
	}
}

// ListOrders fetches the full order list. The backend answers with either a
// bare array or an object wrapping it under "orders" or "data".
func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	body, err := c.get(ctx, c.OrdersPath)
	if err != nil {
		return nil, err
	}
	orders, err := decodeOrders(body)
	if err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	c.Log.Debug("listed orders", zap.Int("count", len(orders)))
	return orders, nil
}

func decodeOrders(body []byte) ([]model.Order, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var orders []model.Order
		if err := json.Unmarshal(body, &orders); err != nil {
			return nil, err
		}
		return orders, nil
	}
	var wrapped struct {
		Orders []model.Order `json:"orders"`
		Data   []model.Order `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Orders != nil {
		return wrapped.Orders, nil
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return []model.Order{}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
