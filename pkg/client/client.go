// Package client talks to a running autobuy API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// Client provides a typed API for the dashboard endpoints
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sets a session token obtained earlier
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.InvalidConfigurationf("invalid API URL %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 45 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the current session token
func (c *Client) Token() string {
	return c.token
}

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
	Hints      []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Login exchanges credentials for a session token and keeps it for later calls.
// code is the TOTP code and may be empty when the server does not require one.
func (c *Client) Login(ctx context.Context, username, password, code string) (time.Time, error) {
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	body := map[string]string{"username": username, "password": password}
	if code != "" {
		body["code"] = code
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return time.Time{}, err
	}
	c.token = out.Token
	return out.ExpiresAt, nil
}

// Health reports whether the service is up
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Status returns the service overview
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &s)
	return s, err
}

// Transactions returns up to limit attempts, newest first. limit <= 0 uses
// the server default.
func (c *Client) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	path := "/api/transactions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var txs []Transaction
	err := c.do(ctx, http.MethodGet, path, nil, &txs)
	return txs, err
}

// ManualBuy places a buy now. A nil amount uses the configured amount.
// A failed attempt is returned with a nil error and Status "failed".
func (c *Client) ManualBuy(ctx context.Context, amount *decimal.Decimal) (Transaction, error) {
	var body interface{}
	if amount != nil {
		body = map[string]decimal.Decimal{"amount": *amount}
	}
	var tx Transaction
	err := c.do(ctx, http.MethodPost, "/api/manual-buy", body, &tx)
	return tx, err
}

// Balances returns the account balances
func (c *Client) Balances(ctx context.Context) (Balances, error) {
	var b Balances
	err := c.do(ctx, http.MethodGet, "/api/balance", nil, &b)
	return b, err
}

// Settings returns the current buy settings
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &s)
	return s, err
}

// UpdateSettings applies u and returns the resulting settings
func (c *Client) UpdateSettings(ctx context.Context, u SettingsUpdate) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodPut, "/api/settings", u, &s)
	return s, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build request %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if resp.StatusCode >= 300 || (env.Status != "success" && len(env.Data) == 0) {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message, Hints: env.Hints}
		var detail string
		if json.Unmarshal(env.Error, &detail) == nil {
			apiErr.Detail = detail
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.Mark(apiErr, errors.ErrUnauthorized)
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "decode response")
}
