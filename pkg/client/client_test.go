package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

type fakeAPI struct {
	t        *testing.T
	token    string
	lastBody map[string]interface{}
	lastPath string
}

func (f *fakeAPI) reply(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode: %v", err)
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastPath = r.URL.RequestURI()
	f.lastBody = nil
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &f.lastBody)
	}

	if r.URL.Path == "/api/auth/login" {
		if f.lastBody["password"] != "hunter2" {
			f.reply(w, http.StatusUnauthorized, map[string]interface{}{"status": "error", "message": "Invalid credentials"})
			return
		}
		f.reply(w, http.StatusOK, map[string]interface{}{
			"status": "success",
			"data":   map[string]interface{}{"token": "tok-1", "expires_at": "2026-03-02T20:00:00Z"},
		})
		return
	}
	if r.URL.Path == "/health" {
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]interface{}{"status": "healthy", "running": true}})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		f.reply(w, http.StatusUnauthorized, map[string]interface{}{"status": "error", "message": "Missing or invalid token"})
		return
	}

	switch r.URL.Path {
	case "/api/status":
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]interface{}{
			"running":        true,
			"pending_orders": 1,
			"settings":       map[string]interface{}{"product_id": "BTC-EUR", "amount": "30"},
			"jobs":           []map[string]interface{}{{"id": "buy_job", "trigger": "daily at 08:00 UTC", "next_run": "2026-03-03T08:00:00Z"}},
		}})
	case "/api/transactions":
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": []map[string]interface{}{
			{"id": "tx-2", "amount": "30", "price": "50000", "status": "success", "order_id": "abc123"},
			{"id": "tx-1", "amount": "30", "price": nil, "status": "failed", "error": "boom"},
		}})
	case "/api/manual-buy":
		amount := "30"
		if a, ok := f.lastBody["amount"].(string); ok {
			amount = a
		}
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]interface{}{"id": "tx-3", "amount": amount, "status": "success", "manual": true}})
	case "/api/settings":
		if r.Method == http.MethodPut {
			if f.lastBody["buy_time"] == "25:00" {
				f.reply(w, http.StatusBadRequest, map[string]interface{}{
					"status": "error", "message": "Settings rejected", "error": "hour must be 0-23", "hints": []string{"use HH:MM"},
				})
				return
			}
		}
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]interface{}{"product_id": "BTC-EUR", "frequency": "monthly", "monthly_day": 15}})
	case "/api/balance":
		f.reply(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]interface{}{
			"quote":    map[string]interface{}{"currency": "EUR", "available": "120"},
			"balances": []map[string]interface{}{{"currency": "EUR", "available": "120"}},
		}})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, token: "tok-1"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, api
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://nope"} {
		if _, err := NewClient(raw); !errors.IsInvalidConfiguration(err) {
			t.Errorf("NewClient(%q) error = %v, want invalid configuration", raw, err)
		}
	}
}

func TestLoginStoresToken(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Status(ctx); !errors.IsUnauthorized(err) {
		t.Fatalf("Status before login error = %v, want unauthorized", err)
	}

	expires, err := c.Login(ctx, "admin", "hunter2", "123456")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.Token() != "tok-1" {
		t.Errorf("Token() = %q", c.Token())
	}
	if !expires.Equal(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("expires = %v", expires)
	}
	if api.lastBody["code"] != "123456" {
		t.Errorf("code not sent: %v", api.lastBody)
	}
}

func TestLoginRejected(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Login(context.Background(), "admin", "wrong", "")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
	if c.Token() != "" {
		t.Error("token should stay empty")
	}
}

func TestHealthIsPublic(t *testing.T) {
	c, _ := newTestClient(t)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || !h.Running {
		t.Errorf("health = %+v", h)
	}
}

func TestStatusAndTransactions(t *testing.T) {
	c, api := newTestClient(t)
	c.token = "tok-1"
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running || st.PendingOrders != 1 || st.Settings.ProductID != "BTC-EUR" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Jobs) != 1 || st.Jobs[0].ID != "buy_job" {
		t.Errorf("jobs = %+v", st.Jobs)
	}

	txs, err := c.Transactions(ctx, 2)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if api.lastPath != "/api/transactions?limit=2" {
		t.Errorf("path = %s", api.lastPath)
	}
	if len(txs) != 2 || txs[0].ID != "tx-2" {
		t.Fatalf("txs = %+v", txs)
	}
	if !txs[0].Price.Valid || !txs[0].Price.Decimal.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("price = %v", txs[0].Price)
	}
	if txs[1].Price.Valid {
		t.Error("failed attempt should have no price")
	}
}

func TestManualBuy(t *testing.T) {
	c, api := newTestClient(t)
	c.token = "tok-1"
	ctx := context.Background()

	tx, err := c.ManualBuy(ctx, nil)
	if err != nil {
		t.Fatalf("ManualBuy: %v", err)
	}
	if api.lastBody != nil {
		t.Errorf("body = %v, want none", api.lastBody)
	}
	if !tx.Manual || !tx.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("tx = %+v", tx)
	}

	amount := decimal.NewFromInt(15)
	tx, err = c.ManualBuy(ctx, &amount)
	if err != nil {
		t.Fatalf("ManualBuy: %v", err)
	}
	if !tx.Amount.Equal(amount) {
		t.Errorf("amount = %s", tx.Amount)
	}
}

func TestUpdateSettingsError(t *testing.T) {
	c, _ := newTestClient(t)
	c.token = "tok-1"
	ctx := context.Background()

	bad := "25:00"
	_, err := c.UpdateSettings(ctx, SettingsUpdate{BuyTime: &bad})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Detail != "hour must be 0-23" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if len(apiErr.Hints) != 1 {
		t.Errorf("hints = %v", apiErr.Hints)
	}

	day := 15
	freq := "monthly"
	s, err := c.UpdateSettings(ctx, SettingsUpdate{Frequency: &freq, MonthlyDay: &day})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if s.Frequency != "monthly" || s.MonthlyDay != 15 {
		t.Errorf("settings = %+v", s)
	}
}

func TestBalances(t *testing.T) {
	c, _ := newTestClient(t)
	c.token = "tok-1"

	b, err := c.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if b.Quote.Currency != "EUR" || !b.Quote.Available.Equal(decimal.NewFromInt(120)) {
		t.Errorf("quote = %+v", b.Quote)
	}
}
