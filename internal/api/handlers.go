package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/settings"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ManualBuyRequest optionally overrides the configured amount
type ManualBuyRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// BalanceResponse lists every account and highlights the quote currency
type BalanceResponse struct {
	Quote    broker.Balance   `json:"quote"`
	Balances []broker.Balance `json:"balances"`
}

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 1000
)

// health handles GET /health
func (s *Server) health(c echo.Context) error {
	return SuccessResponse(c, map[string]interface{}{
		"status":    "healthy",
		"service":   "autobuy",
		"running":   s.engine.Status(c.Request().Context()).Running,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// login handles POST /api/auth/login
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	if req.Username == "" || req.Password == "" {
		return BadRequestResponse(c, "Username and password are required")
	}

	token, expires, err := s.auth.Login(req.Username, req.Password, req.Code)
	if err != nil {
		s.log.Warn("Login rejected", "username", req.Username, "remote_ip", c.RealIP())
		return UnauthorizedResponse(c, "Invalid credentials")
	}

	c.SetCookie(sessionCookie(token, expires, s.secure))
	return SuccessResponse(c, LoginResponse{Token: token, ExpiresAt: expires})
}

// logout handles POST /api/auth/logout
func (s *Server) logout(c echo.Context) error {
	cookie := sessionCookie("", time.Unix(0, 0), s.secure)
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return SuccessMessageResponse(c, "Logged out", nil)
}

// status handles GET /api/status
func (s *Server) status(c echo.Context) error {
	return SuccessResponse(c, s.engine.Status(c.Request().Context()))
}

// transactions handles GET /api/transactions?limit=N, newest first
func (s *Server) transactions(c echo.Context) error {
	limit := defaultTransactionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return BadRequestResponse(c, "limit must be a positive integer")
		}
		limit = min(n, maxTransactionLimit)
	}
	return SuccessResponse(c, s.engine.RecentTransactions(limit))
}

// manualBuy handles POST /api/manual-buy
func (s *Server) manualBuy(c echo.Context) error {
	var req ManualBuyRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return BadRequestResponse(c, "Invalid request payload")
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	tx, err := s.engine.TriggerManualBuy(ctx, req.Amount)
	if err != nil {
		return FailureResponse(c, "Manual buy rejected", err)
	}
	if !tx.IsSuccess() {
		return c.JSON(http.StatusOK, Response{Status: "error", Message: "Buy attempt failed", Data: tx, Error: tx.Error})
	}
	return SuccessMessageResponse(c, "Order placed", tx)
}

// balance handles GET /api/balance
func (s *Server) balance(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	balances, err := s.engine.Balances(ctx)
	if err != nil {
		return FailureResponse(c, "Failed to fetch balances", err)
	}
	quote := broker.QuoteCurrency(s.engine.Settings().ProductID)
	return SuccessResponse(c, BalanceResponse{
		Quote:    broker.FindBalance(balances, quote),
		Balances: balances,
	})
}

// getSettings handles GET /api/settings
func (s *Server) getSettings(c echo.Context) error {
	return SuccessResponse(c, s.engine.Settings().View())
}

// updateSettings handles PUT /api/settings
func (s *Server) updateSettings(c echo.Context) error {
	var update settings.Update
	if err := c.Bind(&update); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	if update.Empty() {
		return BadRequestResponse(c, "No settings to update")
	}

	next, err := s.engine.UpdateSettings(c.Request().Context(), update)
	if err != nil {
		return FailureResponse(c, "Settings rejected", err)
	}
	return SuccessMessageResponse(c, "Settings updated", next.View())
}
