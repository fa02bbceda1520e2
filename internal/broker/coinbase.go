package broker

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/logger"
)

var _ Gateway = (*CoinbaseClient)(nil)

const (
	// DefaultCoinbaseURL is the Advanced Trade API root
	DefaultCoinbaseURL = "https://api.coinbase.com"

	brokeragePath   = "/api/v3/brokerage"
	jwtLifetime     = 2 * time.Minute
	accountsPerPage = 250
)

// CoinbaseConfig configures the Advanced Trade client
type CoinbaseConfig struct {
	// APIKey is the CDP key name, used as the JWT subject and kid
	APIKey string
	// APISecret is the PEM EC private key; literal "\n" sequences are accepted
	APISecret string
	BaseURL   string
	// RateLimit is requests per second; <= 0 disables throttling
	RateLimit float64
	Timeout   time.Duration
	// LimitPriceFactor discounts the spot price for the limit buy, e.g. 0.995
	LimitPriceFactor decimal.Decimal
	HTTPClient       *http.Client
	Logger           logger.Logger
}

// CoinbaseClient implements Gateway against the Coinbase Advanced Trade REST API
type CoinbaseClient struct {
	apiKey      string
	key         *ecdsa.PrivateKey
	baseURL     string
	host        string
	limitFactor decimal.Decimal
	http        *http.Client
	limiter     *rate.Limiter
	logger      logger.Logger
	now         func() time.Time

	// product increments rarely change, keep them per product
	productsMu sync.RWMutex
	products   map[string]productInfo
}

type productInfo struct {
	baseIncrement  decimal.Decimal
	quoteIncrement decimal.Decimal
	baseMinSize    decimal.Decimal
}

// NewCoinbaseClient parses the key and builds a client
func NewCoinbaseClient(cfg CoinbaseConfig) (*CoinbaseClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.InvalidConfigurationf("coinbase api key and secret are required")
	}

	pemKey := strings.ReplaceAll(cfg.APISecret, `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, errors.WrapInvalidConfiguration(err, "parse coinbase api secret")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinbaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, errors.InvalidConfigurationf("invalid coinbase base url %q", cfg.BaseURL)
	}

	if cfg.LimitPriceFactor.IsZero() {
		cfg.LimitPriceFactor = decimal.RequireFromString("0.995")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &CoinbaseClient{
		apiKey:      cfg.APIKey,
		key:         key,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		host:        u.Host,
		limitFactor: cfg.LimitPriceFactor,
		http:        httpClient,
		limiter:     limiter,
		logger:      logger.OrDefault(cfg.Logger).WithComponent(logger.ComponentBroker),
		now:         time.Now,
		products:    make(map[string]productInfo),
	}, nil
}

// signJWT builds the short-lived ES256 token Coinbase expects per request
func (c *CoinbaseClient) signJWT(method, path string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	now := c.now()
	claims := jwt.MapClaims{
		"sub": c.apiKey,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"uri": fmt.Sprintf("%s %s%s", method, c.host, path),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.apiKey
	token.Header["nonce"] = hex.EncodeToString(nonce)
	return token.SignedString(c.key)
}

func (c *CoinbaseClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.WrapExchange(err, "rate limit wait")
	}

	token, err := c.signJWT(method, path)
	if err != nil {
		return errors.WrapExchange(err, "sign request")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WrapExchange(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.WrapExchange(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapExchange(err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.WrapExchange(err, "read response")
	}

	c.logger.Debug("Coinbase request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.ExchangeErrorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErrorMessage(payload))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return errors.WrapExchange(err, "decode response")
		}
	}
	return nil
}

// apiErrorMessage pulls the message out of a Coinbase error body
func apiErrorMessage(payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil && (body.Message != "" || body.Error != "") {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

type productResponse struct {
	ProductID      string `json:"product_id"`
	Price          string `json:"price"`
	BaseIncrement  string `json:"base_increment"`
	QuoteIncrement string `json:"quote_increment"`
	BaseMinSize    string `json:"base_min_size"`
}

func (c *CoinbaseClient) product(ctx context.Context, productID string) (productResponse, error) {
	var out productResponse
	err := c.do(ctx, http.MethodGet, brokeragePath+"/products/"+url.PathEscape(productID), nil, nil, &out)
	if err != nil {
		return out, err
	}

	c.productsMu.Lock()
	c.products[productID] = productInfo{
		baseIncrement:  parseDecimal(out.BaseIncrement),
		quoteIncrement: parseDecimal(out.QuoteIncrement),
		baseMinSize:    parseDecimal(out.BaseMinSize),
	}
	c.productsMu.Unlock()
	return out, nil
}

// GetPrice returns the product's current price
func (c *CoinbaseClient) GetPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	p, err := c.product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}

	price := parseDecimal(p.Price)
	if !price.IsPositive() {
		return decimal.Zero, errors.ExchangeErrorf("no price for %s", productID)
	}
	return price, nil
}

type orderConfiguration struct {
	LimitLimitGTC *limitGTC `json:"limit_limit_gtc,omitempty"`
}

type limitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only"`
}

type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type createOrderResponse struct {
	Success         bool   `json:"success"`
	OrderID         string `json:"order_id"`
	FailureReason   string `json:"failure_reason"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

func (r createOrderResponse) failure() string {
	for _, s := range []string{
		r.ErrorResponse.Message,
		r.ErrorResponse.ErrorDetails,
		r.ErrorResponse.PreviewFailureReason,
		r.ErrorResponse.Error,
		r.FailureReason,
	} {
		if s != "" {
			return s
		}
	}
	return "unknown failure"
}

// PlaceOrder places a GTC limit buy for fiatAmount at a discount to the
// current price, sized in base units rounded down to the product increment.
func (c *CoinbaseClient) PlaceOrder(ctx context.Context, productID string, fiatAmount decimal.Decimal) (PlacedOrder, error) {
	if !fiatAmount.IsPositive() {
		return PlacedOrder{}, errors.ExchangeErrorf("order amount must be positive, got %s", fiatAmount)
	}

	p, err := c.product(ctx, productID)
	if err != nil {
		return PlacedOrder{}, err
	}
	price := parseDecimal(p.Price)
	if !price.IsPositive() {
		return PlacedOrder{}, errors.ExchangeErrorf("no price for %s", productID)
	}

	c.productsMu.RLock()
	info := c.products[productID]
	c.productsMu.RUnlock()

	limitPrice := roundDown(price.Mul(c.limitFactor), info.quoteIncrement, 2)
	baseSize := roundDown(fiatAmount.Div(limitPrice), info.baseIncrement, 8)
	if !baseSize.IsPositive() || baseSize.LessThan(info.baseMinSize) {
		return PlacedOrder{}, errors.ExchangeErrorf("amount %s is below the minimum order size for %s", fiatAmount, productID)
	}

	req := createOrderRequest{
		ClientOrderID: uuid.New().String(),
		ProductID:     productID,
		Side:          "BUY",
		OrderConfiguration: orderConfiguration{
			LimitLimitGTC: &limitGTC{
				BaseSize:   baseSize.String(),
				LimitPrice: limitPrice.String(),
			},
		},
	}

	var resp createOrderResponse
	if err := c.do(ctx, http.MethodPost, brokeragePath+"/orders", nil, req, &resp); err != nil {
		return PlacedOrder{}, err
	}
	if !resp.Success {
		return PlacedOrder{}, errors.ExchangeErrorf("order rejected: %s", resp.failure())
	}

	orderID := resp.SuccessResponse.OrderID
	if orderID == "" {
		orderID = resp.OrderID
	}
	if orderID == "" {
		return PlacedOrder{}, errors.ExchangeErrorf("order accepted without an order id")
	}

	c.logger.Info("Placed limit buy",
		"product_id", productID,
		"order_id", orderID,
		"limit_price", limitPrice.String(),
		"base_size", baseSize.String())

	return PlacedOrder{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		LimitPrice:    limitPrice,
		BaseSize:      baseSize,
	}, nil
}

type orderResponse struct {
	Order struct {
		OrderID              string `json:"order_id"`
		ProductID            string `json:"product_id"`
		Status               string `json:"status"`
		CompletionPercentage string `json:"completion_percentage"`
		FilledSize           string `json:"filled_size"`
		FilledValue          string `json:"filled_value"`
		AverageFilledPrice   string `json:"average_filled_price"`
		TotalFees            string `json:"total_fees"`
		CreatedTime          string `json:"created_time"`
		LastFillTime         string `json:"last_fill_time"`
	} `json:"order"`
}

// GetOrderStatus fetches one order from the historical orders endpoint
func (c *CoinbaseClient) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, brokeragePath+"/orders/historical/"+url.PathEscape(orderID), nil, nil, &resp); err != nil {
		return OrderStatus{}, err
	}

	o := resp.Order
	status := OrderStatus{
		OrderID:              o.OrderID,
		ProductID:            o.ProductID,
		Status:               o.Status,
		CompletionPercentage: parseDecimal(o.CompletionPercentage),
		FilledSize:           parseDecimal(o.FilledSize),
		FilledValue:          parseDecimal(o.FilledValue),
		AverageFilledPrice:   parseDecimal(o.AverageFilledPrice),
		TotalFees:            parseDecimal(o.TotalFees),
		CreatedTime:          parseTime(o.CreatedTime),
	}
	if status.OrderID == "" {
		status.OrderID = orderID
	}
	if t := parseTime(o.LastFillTime); !t.IsZero() {
		status.LastFillTime = &t
	}
	return status, nil
}

type accountsResponse struct {
	Accounts []struct {
		Currency         string `json:"currency"`
		AvailableBalance struct {
			Value string `json:"value"`
		} `json:"available_balance"`
		Hold struct {
			Value string `json:"value"`
		} `json:"hold"`
	} `json:"accounts"`
	HasNext bool   `json:"has_next"`
	Cursor  string `json:"cursor"`
}

// Balances lists every account, following pagination
func (c *CoinbaseClient) Balances(ctx context.Context) ([]Balance, error) {
	var balances []Balance
	cursor := ""

	for {
		query := url.Values{"limit": {fmt.Sprint(accountsPerPage)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page accountsResponse
		if err := c.do(ctx, http.MethodGet, brokeragePath+"/accounts", query, nil, &page); err != nil {
			return nil, err
		}

		for _, a := range page.Accounts {
			balances = append(balances, Balance{
				Currency:  a.Currency,
				Available: parseDecimal(a.AvailableBalance.Value),
				Hold:      parseDecimal(a.Hold.Value),
			})
		}

		if !page.HasNext || page.Cursor == "" || page.Cursor == cursor {
			return balances, nil
		}
		cursor = page.Cursor
	}
}

// parseDecimal treats empty or malformed strings as zero
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// roundDown truncates d to a multiple of increment, or to places decimals
// when the increment is unknown.
func roundDown(d, increment decimal.Decimal, places int32) decimal.Decimal {
	if !increment.IsPositive() {
		return d.Truncate(places)
	}
	return d.Div(increment).Floor().Mul(increment)
}
