// Package broker is the exchange boundary. Adapters resolve every response
// into the typed structures below so callers never see raw payloads.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the exchange API the purchase routine and tracker depend on.
// Every failure is marked with errors.ErrExchange.
type Gateway interface {
	GetPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, productID string, fiatAmount decimal.Decimal) (PlacedOrder, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	Balances(ctx context.Context) ([]Balance, error)
}

// PlacedOrder is the exchange's acknowledgement of a buy
type PlacedOrder struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	BaseSize      decimal.Decimal `json:"base_size"`
}

// OrderStatus is one observation of an order
type OrderStatus struct {
	OrderID              string          `json:"order_id"`
	ProductID            string          `json:"product_id,omitempty"`
	Status               string          `json:"status"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage"`
	FilledSize           decimal.Decimal `json:"filled_size"`
	FilledValue          decimal.Decimal `json:"filled_value"`
	AverageFilledPrice   decimal.Decimal `json:"average_filled_price"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	CreatedTime          time.Time       `json:"created_time"`
	LastFillTime         *time.Time      `json:"last_fill_time,omitempty"`
}

// FillTime is the last fill time, falling back to the creation time
func (s OrderStatus) FillTime() time.Time {
	if s.LastFillTime != nil {
		return *s.LastFillTime
	}
	return s.CreatedTime
}

// Balance is one account's funds
type Balance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
}

// BaseCurrency returns "BTC" for "BTC-EUR"
func BaseCurrency(productID string) string {
	base, _, _ := strings.Cut(productID, "-")
	return base
}

// QuoteCurrency returns "EUR" for "BTC-EUR"
func QuoteCurrency(productID string) string {
	_, quote, ok := strings.Cut(productID, "-")
	if !ok {
		return ""
	}
	return quote
}

// FindBalance returns the balance for currency, or a zero balance
func FindBalance(balances []Balance, currency string) Balance {
	for _, b := range balances {
		if strings.EqualFold(b.Currency, currency) {
			return b
		}
	}
	return Balance{Currency: strings.ToUpper(currency)}
}
