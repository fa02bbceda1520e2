package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var _ Gateway = (*PaperBroker)(nil)

// Paper order statuses, matching the Coinbase spelling
const (
	StatusOpen      = "OPEN"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
)

type paperOrder struct {
	productID  string
	fiat       decimal.Decimal
	size       decimal.Decimal
	limitPrice decimal.Decimal
	status     string
	polls      int
	createdAt  time.Time
	filledAt   *time.Time
}

// PaperBroker simulates the exchange in memory. Orders fill after a fixed
// number of status polls, which makes the whole lifecycle runnable without
// credentials.
type PaperBroker struct {
	mu          sync.Mutex
	prices      map[string]decimal.Decimal
	balances    map[string]decimal.Decimal
	orders      map[string]*paperOrder
	fillAfter   int
	limitFactor decimal.Decimal
	now         func() time.Time
}

// PaperConfig seeds the simulation
type PaperConfig struct {
	// Prices per product id
	Prices map[string]decimal.Decimal
	// Balances per currency
	Balances map[string]decimal.Decimal
	// FillAfter is the number of polls before an order fills; 0 fills on the first poll
	FillAfter        int
	LimitPriceFactor decimal.Decimal
}

// DefaultPaperConfig trades BTC-EUR at 50000 with 1000 EUR
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		Prices:           map[string]decimal.Decimal{"BTC-EUR": decimal.NewFromInt(50000)},
		Balances:         map[string]decimal.Decimal{"EUR": decimal.NewFromInt(1000)},
		FillAfter:        1,
		LimitPriceFactor: decimal.RequireFromString("0.995"),
	}
}

// NewPaperBroker creates a simulated exchange
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	pb := &PaperBroker{
		prices:      make(map[string]decimal.Decimal),
		balances:    make(map[string]decimal.Decimal),
		orders:      make(map[string]*paperOrder),
		fillAfter:   cfg.FillAfter,
		limitFactor: cfg.LimitPriceFactor,
		now:         time.Now,
	}
	if pb.limitFactor.IsZero() {
		pb.limitFactor = decimal.NewFromInt(1)
	}
	for k, v := range cfg.Prices {
		pb.prices[k] = v
	}
	for k, v := range cfg.Balances {
		pb.balances[k] = v
	}
	return pb
}

// SetPrice changes a product's simulated price
func (p *PaperBroker) SetPrice(productID string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[productID] = price
}

func (p *PaperBroker) GetPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[productID]
	if !ok {
		return decimal.Zero, errors.ExchangeErrorf("unknown product %s", productID)
	}
	return price, nil
}

func (p *PaperBroker) PlaceOrder(_ context.Context, productID string, fiatAmount decimal.Decimal) (PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[productID]
	if !ok {
		return PlacedOrder{}, errors.ExchangeErrorf("unknown product %s", productID)
	}
	if !fiatAmount.IsPositive() {
		return PlacedOrder{}, errors.ExchangeErrorf("order amount must be positive, got %s", fiatAmount)
	}

	quote := QuoteCurrency(productID)
	if funds := p.balances[quote]; funds.LessThan(fiatAmount) {
		return PlacedOrder{}, errors.ExchangeErrorf("insufficient %s balance: %s available, %s needed", quote, funds, fiatAmount)
	}

	limitPrice := price.Mul(p.limitFactor).Truncate(2)
	size := fiatAmount.Div(limitPrice).Truncate(8)

	id := "PAPER-" + uuid.New().String()
	p.orders[id] = &paperOrder{
		productID:  productID,
		fiat:       fiatAmount,
		size:       size,
		limitPrice: limitPrice,
		status:     StatusOpen,
		createdAt:  p.now().UTC(),
	}
	p.balances[quote] = p.balances[quote].Sub(fiatAmount)

	return PlacedOrder{OrderID: id, LimitPrice: limitPrice, BaseSize: size}, nil
}

func (p *PaperBroker) GetOrderStatus(_ context.Context, orderID string) (OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return OrderStatus{}, errors.ExchangeErrorf("order %s not found", orderID)
	}

	if o.status == StatusOpen {
		o.polls++
		if o.polls > p.fillAfter {
			o.status = StatusFilled
			filled := p.now().UTC()
			o.filledAt = &filled
			base := BaseCurrency(o.productID)
			p.balances[base] = p.balances[base].Add(o.size)
		}
	}

	status := OrderStatus{
		OrderID:     orderID,
		ProductID:   o.productID,
		Status:      o.status,
		CreatedTime: o.createdAt,
	}
	if o.status == StatusFilled {
		status.CompletionPercentage = decimal.NewFromInt(100)
		status.FilledSize = o.size
		status.FilledValue = o.size.Mul(o.limitPrice)
		status.AverageFilledPrice = o.limitPrice
		status.LastFillTime = o.filledAt
	}
	return status, nil
}

// Cancel closes an open order and refunds it
func (p *PaperBroker) Cancel(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return errors.ExchangeErrorf("order %s not found", orderID)
	}
	if o.status != StatusOpen {
		return errors.ExchangeErrorf("order %s is %s", orderID, o.status)
	}
	o.status = StatusCancelled
	quote := QuoteCurrency(o.productID)
	p.balances[quote] = p.balances[quote].Add(o.fiat)
	return nil
}

func (p *PaperBroker) Balances(_ context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Balance, 0, len(p.balances))
	for currency, amount := range p.balances {
		out = append(out, Balance{Currency: currency, Available: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}
