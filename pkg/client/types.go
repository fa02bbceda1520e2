package client

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// envelope mirrors the server's JSON response wrapper
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Hints   []string        `json:"hints,omitempty"`
}

// Settings is the buy configuration as the server renders it
type Settings struct {
	ProductID  string `json:"product_id" yaml:"product_id"`
	Amount     string `json:"amount" yaml:"amount"`
	Frequency  string `json:"frequency" yaml:"frequency"`
	BuyTime    string `json:"buy_time" yaml:"buy_time"`
	WeeklyDay  string `json:"weekly_day" yaml:"weekly_day"`
	MonthlyDay int    `json:"monthly_day" yaml:"monthly_day"`
	Schedule   string `json:"schedule" yaml:"schedule"`
}

// SettingsUpdate changes only the fields that are set
type SettingsUpdate struct {
	ProductID  *string          `json:"product_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Frequency  *string          `json:"frequency,omitempty"`
	BuyTime    *string          `json:"buy_time,omitempty"`
	WeeklyDay  *string          `json:"weekly_day,omitempty"`
	MonthlyDay *int             `json:"monthly_day,omitempty"`
}

// Job is one scheduled job
type Job struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     string    `json:"trigger" yaml:"trigger"`
	NextRun     time.Time `json:"next_run" yaml:"next_run"`
	Running     bool      `json:"running" yaml:"running"`
}

// Status is the service overview
type Status struct {
	Running       bool       `json:"running" yaml:"running"`
	BrokerMode    string     `json:"broker_mode,omitempty" yaml:"broker_mode,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Settings      Settings   `json:"settings" yaml:"settings"`
	NextBuy       *time.Time `json:"next_buy,omitempty" yaml:"next_buy,omitempty"`
	NextCheck     *time.Time `json:"next_check,omitempty" yaml:"next_check,omitempty"`
	PendingOrders int        `json:"pending_orders" yaml:"pending_orders"`
	Transactions  int        `json:"transactions" yaml:"transactions"`
	Jobs          []Job      `json:"jobs" yaml:"jobs"`
	History       []JobState `json:"history" yaml:"history"`
}

// JobState is a job's recorded run history
type JobState struct {
	ID          string    `json:"id" yaml:"id"`
	LastRun     time.Time `json:"last_run" yaml:"last_run"`
	NextRun     time.Time `json:"next_run" yaml:"next_run"`
	RunCount    int64     `json:"run_count" yaml:"run_count"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success" yaml:"last_success"`
}

// Transaction is one buy attempt
type Transaction struct {
	ID        string              `json:"id" yaml:"id"`
	Timestamp time.Time           `json:"timestamp" yaml:"timestamp"`
	ProductID string              `json:"product_id" yaml:"product_id"`
	Amount    decimal.Decimal     `json:"amount" yaml:"amount"`
	Price     decimal.NullDecimal `json:"price" yaml:"price"`
	OrderID   string              `json:"order_id,omitempty" yaml:"order_id,omitempty"`
	Status    string              `json:"status" yaml:"status"`
	Error     string              `json:"error,omitempty" yaml:"error,omitempty"`
	Manual    bool                `json:"manual" yaml:"manual"`
}

// Balance is one account balance
type Balance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
}

// Balances lists every account and the quote currency's balance
type Balances struct {
	Quote    Balance   `json:"quote"`
	Balances []Balance `json:"balances"`
}

// Health is the unauthenticated liveness report
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Running   bool   `json:"running"`
	Timestamp string `json:"timestamp"`
}
