// Package settings holds the trading settings: what to buy, how much and
// when. A Settings value is an immutable snapshot; changes go through
// Update.Apply, which returns a new one.
package settings

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/recurrence"
)

// Keys under which settings are persisted and read from the environment
const (
	KeyProductID  = "PRODUCT_ID"
	KeyAmount     = "AMOUNT"
	KeyBuyTime    = "BUY_TIME"
	KeyFrequency  = "ORDER_FREQUENCY"
	KeyWeeklyDay  = "WEEKLY_DAY"
	KeyMonthlyDay = "MONTHLY_DAY"
)

// Keys lists every persisted key
var Keys = []string{KeyProductID, KeyAmount, KeyBuyTime, KeyFrequency, KeyWeeklyDay, KeyMonthlyDay}

// Settings is one snapshot of the trading settings. WeeklyDay and
// MonthlyDay are kept whatever the frequency so switching back restores them.
type Settings struct {
	ProductID  string
	Amount     decimal.Decimal
	Frequency  recurrence.Frequency
	BuyTime    recurrence.TimeOfDay
	WeeklyDay  time.Weekday
	MonthlyDay int
}

// Defaults is the startup configuration
func Defaults() Settings {
	return Settings{
		ProductID:  "BTC-EUR",
		Amount:     decimal.NewFromInt(30),
		Frequency:  recurrence.Daily,
		BuyTime:    recurrence.TimeOfDay{Hour: 8, Minute: 0},
		WeeklyDay:  time.Monday,
		MonthlyDay: 1,
	}
}

// Recurrence returns the schedule the settings describe
func (s Settings) Recurrence() recurrence.Spec {
	spec := recurrence.Spec{Frequency: s.Frequency, At: s.BuyTime}
	switch s.Frequency {
	case recurrence.Weekly:
		day := s.WeeklyDay
		spec.Weekday = &day
	case recurrence.Monthly:
		spec.DayOfMonth = s.MonthlyDay
	}
	return spec
}

// Validate checks every field, including the ones the frequency ignores
func (s Settings) Validate() error {
	if strings.TrimSpace(s.ProductID) == "" {
		return errors.InvalidConfigurationf("product id is required")
	}
	if !s.Amount.IsPositive() {
		return errors.InvalidConfigurationf("amount must be positive, got %s", s.Amount.String())
	}
	if s.WeeklyDay < time.Sunday || s.WeeklyDay > time.Saturday {
		return errors.InvalidConfigurationf("weekly day %d is outside 0-6", int(s.WeeklyDay))
	}
	if s.MonthlyDay < 1 || s.MonthlyDay > recurrence.MaxDayOfMonth {
		return errors.WithHintf(
			errors.InvalidConfigurationf("monthly day %d is outside 1-%d", s.MonthlyDay, recurrence.MaxDayOfMonth),
			"days 29-31 do not exist in every month")
	}
	return s.Recurrence().Validate()
}

// Describe renders the schedule, e.g. "Daily at 08:00 UTC"
func (s Settings) Describe() string {
	return s.Recurrence().Describe()
}

// Equal compares two snapshots by value
func (s Settings) Equal(other Settings) bool {
	return s.ProductID == other.ProductID &&
		s.Amount.Equal(other.Amount) &&
		s.Frequency == other.Frequency &&
		s.BuyTime == other.BuyTime &&
		s.WeeklyDay == other.WeeklyDay &&
		s.MonthlyDay == other.MonthlyDay
}

// Values renders the settings as persisted key/value pairs
func (s Settings) Values() map[string]string {
	return map[string]string{
		KeyProductID:  s.ProductID,
		KeyAmount:     s.Amount.String(),
		KeyBuyTime:    s.BuyTime.String(),
		KeyFrequency:  string(s.Frequency),
		KeyWeeklyDay:  strings.ToLower(s.WeeklyDay.String()),
		KeyMonthlyDay: strconv.Itoa(s.MonthlyDay),
	}
}

// FromValues overlays the keys present in values onto base
func FromValues(values map[string]string, base Settings) (Settings, error) {
	u := Update{}
	if v, ok := values[KeyProductID]; ok && v != "" {
		u.ProductID = &v
	}
	if v, ok := values[KeyAmount]; ok && v != "" {
		amount, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return base, errors.WrapInvalidConfiguration(err, KeyAmount)
		}
		u.Amount = &amount
	}
	if v, ok := values[KeyBuyTime]; ok && v != "" {
		u.BuyTime = &v
	}
	if v, ok := values[KeyFrequency]; ok && v != "" {
		u.Frequency = &v
	}
	if v, ok := values[KeyWeeklyDay]; ok && v != "" {
		u.WeeklyDay = &v
	}
	if v, ok := values[KeyMonthlyDay]; ok && v != "" {
		day, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return base, errors.WrapInvalidConfiguration(err, KeyMonthlyDay)
		}
		u.MonthlyDay = &day
	}
	return u.Apply(base)
}

// FromEnv reads the settings keys from the environment over Defaults
func FromEnv() (Settings, error) {
	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}
	return FromValues(values, Defaults())
}

// Update is a partial change. Nil fields keep their current value.
type Update struct {
	ProductID  *string          `json:"product_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Frequency  *string          `json:"frequency,omitempty"`
	BuyTime    *string          `json:"buy_time,omitempty"`
	WeeklyDay  *string          `json:"weekly_day,omitempty"`
	MonthlyDay *int             `json:"monthly_day,omitempty"`
}

// Empty reports whether the update changes nothing
func (u Update) Empty() bool {
	return u.ProductID == nil && u.Amount == nil && u.Frequency == nil &&
		u.BuyTime == nil && u.WeeklyDay == nil && u.MonthlyDay == nil
}

// Apply returns s with the update applied. s is returned unchanged with an
// InvalidConfiguration error if any field is rejected.
func (u Update) Apply(s Settings) (Settings, error) {
	next := s

	if u.ProductID != nil {
		next.ProductID = strings.ToUpper(strings.TrimSpace(*u.ProductID))
	}
	if u.Amount != nil {
		next.Amount = *u.Amount
	}
	if u.Frequency != nil {
		f, err := recurrence.ParseFrequency(*u.Frequency)
		if err != nil {
			return s, err
		}
		next.Frequency = f
	}
	if u.BuyTime != nil {
		at, err := recurrence.ParseTimeOfDay(*u.BuyTime)
		if err != nil {
			return s, err
		}
		next.BuyTime = at
	}
	if u.WeeklyDay != nil {
		day, err := recurrence.ParseWeekday(*u.WeeklyDay)
		if err != nil {
			return s, err
		}
		next.WeeklyDay = day
	}
	if u.MonthlyDay != nil {
		next.MonthlyDay = *u.MonthlyDay
	}

	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// View is the wire and display form of a snapshot
type View struct {
	ProductID  string `json:"product_id" yaml:"product_id"`
	Amount     string `json:"amount" yaml:"amount"`
	Frequency  string `json:"frequency" yaml:"frequency"`
	BuyTime    string `json:"buy_time" yaml:"buy_time"`
	WeeklyDay  string `json:"weekly_day" yaml:"weekly_day"`
	MonthlyDay int    `json:"monthly_day" yaml:"monthly_day"`
	Schedule   string `json:"schedule" yaml:"schedule"`
}

// View renders s for the API and CLI
func (s Settings) View() View {
	return View{
		ProductID:  s.ProductID,
		Amount:     s.Amount.String(),
		Frequency:  string(s.Frequency),
		BuyTime:    s.BuyTime.String(),
		WeeklyDay:  strings.ToLower(s.WeeklyDay.String()),
		MonthlyDay: s.MonthlyDay,
		Schedule:   s.Describe(),
	}
}
