package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/recurrence"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestDefaults(t *testing.T) {
	s := Defaults()

	require.NoError(t, s.Validate())
	assert.Equal(t, "BTC-EUR", s.ProductID)
	assert.True(t, s.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, recurrence.Daily, s.Frequency)
	assert.Equal(t, "08:00", s.BuyTime.String())
	assert.Equal(t, time.Monday, s.WeeklyDay)
	assert.Equal(t, 1, s.MonthlyDay)
	assert.Equal(t, "Daily at 08:00 UTC", s.Describe())
}

func TestRecurrence(t *testing.T) {
	s := Defaults()
	s.Frequency = recurrence.Weekly
	spec := s.Recurrence()
	require.NotNil(t, spec.Weekday)
	assert.Equal(t, time.Monday, *spec.Weekday)
	assert.Zero(t, spec.DayOfMonth)
	assert.Equal(t, "Weekly on Monday at 08:00 UTC", s.Describe())

	s.Frequency = recurrence.Monthly
	s.MonthlyDay = 15
	spec = s.Recurrence()
	assert.Nil(t, spec.Weekday)
	assert.Equal(t, 15, spec.DayOfMonth)
	assert.Equal(t, "Monthly on day 15 at 08:00 UTC", s.Describe())
}

func TestUpdateApply(t *testing.T) {
	amount := decimal.RequireFromString("42.5")
	u := Update{
		ProductID:  strPtr("eth-eur"),
		Amount:     &amount,
		Frequency:  strPtr("Weekly"),
		BuyTime:    strPtr("9:30"),
		WeeklyDay:  strPtr("friday"),
		MonthlyDay: intPtr(28),
	}

	next, err := u.Apply(Defaults())
	require.NoError(t, err)
	assert.Equal(t, "ETH-EUR", next.ProductID)
	assert.True(t, next.Amount.Equal(amount))
	assert.Equal(t, recurrence.Weekly, next.Frequency)
	assert.Equal(t, "09:30", next.BuyTime.String())
	assert.Equal(t, time.Friday, next.WeeklyDay)
	assert.Equal(t, 28, next.MonthlyDay)
}

func TestUpdateApplyRejects(t *testing.T) {
	zero := decimal.Zero
	negative := decimal.NewFromInt(-5)

	tests := []struct {
		name   string
		update Update
	}{
		{"empty product", Update{ProductID: strPtr("  ")}},
		{"zero amount", Update{Amount: &zero}},
		{"negative amount", Update{Amount: &negative}},
		{"bad frequency", Update{Frequency: strPtr("hourly")}},
		{"bad time", Update{BuyTime: strPtr("24:00")}},
		{"garbage time", Update{BuyTime: strPtr("noon")}},
		{"bad weekday", Update{WeeklyDay: strPtr("funday")}},
		{"day 29", Update{MonthlyDay: intPtr(29)}},
		{"day 0", Update{MonthlyDay: intPtr(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Defaults()
			next, err := tt.update.Apply(base)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidConfiguration(err), "got %v", err)
			assert.True(t, next.Equal(base), "settings must be unchanged on error")
		})
	}
}

func TestUpdateEmpty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{MonthlyDay: intPtr(3)}.Empty())
}

func TestValuesRoundTrip(t *testing.T) {
	s := Defaults()
	s.Frequency = recurrence.Monthly
	s.MonthlyDay = 12
	s.WeeklyDay = time.Sunday

	values := s.Values()
	assert.Equal(t, "sunday", values[KeyWeeklyDay])
	assert.Equal(t, "12", values[KeyMonthlyDay])
	assert.Equal(t, "monthly", values[KeyFrequency])
	assert.Equal(t, "30", values[KeyAmount])

	back, err := FromValues(values, Defaults())
	require.NoError(t, err)
	assert.True(t, back.Equal(s))
}

func TestFromValuesPartial(t *testing.T) {
	s, err := FromValues(map[string]string{KeyAmount: "15", KeyProductID: ""}, Defaults())
	require.NoError(t, err)
	assert.Equal(t, "BTC-EUR", s.ProductID)
	assert.True(t, s.Amount.Equal(decimal.NewFromInt(15)))

	_, err = FromValues(map[string]string{KeyAmount: "lots"}, Defaults())
	assert.True(t, errors.IsInvalidConfiguration(err))

	_, err = FromValues(map[string]string{KeyMonthlyDay: "first"}, Defaults())
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestFromEnv(t *testing.T) {
	t.Setenv(KeyProductID, "SOL-EUR")
	t.Setenv(KeyFrequency, "weekly")
	t.Setenv(KeyWeeklyDay, "3")

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "SOL-EUR", s.ProductID)
	assert.Equal(t, time.Wednesday, s.WeeklyDay)
	assert.Equal(t, "Weekly on Wednesday at 08:00 UTC", s.Describe())
}

func TestView(t *testing.T) {
	v := Defaults().View()
	assert.Equal(t, View{
		ProductID:  "BTC-EUR",
		Amount:     "30",
		Frequency:  "daily",
		BuyTime:    "08:00",
		WeeklyDay:  "monday",
		MonthlyDay: 1,
		Schedule:   "Daily at 08:00 UTC",
	}, v)
}

func TestEnvFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("COINBASE_API_KEY=keep-me\nAMOUNT=10\n"), 0o600))

	store := NewEnvFileStore(path)
	assert.Equal(t, path, store.Path())

	loaded, err := store.Load(ctx, Defaults())
	require.NoError(t, err)
	assert.True(t, loaded.Amount.Equal(decimal.NewFromInt(10)))

	loaded.Frequency = recurrence.Monthly
	loaded.MonthlyDay = 5
	require.NoError(t, store.Save(ctx, loaded))

	raw, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", raw["COINBASE_API_KEY"], "unrelated keys must survive")
	assert.Equal(t, "monthly", raw[KeyFrequency])
	assert.Equal(t, "5", raw[KeyMonthlyDay])

	again, err := store.Load(ctx, Defaults())
	require.NoError(t, err)
	assert.True(t, again.Equal(loaded))
}

func TestEnvFileStoreMissingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing.env")
	store := NewEnvFileStore(path)

	loaded, err := store.Load(ctx, Defaults())
	require.NoError(t, err)
	assert.True(t, loaded.Equal(Defaults()))

	require.NoError(t, store.Save(ctx, Defaults()))
	_, err = os.Stat(path)
	assert.NoError(t, err, "Save should create the file")
}
