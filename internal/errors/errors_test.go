package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidConfigurationf(t *testing.T) {
	err := InvalidConfigurationf("day of month %d out of range", 31)
	require.Error(t, err)

	assert.Equal(t, "day of month 31 out of range", err.Error())
	assert.True(t, IsInvalidConfiguration(err))
	assert.False(t, IsSchedulerNotRunning(err))
	assert.False(t, IsExchangeError(err))
}

func TestWrapInvalidConfiguration(t *testing.T) {
	cause := New("expected HH:MM")
	err := WrapInvalidConfiguration(cause, "buy time")

	assert.Contains(t, err.Error(), "buy time")
	assert.Contains(t, err.Error(), "expected HH:MM")
	assert.True(t, IsInvalidConfiguration(err))
	assert.True(t, Is(err, cause))
}

func TestWrapExchange(t *testing.T) {
	assert.Nil(t, WrapExchange(nil, "get price"))

	cause := fmt.Errorf("connection refused")
	err := WrapExchange(cause, "get price")

	assert.True(t, IsExchangeError(err))
	assert.Contains(t, err.Error(), "get price")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExchangeErrorf(t *testing.T) {
	err := ExchangeErrorf("order rejected: %s", "INSUFFICIENT_FUND")

	assert.True(t, IsExchangeError(err))
	assert.Equal(t, "order rejected: INSUFFICIENT_FUND", err.Error())
}

func TestWrapTransientPoll(t *testing.T) {
	assert.Nil(t, WrapTransientPoll(nil, "abc"))

	err := WrapTransientPoll(ExchangeErrorf("timeout"), "abc123")
	assert.True(t, Is(err, ErrTransientPoll))
	assert.True(t, IsExchangeError(err))
	assert.Contains(t, err.Error(), "abc123")
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidConfiguration,
		ErrSchedulerNotRunning,
		ErrExchange,
		ErrTransientPoll,
		ErrUnauthorized,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v should not match %v", a, b)
		}
	}
}

func TestHelpersHandleNil(t *testing.T) {
	assert.False(t, IsInvalidConfiguration(nil))
	assert.False(t, IsSchedulerNotRunning(nil))
	assert.False(t, IsExchangeError(nil))
	assert.False(t, IsUnauthorized(nil))
}

func TestWrapKeepsSchedulerNotRunning(t *testing.T) {
	err := Wrap(ErrSchedulerNotRunning, "reschedule buy_job")

	assert.True(t, IsSchedulerNotRunning(err))
	assert.Contains(t, err.Error(), "reschedule buy_job")
}

func TestWithHint(t *testing.T) {
	err := WithHint(InvalidConfigurationf("weekday %q unknown", "funday"), "use monday..sunday")

	assert.True(t, IsInvalidConfiguration(err))
	assert.Equal(t, "use monday..sunday", FlattenHints(err))
}

func TestPanicError(t *testing.T) {
	var perr *PanicError
	func() {
		defer func() {
			if r := recover(); r != nil {
				perr = NewPanicError(r)
			}
		}()
		panic("boom")
	}()

	require.NotNil(t, perr)
	assert.Equal(t, "boom", perr.Value)
	assert.Equal(t, "panic recovered: boom", perr.Error())
	assert.NotEmpty(t, perr.Stacktrace)
	assert.True(t, strings.HasPrefix(perr.Report(), "PANIC: boom"))
	assert.Contains(t, perr.Report(), "Stack Trace:")
}
