// Package errors provides error handling for autobuy.
//
// It re-exports github.com/cockroachdb/errors so call sites get stack traces,
// wrapping and hints from one import, and declares the sentinel errors the
// scheduler, tracker and broker layers classify failures with.
//
//	if err := svc.UpdateSettings(ctx, update); errors.IsInvalidConfiguration(err) {
//	    // reject the request, nothing changed
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing hints and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	GetAllDetails = crdb.GetAllDetails
)

// Inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors. Match them with Is; the constructors below mark new
// errors with a sentinel while keeping their own message.
var (
	// ErrInvalidConfiguration rejects a recurrence, time value or setting
	// before any job state is touched.
	ErrInvalidConfiguration = New("invalid configuration")

	// ErrSchedulerNotRunning is returned by operations that need a started scheduler.
	ErrSchedulerNotRunning = New("scheduler not running")

	// ErrExchange covers every broker gateway failure: network, auth, rejection.
	ErrExchange = New("exchange error")

	// ErrTransientPoll marks a single order status query that failed this cycle.
	ErrTransientPoll = New("transient poll error")

	// ErrUnauthorized is returned for bad dashboard credentials.
	ErrUnauthorized = New("unauthorized")
)

// InvalidConfigurationf creates an error marked as ErrInvalidConfiguration.
func InvalidConfigurationf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidConfiguration)
}

// WrapInvalidConfiguration wraps err with context and marks it as ErrInvalidConfiguration.
func WrapInvalidConfiguration(err error, context string) error {
	return Mark(Wrap(err, context), ErrInvalidConfiguration)
}

// ExchangeErrorf creates an error marked as ErrExchange.
func ExchangeErrorf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrExchange)
}

// WrapExchange wraps a transport or decoding failure from the exchange.
func WrapExchange(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrExchange)
}

// WrapTransientPoll marks a status query failure as retryable on the next cycle.
func WrapTransientPoll(err error, orderID string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "poll order %s", orderID), ErrTransientPoll)
}

// IsInvalidConfiguration reports whether err is or wraps ErrInvalidConfiguration.
func IsInvalidConfiguration(err error) bool {
	return err != nil && Is(err, ErrInvalidConfiguration)
}

// IsSchedulerNotRunning reports whether err is or wraps ErrSchedulerNotRunning.
func IsSchedulerNotRunning(err error) bool {
	return err != nil && Is(err, ErrSchedulerNotRunning)
}

// IsExchangeError reports whether err is or wraps ErrExchange.
func IsExchangeError(err error) bool {
	return err != nil && Is(err, ErrExchange)
}

// IsUnauthorized reports whether err is or wraps ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return err != nil && Is(err, ErrUnauthorized)
}
