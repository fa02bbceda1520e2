// Package recurrence turns the user's buy cadence into a cron trigger.
//
// Every trigger evaluates in UTC. Monthly schedules only accept days 1-28 so
// the configured day exists in every month.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// Frequency is the buy cadence
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// MaxDayOfMonth is the last day that exists in every month
const MaxDayOfMonth = 28

// ParseFrequency accepts daily, weekly or monthly in any case
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", errors.InvalidConfigurationf("frequency must be daily, weekly or monthly, got %q", s)
	}
}

// TimeOfDay is an hour and minute in UTC
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "H:MM" or "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return TimeOfDay{}, errors.InvalidConfigurationf("time must be HH:MM, got %q", s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, errors.InvalidConfigurationf("time must be HH:MM, got %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, errors.InvalidConfigurationf("time must be HH:MM, got %q", s)
	}

	t := TimeOfDay{Hour: hour, Minute: minute}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// Validate rejects anything outside 00:00-23:59
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return errors.InvalidConfigurationf("time of day %02d:%02d is outside 00:00-23:59", t.Hour, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts a weekday name, its abbreviation, or 0-6 with 0 = Sunday
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if day, ok := weekdayNames[key]; ok {
		return day, nil
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, errors.InvalidConfigurationf("unknown weekday %q", s)
}

// Spec is one immutable recurrence snapshot. Weekday is set only for weekly
// specs and DayOfMonth only for monthly ones.
type Spec struct {
	Frequency  Frequency
	At         TimeOfDay
	Weekday    *time.Weekday
	DayOfMonth int
}

// DailyAt fires every day at hour:minute UTC
func DailyAt(hour, minute int) Spec {
	return Spec{Frequency: Daily, At: TimeOfDay{Hour: hour, Minute: minute}}
}

// WeeklyOn fires on day at hour:minute UTC
func WeeklyOn(day time.Weekday, hour, minute int) Spec {
	return Spec{Frequency: Weekly, At: TimeOfDay{Hour: hour, Minute: minute}, Weekday: &day}
}

// MonthlyOn fires on the given day of month at hour:minute UTC
func MonthlyOn(day, hour, minute int) Spec {
	return Spec{Frequency: Monthly, At: TimeOfDay{Hour: hour, Minute: minute}, DayOfMonth: day}
}

// Validate checks the field ranges and that only the fields the frequency
// uses are set.
func (s Spec) Validate() error {
	if err := s.At.Validate(); err != nil {
		return err
	}

	switch s.Frequency {
	case Daily:
		if s.Weekday != nil || s.DayOfMonth != 0 {
			return errors.InvalidConfigurationf("daily schedule takes no weekday or day of month")
		}
	case Weekly:
		if s.Weekday == nil {
			return errors.InvalidConfigurationf("weekly schedule needs a weekday")
		}
		if *s.Weekday < time.Sunday || *s.Weekday > time.Saturday {
			return errors.InvalidConfigurationf("weekday %d is outside 0-6", int(*s.Weekday))
		}
		if s.DayOfMonth != 0 {
			return errors.InvalidConfigurationf("weekly schedule takes no day of month")
		}
	case Monthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > MaxDayOfMonth {
			return errors.WithHintf(
				errors.InvalidConfigurationf("day of month %d is outside 1-%d", s.DayOfMonth, MaxDayOfMonth),
				"days 29-31 do not exist in every month; use %d for end-of-month buys", MaxDayOfMonth)
		}
		if s.Weekday != nil {
			return errors.InvalidConfigurationf("monthly schedule takes no weekday")
		}
	default:
		return errors.InvalidConfigurationf("unknown frequency %q", s.Frequency)
	}
	return nil
}

// Expression renders the spec as a five-field cron expression
func (s Spec) Expression() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	switch s.Frequency {
	case Weekly:
		return fmt.Sprintf("%d %d * * %d", s.At.Minute, s.At.Hour, int(*s.Weekday)), nil
	case Monthly:
		return fmt.Sprintf("%d %d %d * *", s.At.Minute, s.At.Hour, s.DayOfMonth), nil
	default:
		return fmt.Sprintf("%d %d * * *", s.At.Minute, s.At.Hour), nil
	}
}

// Describe renders the spec for people, e.g. "Weekly on Monday at 08:00 UTC"
func (s Spec) Describe() string {
	switch s.Frequency {
	case Weekly:
		if s.Weekday != nil {
			return fmt.Sprintf("Weekly on %s at %s UTC", s.Weekday.String(), s.At)
		}
	case Monthly:
		return fmt.Sprintf("Monthly on day %d at %s UTC", s.DayOfMonth, s.At)
	}
	return fmt.Sprintf("Daily at %s UTC", s.At)
}

// Equal compares two specs by value
func (s Spec) Equal(other Spec) bool {
	if s.Frequency != other.Frequency || s.At != other.At || s.DayOfMonth != other.DayOfMonth {
		return false
	}
	if (s.Weekday == nil) != (other.Weekday == nil) {
		return false
	}
	return s.Weekday == nil || *s.Weekday == *other.Weekday
}
