package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Trigger computes fire times. It is immutable and safe for concurrent use.
type Trigger struct {
	expr     string
	schedule cron.Schedule
}

// ComputeTrigger derives the trigger for a valid spec
func ComputeTrigger(spec Spec) (*Trigger, error) {
	expr, err := spec.Expression()
	if err != nil {
		return nil, err
	}
	return parse(expr)
}

// ParseTrigger accepts a raw cron expression or descriptor such as "@hourly"
func ParseTrigger(expr string) (*Trigger, error) {
	return parse(expr)
}

func parse(expr string) (*Trigger, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.WrapInvalidConfiguration(err, fmt.Sprintf("parse cron expression %q", expr))
	}
	return &Trigger{expr: expr, schedule: schedule}, nil
}

// Every fires at a fixed interval. Intervals are rounded down to the second
// with a one second minimum.
func Every(d time.Duration) *Trigger {
	schedule := cron.Every(d)
	return &Trigger{expr: "@every " + schedule.Delay.String(), schedule: schedule}
}

// Next returns the first fire time strictly after t, in UTC
func (t *Trigger) Next(after time.Time) time.Time {
	return t.schedule.Next(after.UTC()).UTC()
}

func (t *Trigger) String() string {
	return t.expr
}
