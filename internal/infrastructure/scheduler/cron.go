package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule is a standard five-field cron expression
// (minute hour day-of-month month day-of-week), parsed by robfig/cron.
//
// Expressions are evaluated in UTC unless they carry their own
// CRON_TZ= or TZ= prefix.
type CronSchedule struct {
	raw   string
	sched cron.Schedule
}

// ParseCron parses a cron expression.
func ParseCron(expr string) (*CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	line := expr
	if !strings.HasPrefix(line, "CRON_TZ=") && !strings.HasPrefix(line, "TZ=") {
		line = "CRON_TZ=UTC " + line
	}

	sched, err := cron.ParseStandard(line)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, sched: sched}, nil
}

// MustParseCron is ParseCron for expressions known at compile time.
func MustParseCron(expr string) *CronSchedule {
	c, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// Next returns the first matching minute strictly after t, in t's location.
// An expression that can never match returns the zero time.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.sched.Next(t)
}

func (c *CronSchedule) String() string { return c.raw }
