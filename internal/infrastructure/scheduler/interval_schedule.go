package scheduler

import (
	"fmt"
	"time"
)

// Every runs a job at a fixed interval after the previous check.
type Every time.Duration

// Next returns t plus the interval.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return fmt.Sprintf("@every %s", time.Duration(e))
}

// ParseSchedule accepts "@every <duration>" or a five-field cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	var raw string
	if _, err := fmt.Sscanf(expr, "@every %s", &raw); err == nil {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", expr, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("schedule %q: interval must be positive", expr)
		}
		return Every(d), nil
	}
	c, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return c, nil
}
