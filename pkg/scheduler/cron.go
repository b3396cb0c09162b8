// Package scheduler parses cron schedules and dispatches due workflow runs.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCron is wrapped by every cron parse failure.
var ErrInvalidCron = errors.New("invalid cron expression")

// parseSchedule parses a standard 5-field cron expression pinned to an IANA
// timezone. An empty timezone means UTC.
func parseSchedule(expression, timezone string) (cron.Schedule, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidCron, timezone)
	}

	schedule, err := cron.ParseStandard(fmt.Sprintf("CRON_TZ=%s %s", timezone, expression))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return schedule, nil
}

// ValidateCron rejects malformed expressions or unknown timezones with a
// descriptive error.
func ValidateCron(expression, timezone string) error {
	_, err := parseSchedule(expression, timezone)
	return err
}

// NextRun computes the first occurrence of the schedule strictly after the
// given instant, evaluated in the schedule's timezone.
func NextRun(expression, timezone string, after time.Time) (time.Time, error) {
	schedule, err := parseSchedule(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}
