package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrence expressions use the standard five fields (minute, hour, day, month,
// weekday) and also accept descriptors such as "@daily" or "@every 6h".
var recurrenceParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRecurrence returns the first occurrence of expr strictly after from, in UTC.
func NextRecurrence(expr string, from time.Time) (time.Time, error) {
	schedule, err := recurrenceParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recurrence: %w", err)
	}
	return schedule.Next(from.UTC()), nil
}

// ValidateRecurrence checks if a recurrence expression can be parsed.
func ValidateRecurrence(expr string) error {
	if _, err := recurrenceParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid recurrence: %w", err)
	}
	return nil
}
