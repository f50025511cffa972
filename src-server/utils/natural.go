package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnparsableTime = errors.New("can't understand the time")

// ParseSendAt resolves input as RFC3339, as "2006-01-02 15:04" in loc, or
// as natural language ("tomorrow 9am", "next monday at 10:30") relative to
// now in loc.
func (as *AppState) ParseSendAt(input string, loc *time.Location, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("ParseSendAt: %w: empty", ErrUnparsableTime)
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", input, loc); err == nil {
		return t.UTC(), nil
	}
	result, err := as.When.Parse(input, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseSendAt: %w", err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("ParseSendAt: %w: %q", ErrUnparsableTime, input)
	}
	return result.Time.UTC(), nil
}
