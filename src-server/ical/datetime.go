package ical

import (
	"errors"
	"time"
)

var ErrZeroTime = errors.New("time is zero")

// Convert a time to a UTC iCalendar datetime: YYYYMMDDTHHMMSSZ
func TimeToIcalDatetime(time_ time.Time) (string, error) {
	if time_.IsZero() {
		return "", ErrZeroTime
	}
	return time_.UTC().Format("20060102T150405Z"), nil
}
