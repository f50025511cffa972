// The `ical` package serializes an event program into an iCalendar file.
//
// # References:
// - RFC5545: https://datatracker.ietf.org/doc/html/rfc5545
//
// # Notes:
// - Only VEVENT components are written. All datetimes are written in UTC, so
//   no VTIMEZONE section is needed.
// - Recurring sessions keep their RRULE; clients expand them.
//
// # Example usage:
//
//	cal := ical.Program(event, sessions, facultyNames, "https://example.com")
//	output, _ := cal.ToIcal()
package ical

import (
	"fmt"
	"strings"
	"time"
)

const PRODID = "-//confdesk//program//EN"

type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string
	Categories  []string
	Start       time.Time
	End         time.Time
	Stamp       time.Time
	RRule       string
}

type Calendar struct {
	ProdID string
	Name   string
	Events []Event
}

func NewCalendar(name string) Calendar {
	return Calendar{ProdID: PRODID, Name: name, Events: []Event{}}
}

func (cal *Calendar) AddEvent(event Event) {
	cal.Events = append(cal.Events, event)
}

// Marshal a Calendar{} struct into an iCalendar string.
func (cal *Calendar) ToIcal() (string, error) {
	var sb strings.Builder
	writer := Split75wrapper(sb.WriteString)

	prodID := cal.ProdID
	if prodID == "" {
		prodID = PRODID
	}
	writer("BEGIN:VCALENDAR")
	writer("VERSION:2.0")
	writer("PRODID:" + prodID)
	writer("CALSCALE:GREGORIAN")
	writer("METHOD:PUBLISH")
	if cal.Name != "" {
		writer("X-WR-CALNAME:" + EscapeText(cal.Name))
	}
	for _, event := range cal.Events {
		if err := event.toIcal(writer); err != nil {
			return "", fmt.Errorf("(*Calendar).ToIcal: event %s: %w", event.UID, err)
		}
	}
	writer("END:VCALENDAR")

	return sb.String(), nil
}

func (e *Event) toIcal(writer func(string) (int, error)) error {
	if e.UID == "" {
		return fmt.Errorf("uid is blank")
	}
	start, err := TimeToIcalDatetime(e.Start)
	if err != nil {
		return fmt.Errorf("dtstart: %w", err)
	}
	end, err := TimeToIcalDatetime(e.End)
	if err != nil {
		return fmt.Errorf("dtend: %w", err)
	}
	stamp := e.Stamp
	if stamp.IsZero() {
		stamp = e.Start
	}
	stampStr, _ := TimeToIcalDatetime(stamp)

	writer("BEGIN:VEVENT")
	writer("UID:" + e.UID)
	writer("DTSTAMP:" + stampStr)
	writer("DTSTART:" + start)
	writer("DTEND:" + end)
	if e.RRule != "" {
		writer(fmt.Sprintf("RRULE:%s", e.RRule))
	}
	writer("SUMMARY:" + EscapeText(e.Summary))
	if e.Description != "" {
		writer("DESCRIPTION:" + EscapeText(e.Description))
	}
	if e.Location != "" {
		writer("LOCATION:" + EscapeText(e.Location))
	}
	if len(e.Categories) > 0 {
		escaped := make([]string, len(e.Categories))
		for i, c := range e.Categories {
			escaped[i] = EscapeText(c)
		}
		writer("CATEGORIES:" + strings.Join(escaped, ","))
	}
	if e.URL != "" {
		writer("URL:" + e.URL)
	}
	writer("END:VEVENT")
	return nil
}
