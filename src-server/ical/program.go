package ical

import (
	"fmt"
	"strings"

	"confdesk/src-server/model"
)

// rruleFor returns the session's rule, bounded by rrule_until when the rule
// itself has no UNTIL or COUNT part.
func rruleFor(s *model.ProgramSession) string {
	rule := strings.TrimPrefix(strings.TrimSpace(s.RRule), "RRULE:")
	if rule == "" || s.RRuleUntil == nil {
		return rule
	}
	upper := strings.ToUpper(rule)
	if strings.Contains(upper, "UNTIL=") || strings.Contains(upper, "COUNT=") {
		return rule
	}
	until, err := TimeToIcalDatetime(*s.RRuleUntil)
	if err != nil {
		return rule
	}
	return rule + ";UNTIL=" + until
}

func location(event *model.Event, hall string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{hall, event.Venue} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func sessionEvent(event *model.Event, s *model.ProgramSession, baseURL string) Event {
	categories := make([]string, 0, 2)
	if s.Kind != "" {
		categories = append(categories, string(s.Kind))
	}
	if s.Track != "" {
		categories = append(categories, s.Track)
	}
	e := Event{
		UID:         s.ID + "@confdesk",
		Summary:     s.Title,
		Description: s.Description,
		Location:    location(event, s.Hall),
		Categories:  categories,
		Start:       s.StartAt,
		End:         s.EndAt,
		Stamp:       s.UpdatedAt,
		RRule:       rruleFor(s),
	}
	if baseURL != "" {
		e.URL = fmt.Sprintf("%s/events/%s/program#%s", strings.TrimRight(baseURL, "/"), event.Slug, s.ID)
	}
	return e
}

// Program builds the event's full program. facultyNames maps faculty ids
// to names listed in each session's description.
func Program(event *model.Event, sessions []model.ProgramSession, facultyNames map[string]string, baseURL string) Calendar {
	cal := NewCalendar(event.Name)
	for i := range sessions {
		s := &sessions[i]
		e := sessionEvent(event, s, baseURL)
		speakers := make([]string, 0, len(s.Assignments))
		for _, a := range s.Assignments {
			if name := facultyNames[a.FacultyID]; name != "" {
				speakers = append(speakers, fmt.Sprintf("%s (%s)", name, a.Role))
			}
		}
		if len(speakers) > 0 {
			if e.Description != "" {
				e.Description += "\n\n"
			}
			e.Description += "Faculty: " + strings.Join(speakers, ", ")
		}
		cal.AddEvent(e)
	}
	return cal
}

// FacultySchedule builds the calendar of one faculty member's sessions.
// assignments are keyed by session id and add the topic and role.
func FacultySchedule(event *model.Event, faculty *model.Faculty, sessions []model.ProgramSession, assignments map[string]model.SessionAssignment) Calendar {
	cal := NewCalendar(fmt.Sprintf("%s - %s", event.Name, faculty.Name))
	for i := range sessions {
		s := &sessions[i]
		e := sessionEvent(event, s, "")
		e.UID = s.ID + "-" + faculty.ID + "@confdesk"
		if a, ok := assignments[s.ID]; ok {
			lines := []string{"Role: " + string(a.Role)}
			if a.Topic != "" {
				lines = append(lines, "Topic: "+a.Topic)
			}
			if a.DurationMin > 0 {
				lines = append(lines, fmt.Sprintf("Duration: %d min", a.DurationMin))
			}
			if e.Description != "" {
				lines = append(lines, "", e.Description)
			}
			e.Description = strings.Join(lines, "\n")
		}
		cal.AddEvent(e)
	}
	return cal
}
