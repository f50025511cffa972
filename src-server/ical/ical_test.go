package ical

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"confdesk/src-server/model"
)

func TestSplit75wrapper(t *testing.T) {
	var sb strings.Builder
	writer := Split75wrapper(sb.WriteString)

	writer("SUMMARY:short")
	if sb.String() != "SUMMARY:short\r\n" {
		t.Fatalf("short line = %q", sb.String())
	}

	sb.Reset()
	long := "DESCRIPTION:" + strings.Repeat("é", 100)
	writer(long)
	out := sb.String()
	if !strings.HasSuffix(out, "\r\n") {
		t.Fatal("folded line is not CRLF terminated")
	}
	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	if len(lines) < 3 {
		t.Fatalf("expected the line to be folded, got %d lines", len(lines))
	}
	var unfolded strings.Builder
	for i, line := range lines {
		if len(line) > 75 {
			t.Errorf("line %d has %d octets", i, len(line))
		}
		if !utf8.ValidString(line) {
			t.Errorf("line %d splits a rune: %q", i, line)
		}
		if i > 0 {
			if !strings.HasPrefix(line, " ") {
				t.Errorf("continuation line %d doesn't start with a space", i)
			}
			line = line[1:]
		}
		unfolded.WriteString(line)
	}
	if unfolded.String() != long {
		t.Error("unfolding doesn't restore the original line")
	}
}

func TestEscapeText(t *testing.T) {
	got := EscapeText("Hall A, Level 2; East\r\nWing \\ B")
	want := `Hall A\, Level 2\; East\nWing \\ B`
	if got != want {
		t.Errorf("EscapeText = %q, want %q", got, want)
	}
}

func TestTimeToIcalDatetime(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	got, err := TimeToIcalDatetime(time.Date(2026, 3, 10, 9, 0, 0, 0, ist))
	if err != nil {
		t.Fatal(err)
	}
	if got != "20260310T033000Z" {
		t.Errorf("got %s", got)
	}
	if _, err := TimeToIcalDatetime(time.Time{}); err == nil {
		t.Error("zero time should fail")
	}
}

func testProgram() (*model.Event, []model.ProgramSession) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 12, 23, 59, 0, 0, time.UTC)
	event := &model.Event{ID: "ev1", Slug: "cardiocon-2026", Name: "CardioCon 2026", Venue: "Convention Centre"}
	sessions := []model.ProgramSession{
		{
			ID: "s1", EventID: "ev1", Title: "Opening keynote", Hall: "Hall A",
			Kind: model.SESSION_KIND_KEYNOTE, Track: "Plenary",
			StartAt: start, EndAt: start.Add(time.Hour),
			Assignments: []*model.SessionAssignment{
				{SessionID: "s1", FacultyID: "f1", Role: model.ASSIGNMENT_ROLE_SPEAKER},
			},
		},
		{
			ID: "s2", EventID: "ev1", Title: "Morning yoga", Hall: "Lawn",
			Kind:    model.SESSION_KIND_BREAK,
			StartAt: start.Add(-2 * time.Hour), EndAt: start.Add(-90 * time.Minute),
			RRule: "FREQ=DAILY", RRuleUntil: &until,
		},
	}
	return event, sessions
}

func TestProgram(t *testing.T) {
	event, sessions := testProgram()
	cal := Program(event, sessions, map[string]string{"f1": "Dr. Asha Rao"}, "https://confdesk.example/")
	out, err := cal.ToIcal()
	if err != nil {
		t.Fatal(err)
	}
	unfolded := strings.ReplaceAll(out, "\r\n ", "")
	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"X-WR-CALNAME:CardioCon 2026\r\n",
		"UID:s1@confdesk\r\n",
		"DTSTART:20260310T090000Z\r\n",
		"DTEND:20260310T100000Z\r\n",
		"LOCATION:Hall A\\, Convention Centre\r\n",
		"CATEGORIES:keynote,Plenary\r\n",
		"DESCRIPTION:Faculty: Dr. Asha Rao (speaker)\r\n",
		"URL:https://confdesk.example/events/cardiocon-2026/program#s1\r\n",
		"RRULE:FREQ=DAILY;UNTIL=20260312T235900Z\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(unfolded, want) {
			t.Errorf("output is missing %q", want)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("%d events, want 2", n)
	}
}

func TestRRuleKeepsCount(t *testing.T) {
	until := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	s := &model.ProgramSession{RRule: "RRULE:FREQ=DAILY;COUNT=3", RRuleUntil: &until}
	if got := rruleFor(s); got != "FREQ=DAILY;COUNT=3" {
		t.Errorf("rruleFor = %q", got)
	}
}

func TestFacultySchedule(t *testing.T) {
	event, sessions := testProgram()
	faculty := &model.Faculty{ID: "f1", Name: "Dr. Asha Rao"}
	cal := FacultySchedule(event, faculty, sessions[:1], map[string]model.SessionAssignment{
		"s1": {SessionID: "s1", FacultyID: "f1", Role: model.ASSIGNMENT_ROLE_SPEAKER, Topic: "Heart failure in 2026", DurationMin: 20},
	})
	out, err := cal.ToIcal()
	if err != nil {
		t.Fatal(err)
	}
	unfolded := strings.ReplaceAll(out, "\r\n ", "")
	for _, want := range []string{
		"X-WR-CALNAME:CardioCon 2026 - Dr. Asha Rao\r\n",
		"UID:s1-f1@confdesk\r\n",
		`DESCRIPTION:Role: speaker\nTopic: Heart failure in 2026\nDuration: 20 min` + "\r\n",
	} {
		if !strings.Contains(unfolded, want) {
			t.Errorf("output is missing %q", want)
		}
	}
	if strings.Contains(out, "URL:") {
		t.Error("faculty schedule should not link to the public program")
	}
}

func TestToIcalRejectsZeroTimes(t *testing.T) {
	cal := NewCalendar("broken")
	cal.AddEvent(Event{UID: "x", Summary: "no times"})
	if _, err := cal.ToIcal(); err == nil {
		t.Error("expected an error for an event without times")
	}
}
