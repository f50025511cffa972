package conflict

import (
	"errors"
	"testing"
	"time"

	"confdesk/src-server/model"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func session(id, hall string, start, end time.Time, facultyIDs ...string) model.ProgramSession {
	s := model.ProgramSession{ID: id, Title: "Session " + id, Hall: hall, StartAt: start, EndAt: end}
	for _, f := range facultyIDs {
		s.Assignments = append(s.Assignments, &model.SessionAssignment{SessionID: id, FacultyID: f})
	}
	return s
}

func TestOverlaps(t *testing.T) {
	a := Occurrence{Start: at(9, 0), End: at(10, 0)}
	for _, tc := range []struct {
		b    Occurrence
		want bool
	}{
		{Occurrence{Start: at(9, 30), End: at(10, 30)}, true},
		{Occurrence{Start: at(10, 0), End: at(11, 0)}, false}, // touching
		{Occurrence{Start: at(8, 0), End: at(9, 0)}, false},   // touching
		{Occurrence{Start: at(8, 0), End: at(12, 0)}, true},   // contains
		{Occurrence{Start: at(9, 15), End: at(9, 45)}, true},  // contained
		{Occurrence{Start: at(11, 0), End: at(12, 0)}, false},
	} {
		if got := a.Overlaps(tc.b); got != tc.want {
			t.Errorf("Overlaps(%v-%v) = %v", tc.b.Start.Format("15:04"), tc.b.End.Format("15:04"), got)
		}
		if got := tc.b.Overlaps(a); got != tc.want {
			t.Error("Overlaps is not symmetric")
		}
	}
}

func TestDetectFacultyAndHall(t *testing.T) {
	report, err := Detect(Input{
		Sessions: []model.ProgramSession{
			session("s3", "Hall B", at(11, 0), at(12, 0), "f1"),
			session("s1", "Hall A", at(9, 0), at(10, 0), "f1", "f2"),
			session("s2", "hall a ", at(9, 30), at(10, 30), "f1"),
			session("s4", "Hall A", at(10, 30), at(11, 30), "f2"),
		},
		FacultyNames: map[string]string{"f1": "Dr. Asha Rao", "f2": "Dr. Bala Iyer"},
		Until:        day.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.FacultyConflicts) != 1 {
		t.Fatalf("faculty conflicts = %+v", report.FacultyConflicts)
	}
	fc := report.FacultyConflicts[0]
	if fc.FacultyID != "f1" || fc.FacultyName != "Dr. Asha Rao" || fc.First.SessionID != "s1" || fc.Second.SessionID != "s2" {
		t.Errorf("faculty conflict = %+v", fc)
	}

	// s2 and s4 touch at 10:30; hall names compare case-insensitively
	if len(report.HallConflicts) != 1 {
		t.Fatalf("hall conflicts = %+v", report.HallConflicts)
	}
	if hc := report.HallConflicts[0]; hc.First.SessionID != "s1" || hc.Second.SessionID != "s2" {
		t.Errorf("hall conflict = %+v", hc)
	}
	if len(report.TravelConflicts) != 0 {
		t.Errorf("travel conflicts = %+v", report.TravelConflicts)
	}
}

func TestDetectRecurring(t *testing.T) {
	daily := session("daily", "Hall A", at(8, 0), at(9, 0), "f1")
	daily.RRule = "FREQ=DAILY"
	report, err := Detect(Input{
		Sessions: []model.ProgramSession{
			daily,
			session("day2", "Hall A", day.Add(24*time.Hour+8*time.Hour+30*time.Minute), day.Add(24*time.Hour+10*time.Hour), "f1"),
			session("day5", "Hall A", day.Add(4*24*time.Hour+8*time.Hour), day.Add(4*24*time.Hour+9*time.Hour), "f1"),
		},
		Until: day.Add(3 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	// the daily rule stops at Until, so day 5 is clear
	if len(report.FacultyConflicts) != 1 || report.FacultyConflicts[0].Second.SessionID != "day2" {
		t.Errorf("faculty conflicts = %+v", report.FacultyConflicts)
	}
	if len(report.HallConflicts) != 1 {
		t.Errorf("hall conflicts = %+v", report.HallConflicts)
	}
	if got := report.FacultyConflicts[0].First.Start; !got.Equal(day.Add(32 * time.Hour)) {
		t.Errorf("conflicting occurrence starts %v", got)
	}
}

func TestDetectTravel(t *testing.T) {
	arrival := at(10, 0)
	departure := at(17, 0)
	report, err := Detect(Input{
		Sessions: []model.ProgramSession{
			session("late", "", at(16, 30), at(17, 30), "f1"),
			session("early", "", at(9, 0), at(10, 0), "f1"),
			session("fine", "", at(12, 0), at(13, 0), "f1"),
			session("other", "", at(6, 0), at(7, 0), "f2"),
		},
		Travel: []model.TravelItinerary{
			{FacultyID: "f1", Arrival: model.TravelLeg{At: &arrival}, Departure: model.TravelLeg{At: &departure}, Status: model.TRAVEL_STATUS_BOOKED},
			{FacultyID: "f2", Arrival: model.TravelLeg{At: &arrival}, Status: model.TRAVEL_STATUS_CANCELLED},
		},
		Until: day.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.TravelConflicts) != 2 {
		t.Fatalf("travel conflicts = %+v", report.TravelConflicts)
	}
	if c := report.TravelConflicts[0]; c.Session.SessionID != "early" || c.Reason != TRAVEL_BEFORE_ARRIVAL {
		t.Errorf("first = %+v", c)
	}
	if c := report.TravelConflicts[1]; c.Session.SessionID != "late" || c.Reason != TRAVEL_AFTER_DEPARTURE {
		t.Errorf("second = %+v", c)
	}
}

func TestOccurrences(t *testing.T) {
	s := session("s", "", at(9, 0), at(10, 30))
	s.RRule = "RRULE:FREQ=DAILY;COUNT=3"
	occurrences, err := Occurrences(&s, day.Add(30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("got %d occurrences", len(occurrences))
	}
	last := occurrences[2]
	if !last.Start.Equal(at(9, 0).AddDate(0, 0, 2)) || last.End.Sub(last.Start) != 90*time.Minute {
		t.Errorf("last occurrence = %v - %v", last.Start, last.End)
	}

	until := at(9, 0).AddDate(0, 0, 1)
	s.RRule = "FREQ=DAILY"
	s.RRuleUntil = &until
	if occurrences, _ := Occurrences(&s, day.Add(30*24*time.Hour)); len(occurrences) != 2 {
		t.Errorf("rrule_until ignored: %d occurrences", len(occurrences))
	}

	s.RRule = "FREQ=SOMETIMES"
	if _, err := Occurrences(&s, day); !errors.Is(err, ErrInvalidRRule) {
		t.Errorf("got %v", err)
	}
	if err := ValidateRRule("FREQ=WEEKLY;BYDAY=MO,WE", at(9, 0)); err != nil {
		t.Error(err)
	}
}

func TestExpansionLimit(t *testing.T) {
	event := &model.Event{EndDate: day, Timezone: "UTC"}
	if got := ExpansionLimit(event); !got.Equal(day.Add(24 * time.Hour)) {
		t.Errorf("midnight end: %v", got)
	}
	event.EndDate = at(18, 0)
	if got := ExpansionLimit(event); !got.Equal(at(18, 0)) {
		t.Errorf("timed end: %v", got)
	}
}
