package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"confdesk/src-server/model"

	"github.com/uptrace/bun"
)

type FacultyConflict struct {
	FacultyID   string     `json:"faculty_id"`
	FacultyName string     `json:"faculty_name"`
	First       Occurrence `json:"first"`
	Second      Occurrence `json:"second"`
}

type HallConflict struct {
	Hall   string     `json:"hall"`
	First  Occurrence `json:"first"`
	Second Occurrence `json:"second"`
}

const (
	TRAVEL_BEFORE_ARRIVAL  = "before_arrival"
	TRAVEL_AFTER_DEPARTURE = "after_departure"
)

type TravelConflict struct {
	FacultyID   string     `json:"faculty_id"`
	FacultyName string     `json:"faculty_name"`
	Session     Occurrence `json:"session"`
	Reason      string     `json:"reason"`
	ArrivalAt   *time.Time `json:"arrival_at,omitempty"`
	DepartureAt *time.Time `json:"departure_at,omitempty"`
}

type Report struct {
	FacultyConflicts []FacultyConflict `json:"faculty_conflicts"`
	HallConflicts    []HallConflict    `json:"hall_conflicts"`
	TravelConflicts  []TravelConflict  `json:"travel_conflicts"`
}

// Input is everything Detect looks at. Sessions must carry their
// assignments; FacultyNames maps faculty id to display name.
type Input struct {
	Sessions     []model.ProgramSession
	FacultyNames map[string]string
	Travel       []model.TravelItinerary
	Until        time.Time
}

// Detect compares every pair of occurrences per faculty member and per
// hall. Programs are small, so a nested loop is enough.
func Detect(in Input) (*Report, error) {
	report := &Report{
		FacultyConflicts: make([]FacultyConflict, 0),
		HallConflicts:    make([]HallConflict, 0),
		TravelConflicts:  make([]TravelConflict, 0),
	}

	byFaculty := make(map[string][]Occurrence)
	byHall := make(map[string][]Occurrence)
	for i := range in.Sessions {
		s := &in.Sessions[i]
		occurrences, err := Occurrences(s, in.Until)
		if err != nil {
			return nil, fmt.Errorf("Detect: %w", err)
		}
		if hall := strings.ToLower(strings.TrimSpace(s.Hall)); hall != "" {
			byHall[hall] = append(byHall[hall], occurrences...)
		}
		for _, a := range s.Assignments {
			byFaculty[a.FacultyID] = append(byFaculty[a.FacultyID], occurrences...)
		}
	}

	for facultyID, occurrences := range byFaculty {
		for _, pair := range overlapping(occurrences) {
			report.FacultyConflicts = append(report.FacultyConflicts, FacultyConflict{
				FacultyID:   facultyID,
				FacultyName: in.FacultyNames[facultyID],
				First:       pair[0],
				Second:      pair[1],
			})
		}
	}
	for _, occurrences := range byHall {
		for _, pair := range overlapping(occurrences) {
			report.HallConflicts = append(report.HallConflicts, HallConflict{
				Hall:   pair[0].Hall,
				First:  pair[0],
				Second: pair[1],
			})
		}
	}

	for _, travel := range in.Travel {
		if travel.Status == model.TRAVEL_STATUS_CANCELLED {
			continue
		}
		arrival, departure := travel.Arrival.At, travel.Departure.At
		for _, o := range byFaculty[travel.FacultyID] {
			c := TravelConflict{
				FacultyID:   travel.FacultyID,
				FacultyName: in.FacultyNames[travel.FacultyID],
				Session:     o,
				ArrivalAt:   arrival,
				DepartureAt: departure,
			}
			switch {
			case arrival != nil && o.Start.Before(*arrival):
				c.Reason = TRAVEL_BEFORE_ARRIVAL
			case departure != nil && o.End.After(*departure):
				c.Reason = TRAVEL_AFTER_DEPARTURE
			default:
				continue
			}
			report.TravelConflicts = append(report.TravelConflicts, c)
		}
	}

	sort.SliceStable(report.FacultyConflicts, func(i, j int) bool {
		a, b := report.FacultyConflicts[i], report.FacultyConflicts[j]
		if !a.First.Start.Equal(b.First.Start) {
			return a.First.Start.Before(b.First.Start)
		}
		if !a.Second.Start.Equal(b.Second.Start) {
			return a.Second.Start.Before(b.Second.Start)
		}
		return a.FacultyID < b.FacultyID
	})
	sort.SliceStable(report.HallConflicts, func(i, j int) bool {
		a, b := report.HallConflicts[i], report.HallConflicts[j]
		if !a.First.Start.Equal(b.First.Start) {
			return a.First.Start.Before(b.First.Start)
		}
		if !a.Second.Start.Equal(b.Second.Start) {
			return a.Second.Start.Before(b.Second.Start)
		}
		return a.Hall < b.Hall
	})
	sort.SliceStable(report.TravelConflicts, func(i, j int) bool {
		a, b := report.TravelConflicts[i], report.TravelConflicts[j]
		if !a.Session.Start.Equal(b.Session.Start) {
			return a.Session.Start.Before(b.Session.Start)
		}
		return a.FacultyID < b.FacultyID
	})
	return report, nil
}

// overlapping returns each overlapping pair once, earlier start first.
// Occurrences of the same session never conflict with each other.
func overlapping(occurrences []Occurrence) [][2]Occurrence {
	sort.Slice(occurrences, func(i, j int) bool {
		if !occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].Start.Before(occurrences[j].Start)
		}
		return occurrences[i].SessionID < occurrences[j].SessionID
	})
	pairs := make([][2]Occurrence, 0)
	for i := 0; i < len(occurrences); i++ {
		for j := i + 1; j < len(occurrences); j++ {
			if occurrences[i].SessionID == occurrences[j].SessionID {
				continue
			}
			if occurrences[i].Overlaps(occurrences[j]) {
				pairs = append(pairs, [2]Occurrence{occurrences[i], occurrences[j]})
			}
		}
	}
	return pairs
}

// Check loads the event program, faculty and travel and runs Detect.
func Check(ctx context.Context, db bun.IDB, event *model.Event) (*Report, error) {
	sessions, err := model.ListProgram(ctx, db, event.ID)
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}
	faculty, err := model.ListFaculty(ctx, db, event.ID, "")
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}
	names := make(map[string]string, len(faculty))
	for _, f := range faculty {
		names[f.ID] = f.Name
	}
	travel, err := model.ListTravel(ctx, db, event.ID, "")
	if err != nil {
		return nil, fmt.Errorf("Check: %w", err)
	}
	return Detect(Input{
		Sessions:     sessions,
		FacultyNames: names,
		Travel:       travel,
		Until:        ExpansionLimit(event),
	})
}

// ExpansionLimit is the instant recurrences stop at. An end date stored
// as local midnight means the whole last day is included.
func ExpansionLimit(event *model.Event) time.Time {
	until := event.EndDate
	local := until.In(event.Location(time.UTC))
	if local.Hour() == 0 && local.Minute() == 0 && local.Second() == 0 {
		until = until.AddDate(0, 0, 1)
	}
	return until
}
