// Package conflict finds scheduling clashes in an event program: a faculty
// member booked into overlapping sessions, two sessions sharing a hall at
// the same time, and sessions outside a faculty member's travel window.
package conflict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"confdesk/src-server/model"

	"github.com/xyedo/rrule"
)

// maxOccurrences bounds the expansion of open-ended rules.
const maxOccurrences = 500

var ErrInvalidRRule = errors.New("invalid recurrence rule")

// Occurrence is one concrete [Start, End) slot of a session.
type Occurrence struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Hall      string    `json:"hall,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Overlaps reports whether the half-open intervals intersect. Touching
// intervals (a.End == b.Start) don't.
func (o Occurrence) Overlaps(other Occurrence) bool {
	return o.Start.Before(other.End) && other.Start.Before(o.End)
}

func ruleSet(rule string, start time.Time) (*rrule.Set, error) {
	var sb strings.Builder
	sb.WriteString("DTSTART:" + start.UTC().Format("20060102T150405Z"))
	sb.WriteString("\nRRULE:" + strings.TrimPrefix(rule, "RRULE:"))
	set, err := rrule.StrToRRuleSet(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRRule, err)
	}
	return set, nil
}

// ValidateRRule checks that rule parses with start as DTSTART.
func ValidateRRule(rule string, start time.Time) error {
	if strings.TrimSpace(rule) == "" {
		return nil
	}
	_, err := ruleSet(rule, start)
	return err
}

// Occurrences expands a session into its slots. Recurring sessions are
// bounded by the earlier of the session's rrule_until and until; the first
// slot is always the session itself.
func Occurrences(s *model.ProgramSession, until time.Time) ([]Occurrence, error) {
	base := Occurrence{
		SessionID: s.ID,
		Title:     s.Title,
		Hall:      s.Hall,
		Start:     s.StartAt.UTC(),
		End:       s.EndAt.UTC(),
	}
	if s.RRule == "" {
		return []Occurrence{base}, nil
	}
	set, err := ruleSet(s.RRule, s.StartAt)
	if err != nil {
		return nil, fmt.Errorf("Occurrences: session %s: %w", s.ID, err)
	}
	if s.RRuleUntil != nil && s.RRuleUntil.Before(until) {
		until = *s.RRuleUntil
	}
	duration := s.Duration()
	starts := set.Between(s.StartAt.UTC(), until.UTC(), true)
	occurrences := make([]Occurrence, 0, len(starts)+1)
	occurrences = append(occurrences, base)
	for _, start := range starts {
		if len(occurrences) == maxOccurrences {
			break
		}
		if start.Equal(base.Start) {
			continue
		}
		o := base
		o.Start = start.UTC()
		o.End = o.Start.Add(duration)
		occurrences = append(occurrences, o)
	}
	return occurrences, nil
}
