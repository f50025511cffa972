// Package badge checks badge templates for completeness and renders badges
// to PDF.
package badge

import (
	"fmt"
	"sort"
	"strings"

	"confdesk/src-server/model"
)

type Severity string

const (
	SEVERITY_ERROR   = Severity("error")
	SEVERITY_WARNING = Severity("warning")
)

const (
	ISSUE_MISSING_NAME       = "missing_name"
	ISSUE_MISSING_IDENTIFIER = "missing_identifier"
	ISSUE_OUT_OF_BOUNDS      = "out_of_bounds"
	ISSUE_UNKNOWN_FIELD      = "unknown_field"
	ISSUE_INVALID_SIZE       = "invalid_size"
	ISSUE_OVERLAP            = "overlap"
	ISSUE_SMALL_FONT         = "small_font"
	ISSUE_EMPTY_TEXT         = "empty_text"
)

// MinFontSize is the smallest font size, in points, printed without a
// warning.
const MinFontSize = 6

// Issue is one problem found in a template. Element is the index of the
// offending element, or -1 for problems with the template as a whole.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Element  int      `json:"element"`
}

type Report struct {
	Complete bool    `json:"complete"`
	Issues   []Issue `json:"issues"`
}

// Errors returns the issues with error severity.
func (r Report) Errors() []Issue {
	errs := make([]Issue, 0)
	for _, issue := range r.Issues {
		if issue.Severity == SEVERITY_ERROR {
			errs = append(errs, issue)
		}
	}
	return errs
}

// KnownField reports whether a field element may bind to name.
func KnownField(name string) bool {
	if key, ok := strings.CutPrefix(name, "custom."); ok {
		return strings.TrimSpace(key) != ""
	}
	for _, f := range model.RegistrationFields {
		if f == name {
			return true
		}
	}
	return false
}

type rect struct {
	x, y, w, h float64
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && b.x < a.x+a.w &&
		a.y < b.y+b.h && b.y < a.y+a.h
}

func hasText(kind model.BadgeElementKind) bool {
	return kind == model.BADGE_ELEMENT_TEXT || kind == model.BADGE_ELEMENT_FIELD
}

// Check runs the completeness checks on t. The template is complete when no
// issue has error severity. Issues are ordered by element index, then code.
func Check(t *model.BadgeTemplate) Report {
	issues := make([]Issue, 0)
	add := func(severity Severity, code string, element int, format string, args ...any) {
		issues = append(issues, Issue{
			Severity: severity,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
			Element:  element,
		})
	}

	pageOK := t.WidthMm > 0 && t.HeightMm > 0
	if !pageOK {
		add(SEVERITY_ERROR, ISSUE_INVALID_SIZE, -1, "page size %gx%g mm is not positive", t.WidthMm, t.HeightMm)
	}

	hasName, hasIdentifier := false, false
	sized := make(map[int]rect, len(t.Elements))
	for i, e := range t.Elements {
		switch e.Kind {
		case model.BADGE_ELEMENT_FIELD:
			switch {
			case !KnownField(e.Field):
				add(SEVERITY_ERROR, ISSUE_UNKNOWN_FIELD, i, "field %q is not a registration field", e.Field)
			case e.Field == "attendee_name":
				hasName = true
			case e.Field == "registration_number":
				hasIdentifier = true
			}
		case model.BADGE_ELEMENT_QR:
			hasIdentifier = true
		case model.BADGE_ELEMENT_TEXT:
			if strings.TrimSpace(e.Text) == "" {
				add(SEVERITY_WARNING, ISSUE_EMPTY_TEXT, i, "text element has no text")
			}
		case model.BADGE_ELEMENT_IMAGE, model.BADGE_ELEMENT_LINE:
		default:
			add(SEVERITY_ERROR, ISSUE_UNKNOWN_FIELD, i, "element kind %q is unknown", e.Kind)
		}

		validSize := e.WidthMm > 0 && e.HeightMm > 0
		if e.Kind == model.BADGE_ELEMENT_LINE {
			// a line may be horizontal or vertical
			validSize = e.WidthMm >= 0 && e.HeightMm >= 0 && e.WidthMm+e.HeightMm > 0
		}
		switch {
		case !validSize:
			add(SEVERITY_ERROR, ISSUE_INVALID_SIZE, i, "element size %gx%g mm is not positive", e.WidthMm, e.HeightMm)
		case hasText(e.Kind) && e.FontSize <= 0:
			add(SEVERITY_ERROR, ISSUE_INVALID_SIZE, i, "font size %g is not positive", e.FontSize)
		}
		if hasText(e.Kind) && e.FontSize > 0 && e.FontSize < MinFontSize {
			add(SEVERITY_WARNING, ISSUE_SMALL_FONT, i, "font size %g is below %d pt", e.FontSize, MinFontSize)
		}

		if pageOK && (e.XMm < 0 || e.YMm < 0 || e.XMm+e.WidthMm > t.WidthMm || e.YMm+e.HeightMm > t.HeightMm) {
			add(SEVERITY_ERROR, ISSUE_OUT_OF_BOUNDS, i, "element at (%g, %g) size %gx%g mm leaves the %gx%g mm page",
				e.XMm, e.YMm, e.WidthMm, e.HeightMm, t.WidthMm, t.HeightMm)
		}
		if validSize && e.Kind != model.BADGE_ELEMENT_LINE {
			sized[i] = rect{e.XMm, e.YMm, e.WidthMm, e.HeightMm}
		}
	}

	for j := range t.Elements {
		b, ok := sized[j]
		if !ok {
			continue
		}
		for i := 0; i < j; i++ {
			if a, ok := sized[i]; ok && a.intersects(b) {
				add(SEVERITY_WARNING, ISSUE_OVERLAP, j, "element overlaps element %d", i)
			}
		}
	}

	if !hasName {
		add(SEVERITY_ERROR, ISSUE_MISSING_NAME, -1, "no field element shows attendee_name")
	}
	if !hasIdentifier {
		add(SEVERITY_ERROR, ISSUE_MISSING_IDENTIFIER, -1, "no qr element and no field element shows registration_number")
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Element != issues[j].Element {
			return issues[i].Element < issues[j].Element
		}
		return issues[i].Code < issues[j].Code
	})
	report := Report{Complete: true, Issues: issues}
	for _, issue := range issues {
		if issue.Severity == SEVERITY_ERROR {
			report.Complete = false
			break
		}
	}
	return report
}
