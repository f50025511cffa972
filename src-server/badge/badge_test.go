package badge

import (
	"bytes"
	"errors"
	"testing"

	"confdesk/src-server/model"
)

func completeTemplate() *model.BadgeTemplate {
	return &model.BadgeTemplate{
		ID:       "t1",
		EventID:  "ev1",
		Name:     "A6",
		WidthMm:  105,
		HeightMm: 148,
		Elements: []model.BadgeElement{
			{Kind: model.BADGE_ELEMENT_TEXT, Text: "DELEGATE", XMm: 5, YMm: 5, WidthMm: 95, HeightMm: 12, FontSize: 18, Bold: true},
			{Kind: model.BADGE_ELEMENT_FIELD, Field: "attendee_name", XMm: 5, YMm: 30, WidthMm: 95, HeightMm: 14, FontSize: 22},
			{Kind: model.BADGE_ELEMENT_FIELD, Field: "institution", XMm: 5, YMm: 46, WidthMm: 95, HeightMm: 8, FontSize: 11},
			{Kind: model.BADGE_ELEMENT_LINE, XMm: 5, YMm: 58, WidthMm: 95, Color: "#cc0000"},
			{Kind: model.BADGE_ELEMENT_QR, XMm: 32.5, YMm: 70, WidthMm: 40, HeightMm: 40},
			{Kind: model.BADGE_ELEMENT_FIELD, Field: "registration_number", XMm: 5, YMm: 115, WidthMm: 95, HeightMm: 8, FontSize: 10, Align: "C"},
		},
	}
}

func codes(report Report) []string {
	out := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		out[i] = issue.Code
	}
	return out
}

func TestCheckComplete(t *testing.T) {
	report := Check(completeTemplate())
	if !report.Complete || len(report.Issues) != 0 {
		t.Fatalf("expected a clean report, got %+v", report.Issues)
	}
}

func TestCheckIssues(t *testing.T) {
	for _, tc := range []struct {
		name     string
		mutate   func(*model.BadgeTemplate)
		complete bool
		want     []string
	}{
		{
			name: "missing name",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[1].Field = "email"
			},
			want: []string{ISSUE_MISSING_NAME},
		},
		{
			name: "missing identifier",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[5].Field = "city"
				t.Elements = append(t.Elements[:4], t.Elements[5])
			},
			want: []string{ISSUE_MISSING_IDENTIFIER},
		},
		{
			name: "qr alone is an identifier",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements = t.Elements[:5]
			},
			complete: true,
			want:     []string{},
		},
		{
			name: "out of bounds",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[4].XMm = 80
			},
			want: []string{ISSUE_OUT_OF_BOUNDS},
		},
		{
			name: "unknown field",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[2].Field = "shoe_size"
			},
			want: []string{ISSUE_UNKNOWN_FIELD},
		},
		{
			name: "custom fields are known",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[2].Field = "custom.dietary"
			},
			complete: true,
			want:     []string{},
		},
		{
			name: "invalid font size",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[2].FontSize = 0
			},
			want: []string{ISSUE_INVALID_SIZE},
		},
		{
			name: "invalid page",
			mutate: func(t *model.BadgeTemplate) {
				t.HeightMm = 0
			},
			want: []string{ISSUE_INVALID_SIZE},
		},
		{
			name: "warnings only",
			mutate: func(t *model.BadgeTemplate) {
				t.Elements[0].Text = " "
				t.Elements[2].FontSize = 5
				t.Elements[2].YMm = 40
			},
			complete: true,
			want:     []string{ISSUE_EMPTY_TEXT, ISSUE_OVERLAP, ISSUE_SMALL_FONT},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			template := completeTemplate()
			tc.mutate(template)
			report := Check(template)
			if report.Complete != tc.complete {
				t.Errorf("Complete = %v, want %v", report.Complete, tc.complete)
			}
			got := codes(report)
			if len(got) != len(tc.want) {
				t.Fatalf("codes = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("codes = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestCheckOrdering(t *testing.T) {
	template := completeTemplate()
	template.Elements[1].Field = "nickname"
	template.Elements[5].FontSize = 4
	template.Elements[5].XMm = 50

	report := Check(template)
	if report.Complete {
		t.Fatal("template should be incomplete")
	}
	var prev Issue
	for i, issue := range report.Issues {
		if i > 0 && (issue.Element < prev.Element || issue.Element == prev.Element && issue.Code < prev.Code) {
			t.Fatalf("issues are out of order: %+v", report.Issues)
		}
		prev = issue
	}
	first := report.Issues[0]
	if first.Element != -1 || first.Code != ISSUE_MISSING_NAME {
		t.Errorf("first issue = %+v, want the template-level missing_name", first)
	}
	last := report.Issues[len(report.Issues)-1]
	if last.Element != 5 || last.Code != ISSUE_SMALL_FONT {
		t.Errorf("last issue = %+v", last)
	}
}

func TestRender(t *testing.T) {
	template := completeTemplate()
	template.Elements = append(template.Elements, model.BadgeElement{
		Kind: model.BADGE_ELEMENT_FIELD, Field: "ticket_type", XMm: 5, YMm: 125, WidthMm: 95, HeightMm: 8, FontSize: 10, Uppercase: true,
	})
	renderer := &Renderer{
		BaseURL:     "https://confdesk.example/",
		Event:       &model.Event{Name: "CardioCon 2026"},
		TicketNames: map[string]string{"tt1": "Delegate"},
	}
	registrations := []model.Registration{
		{TicketTypeID: "tt1", AttendeeName: "dr. asha  rao", Institution: "AIIMS delhi", RegistrationNumber: "CARD-000001", CheckInToken: "tok-1"},
		{TicketTypeID: "tt1", AttendeeName: "José Müller", RegistrationNumber: "CARD-000002", CheckInToken: "tok-2"},
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, template, registrations); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	if got := renderer.value(&registrations[0], "ticket_type"); got != "Delegate" {
		t.Errorf("ticket_type = %q", got)
	}
	if got := renderer.value(&registrations[0], "event_name"); got != "CardioCon 2026" {
		t.Errorf("event_name = %q", got)
	}

	template.Elements = template.Elements[1:2]
	err := renderer.Render(&buf, template, registrations)
	if !errors.Is(err, ErrIncomplete) || !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected an incomplete template error, got %v", err)
	}
}

func TestCheckInURL(t *testing.T) {
	reg := &model.Registration{CheckInToken: "abc"}
	if got := reg.CheckInURL("https://confdesk.example/"); got != "https://confdesk.example/c/abc" {
		t.Errorf("CheckInURL = %q", got)
	}
}

func TestDecodeDataURL(t *testing.T) {
	if _, kind, ok := decodeDataURL("data:image/jpeg;base64,/9j/"); !ok || kind != "JPG" {
		t.Errorf("jpeg data url: ok=%v kind=%s", ok, kind)
	}
	for _, s := range []string{"https://example.com/logo.png", "data:image/svg+xml;base64,AAAA", "data:image/png,raw"} {
		if _, _, ok := decodeDataURL(s); ok {
			t.Errorf("%q should not decode", s)
		}
	}
}
