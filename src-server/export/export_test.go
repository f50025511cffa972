package export_test

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"confdesk/src-server/export"
	"confdesk/src-server/model"
)

func readAll(t *testing.T, b *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(b).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestRegistrations(t *testing.T) {
	checkedIn := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := export.Registrations(&buf, []model.Registration{
		{
			RegistrationNumber: "CARD-000001",
			AttendeeName:       "Asha Rao",
			Email:              "asha@example.com",
			Phone:              "+919800000000",
			TicketTypeID:       "tt-1",
			Status:             model.REGISTRATION_STATUS_CONFIRMED,
			PaymentStatus:      model.PAYMENT_STATUS_PAID,
			AmountCents:        250050,
			Currency:           "INR",
			CheckedInAt:        &checkedIn,
			CustomFields:       map[string]string{"diet": "veg"},
			CreatedAt:          checkedIn.Add(-48 * time.Hour),
		},
		{
			RegistrationNumber: "CARD-000002",
			AttendeeName:       "=HYPERLINK(\"http://evil\")",
			Email:              "b@example.com",
			TicketTypeID:       "tt-1",
			CustomFields:       map[string]string{"airport": "BLR"},
		},
	}, map[string]string{"tt-1": "Delegate"}, time.FixedZone("IST", 5*3600+1800))
	if err != nil {
		t.Fatal(err)
	}
	records := readAll(t, &buf)
	if len(records) != 3 {
		t.Fatalf("rows = %d", len(records))
	}
	header := records[0]
	if got := header[len(header)-2:]; got[0] != "custom.airport" || got[1] != "custom.diet" {
		t.Errorf("custom columns = %v", got)
	}
	row := records[1]
	if row[3] != "+919800000000" || row[8] != "Delegate" || row[11] != "2500.50" {
		t.Errorf("row = %v", row)
	}
	if row[14] != "2026-03-10 09:00" {
		t.Errorf("checked in at = %q", row[14])
	}
	if row[len(row)-1] != "veg" || row[len(row)-2] != "" {
		t.Errorf("custom values = %v", row[len(row)-2:])
	}
	if !strings.HasPrefix(records[2][1], "'=") {
		t.Errorf("formula not neutralized: %q", records[2][1])
	}
}

func TestFormSubmissions(t *testing.T) {
	form := &model.Form{Fields: []model.FormField{{Key: "diet"}, {Key: "workshops"}, {Key: "age"}}}
	var buf bytes.Buffer
	if err := export.FormSubmissions(&buf, form, []model.FormSubmission{
		{Email: "a@example.com", Data: map[string]any{"diet": "veg", "workshops": []any{"echo", "ecg"}, "age": float64(34)}},
	}, time.UTC); err != nil {
		t.Fatal(err)
	}
	records := readAll(t, &buf)
	if got := strings.Join(records[1][1:], "|"); got != "a@example.com|veg|echo; ecg|34" {
		t.Errorf("row = %s", got)
	}
}

func TestReadRegistrations(t *testing.T) {
	sheet := "Name, Email ,Ticket,Phone\n" +
		"Asha Rao,asha@example.com,Delegate,+91 98000 00000\n" +
		",,,\n" +
		"\"Bala, Jr\",bala@example.com,Student\n"
	rows, err := export.ReadRegistrations(strings.NewReader(sheet))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Line != 2 || rows[0].Name != "Asha Rao" || rows[0].Ticket != "Delegate" || rows[0].Phone != "+91 98000 00000" {
		t.Errorf("first = %+v", rows[0])
	}
	if rows[1].Line != 4 || rows[1].Name != "Bala, Jr" || rows[1].Phone != "" {
		t.Errorf("second = %+v", rows[1])
	}

	// spreadsheet exports often start with a byte order mark
	rows, err = export.ReadRegistrations(strings.NewReader("\uFEFFName,Email\nAsha Rao,asha@example.com\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "Asha Rao" || rows[0].Email != "asha@example.com" {
		t.Errorf("bom sheet = %+v", rows)
	}

	if _, err := export.ReadRegistrations(strings.NewReader("full name,mail\nx,y\n")); !errors.Is(err, export.ErrBadSheet) {
		t.Errorf("got %v", err)
	}
}
