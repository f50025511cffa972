package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrBadSheet = errors.New("bad import sheet")

// ImportRow is one attendee from the registration import sheet. Line is
// the 1-based line number in the file, header included.
type ImportRow struct {
	Line        int    `json:"line"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Designation string `json:"designation"`
	Institution string `json:"institution"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Ticket      string `json:"ticket"`
}

var importColumns = []string{"name", "email", "phone", "designation", "institution", "city", "country", "ticket"}

// ReadRegistrations parses the import sheet. Columns are matched by header
// name, case-insensitively; name and email are mandatory, the rest
// optional. Blank lines are skipped.
func ReadRegistrations(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ReadRegistrations: %w: can't read header: %s", ErrBadSheet, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, required := range []string{"name", "email"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("ReadRegistrations: %w: missing %q column", ErrBadSheet, required)
		}
	}

	rows := make([]ImportRow, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadRegistrations: %w: %s", ErrBadSheet, err)
		}
		line, _ := reader.FieldPos(0)
		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		blank := true
		for _, column := range importColumns {
			if get(column) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		rows = append(rows, ImportRow{
			Line:        line,
			Name:        get("name"),
			Email:       get("email"),
			Phone:       get("phone"),
			Designation: get("designation"),
			Institution: get("institution"),
			City:        get("city"),
			Country:     get("country"),
			Ticket:      get("ticket"),
		})
	}
	return rows, nil
}
