package badge

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

var ErrIncomplete = errors.New("badge template has errors")

// fields printed with CleanupName unless the element asks for upper case
var nameFields = map[string]bool{
	"attendee_name": true,
	"designation":   true,
	"institution":   true,
	"city":          true,
	"country":       true,
}

// Renderer prints badges for one event.
type Renderer struct {
	BaseURL     string
	Event       *model.Event
	TicketNames map[string]string // ticket type id -> name
}

func (r *Renderer) value(reg *model.Registration, field string) string {
	switch field {
	case "ticket_type":
		return r.TicketNames[reg.TicketTypeID]
	case "event_name":
		if r.Event != nil {
			return r.Event.Name
		}
		return ""
	}
	return reg.Field(field)
}

// Render writes one page per registration to w. Templates with error
// issues are refused.
func (r *Renderer) Render(w io.Writer, t *model.BadgeTemplate, registrations []model.Registration) error {
	if report := Check(t); !report.Complete {
		errs := report.Errors()
		return fmt.Errorf("(*Renderer).Render: %w: %w: %s", model.ErrConflict, ErrIncomplete, errs[0].Message)
	}
	if len(registrations) == 0 {
		return fmt.Errorf("(*Renderer).Render: %w: no registrations to print", model.ErrInvalid)
	}

	pdf := NewPDF(t.WidthMm, t.HeightMm)
	for i := range registrations {
		reg := &registrations[i]
		pdf.AddPage()
		DrawElements(pdf, t.Elements, func(field string) string {
			return r.value(reg, field)
		}, reg.CheckInURL(r.BaseURL))
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("(*Renderer).Render: %w", err)
	}
	return nil
}

// NewPDF returns a document with pages of the given size in millimetres and
// no margins or automatic page breaks.
func NewPDF(widthMm, heightMm float64) *fpdf.Fpdf {
	orientation := "P"
	if widthMm > heightMm {
		orientation = "L"
	}
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: widthMm, Ht: heightMm},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("confdesk", true)
	return pdf
}

func parseColor(s string) (int, int, int) {
	var r, g, b int
	if _, err := fmt.Sscanf(strings.TrimPrefix(s, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0
	}
	return r, g, b
}

func alignOf(s string) string {
	switch strings.ToUpper(s) {
	case "L", "R":
		return strings.ToUpper(s)
	}
	return "C"
}

// DrawElements draws elements on the current page. value resolves field
// bindings and qrPayload is encoded by qr elements.
func DrawElements(pdf *fpdf.Fpdf, elements []model.BadgeElement, value func(field string) string, qrPayload string) {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i, e := range elements {
		switch e.Kind {
		case model.BADGE_ELEMENT_TEXT, model.BADGE_ELEMENT_FIELD:
			text := e.Text
			if e.Kind == model.BADGE_ELEMENT_FIELD {
				text = value(e.Field)
				if !e.Uppercase && nameFields[e.Field] {
					text = utils.CleanupName(text)
				}
			}
			if e.Uppercase {
				text = strings.ToUpper(text)
			}
			drawText(pdf, e, tr(text))
		case model.BADGE_ELEMENT_QR:
			png, err := qrcode.Encode(qrPayload, qrcode.Medium, 512)
			if err != nil {
				slog.Warn("can't encode badge qr code", "error", err)
				continue
			}
			name := fmt.Sprintf("qr-%d-%d", pdf.PageNo(), i)
			opts := fpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
			pdf.ImageOptions(name, e.XMm, e.YMm, e.WidthMm, e.HeightMm, false, opts, 0, "")
		case model.BADGE_ELEMENT_IMAGE:
			data, imageType, ok := decodeDataURL(e.ImageURL)
			if !ok {
				slog.Debug("skipping badge image that is not a data url", "element", i)
				continue
			}
			name := fmt.Sprintf("img-%d", i)
			opts := fpdf.ImageOptions{ImageType: imageType}
			if pdf.GetImageInfo(name) == nil {
				pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
			}
			pdf.ImageOptions(name, e.XMm, e.YMm, e.WidthMm, e.HeightMm, false, opts, 0, "")
		case model.BADGE_ELEMENT_LINE:
			pdf.SetDrawColor(parseColor(e.Color))
			pdf.SetLineWidth(0.3)
			pdf.Line(e.XMm, e.YMm, e.XMm+e.WidthMm, e.YMm+e.HeightMm)
		}
	}
}

// drawText prints a single line, shrinking the font until it fits the box.
func drawText(pdf *fpdf.Fpdf, e model.BadgeElement, text string) {
	style := ""
	if e.Bold {
		style = "B"
	}
	size := e.FontSize
	pdf.SetFont("Helvetica", style, size)
	for size > MinFontSize && pdf.GetStringWidth(text) > e.WidthMm {
		size -= 0.5
		pdf.SetFontSize(size)
	}
	pdf.SetTextColor(parseColor(e.Color))
	pdf.SetXY(e.XMm, e.YMm)
	pdf.CellFormat(e.WidthMm, e.HeightMm, text, "", 0, alignOf(e.Align)+"M", false, 0, "")
}

// decodeDataURL reads "data:image/png;base64,...". Remote images are not
// fetched.
func decodeDataURL(s string) ([]byte, string, bool) {
	rest, ok := strings.CutPrefix(s, "data:image/")
	if !ok {
		return nil, "", false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", false
	}
	imageType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return nil, "", false
	}
	switch imageType = strings.ToUpper(imageType); imageType {
	case "PNG", "JPG", "GIF":
	case "JPEG":
		imageType = "JPG"
	default:
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	return data, imageType, true
}
