package certificate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"confdesk/src-server/badge"
	"confdesk/src-server/messaging"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
	"github.com/uptrace/bun"
)

// VerifyURL is printed on every certificate and encoded in its QR code.
func VerifyURL(baseURL, number string) string {
	return strings.TrimRight(baseURL, "/") + "/public/certificates/" + number
}

type Renderer struct {
	BaseURL  string
	Location *time.Location // fallback when the event has no timezone
}

// Variables returns the placeholders available in a template body: the
// event's, the recipient's and the certificate's own.
func (r *Renderer) Variables(event *model.Event, cert *model.Certificate, recipient map[string]string) map[string]string {
	fallback := r.Location
	if fallback == nil {
		fallback = time.UTC
	}
	vars := event.Variables(fallback)
	for k, v := range recipient {
		vars[k] = v
	}
	name := utils.CleanupName(cert.RecipientName)
	vars["name"] = name
	vars["recipient_name"] = name
	vars["attendee_name"] = name
	vars["certificate_number"] = cert.CertificateNumber
	vars["issued_on"] = cert.IssuedAt.In(event.Location(fallback)).Format("2 January 2006")
	vars["verify_url"] = VerifyURL(r.BaseURL, cert.CertificateNumber)
	return vars
}

// RecipientVariables loads the registration or faculty behind cert.
func RecipientVariables(ctx context.Context, db bun.IDB, cert *model.Certificate) (map[string]string, error) {
	switch {
	case cert.RegistrationID != "":
		reg, err := model.GetRegistration(ctx, db, cert.EventID, cert.RegistrationID)
		if err != nil {
			return nil, fmt.Errorf("RecipientVariables: %w", err)
		}
		return reg.Variables(), nil
	case cert.FacultyID != "":
		faculty, err := model.GetFaculty(ctx, db, cert.EventID, cert.FacultyID)
		if err != nil {
			return nil, fmt.Errorf("RecipientVariables: %w", err)
		}
		return faculty.Variables(), nil
	}
	return map[string]string{}, nil
}

// Render writes the certificate as a one page A4 PDF.
func (r *Renderer) Render(w io.Writer, event *model.Event, template *model.CertificateTemplate, cert *model.Certificate, recipient map[string]string) error {
	vars := r.Variables(event, cert, recipient)
	verifyURL := vars["verify_url"]

	orientation := "L"
	if template.Orientation == "P" {
		orientation = "P"
	}
	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("confdesk", true)
	pdf.SetTitle(messaging.Render(template.Title, vars), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	width, height := pdf.GetPageSize()
	inner := width - 40

	pdf.SetDrawColor(90, 90, 90)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(13, 13, width-26, height-26, "D")

	pdf.SetTextColor(30, 30, 30)
	pdf.SetFont("Times", "B", 32)
	pdf.SetXY(20, height*0.16)
	pdf.CellFormat(inner, 14, tr(messaging.Render(template.Title, vars)), "", 1, "CM", false, 0, "")

	pdf.SetFont("Times", "I", 13)
	pdf.SetX(20)
	pdf.CellFormat(inner, 10, tr(event.Name), "", 1, "CM", false, 0, "")

	pdf.SetFont("Times", "B", 26)
	pdf.SetXY(20, height*0.36)
	pdf.CellFormat(inner, 14, tr(vars["recipient_name"]), "", 1, "CM", false, 0, "")

	pdf.SetFont("Times", "", 14)
	pdf.SetXY(30, height*0.36+20)
	pdf.MultiCell(width-60, 7.5, tr(messaging.Render(template.Body, vars)), "", "C", false)

	if template.SignatoryName != "" {
		x := width - 20 - 80
		y := height - 50
		pdf.Line(x, y, x+80, y)
		pdf.SetFont("Times", "B", 12)
		pdf.SetXY(x, y+1)
		pdf.CellFormat(80, 6, tr(template.SignatoryName), "", 2, "CT", false, 0, "")
		pdf.SetFont("Times", "", 11)
		pdf.CellFormat(80, 6, tr(template.SignatoryTitle), "", 0, "CT", false, 0, "")
	}

	png, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("(*Renderer).Render: %w", err)
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verify", opts, bytes.NewReader(png))
	pdf.ImageOptions("verify", 20, height-52, 26, 26, false, opts, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(20, height-25)
	pdf.CellFormat(120, 4, "Certificate no. "+cert.CertificateNumber, "", 2, "LM", false, 0, "")
	pdf.CellFormat(120, 4, "Verify at "+verifyURL, "", 0, "LM", false, 0, "")

	if len(template.Elements) > 0 {
		badge.DrawElements(pdf, template.Elements, func(field string) string {
			return vars[field]
		}, verifyURL)
	}

	if cert.Revoked() {
		pdf.SetTextColor(200, 30, 30)
		pdf.SetFont("Helvetica", "B", 48)
		pdf.SetXY(20, height/2-12)
		pdf.CellFormat(inner, 24, "REVOKED", "", 0, "CM", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("(*Renderer).Render: %w", err)
	}
	return nil
}
