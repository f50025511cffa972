package route

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/bus"
	"confdesk/src-server/export"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

type RegistrationReqBody struct {
	TicketTypeID string            `json:"ticket_type_id" validate:"required"`
	AttendeeName string            `json:"attendee_name" validate:"required,max=200"`
	Email        string            `json:"email" validate:"required,email"`
	Phone        string            `json:"phone" validate:"omitempty,max=32"`
	Designation  string            `json:"designation"`
	Institution  string            `json:"institution"`
	City         string            `json:"city"`
	Country      string            `json:"country"`
	CustomFields map[string]string `json:"custom_fields"`
}

func (b RegistrationReqBody) input(source model.RegistrationSource) model.RegistrationInput {
	return model.RegistrationInput{
		TicketTypeID: b.TicketTypeID,
		AttendeeName: b.AttendeeName,
		Email:        b.Email,
		Phone:        b.Phone,
		Designation:  b.Designation,
		Institution:  b.Institution,
		City:         b.City,
		Country:      b.Country,
		CustomFields: b.CustomFields,
		Source:       source,
	}
}

func publish(as *utils.AppState, topic string, e bus.Event) {
	if err := as.Bus.Publish(topic, e); err != nil {
		slog.Warn("can't publish domain event", "topic", topic, "error", err)
	}
}

func ticketNames(ctx context.Context, as *utils.AppState, eventID string) (map[string]string, error) {
	ticketTypes, err := model.ListTicketTypes(ctx, as.BunDB, eventID, false)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(ticketTypes))
	for _, t := range ticketTypes {
		names[t.ID] = t.Name
	}
	return names, nil
}

func registrationFilter(r *http.Request) model.RegistrationFilter {
	q := r.URL.Query()
	return model.RegistrationFilter{
		Status:        model.RegistrationStatus(q.Get("status")),
		TicketTypeID:  q.Get("ticket_type_id"),
		PaymentStatus: model.PaymentStatus(q.Get("payment_status")),
		CheckedIn:     queryBool(r, "checked_in"),
		Query:         q.Get("q"),
	}
}

func Registrations(muxer *http.ServeMux, as *utils.AppState) {
	muxer.Handle("POST /public/events/{slug}/register", PublicRateLimit(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody RegistrationReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		event, err := model.GetEventBySlug(r.Context(), as.BunDB, r.PathValue("slug"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		registration, err := model.Register(r.Context(), as.BunDB, event.ID, reqBody.input(model.REGISTRATION_SOURCE_WEB), true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		publish(as, bus.TOPIC_REGISTRATION_CREATED, bus.Event{EventID: event.ID, SubjectID: registration.ID})
		writeJSON(w, http.StatusCreated, registration)
	}))

	muxer.HandleFunc("GET /events/{id}/registrations", Protected(as, "registration", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		opts := listOptions(r)
		registrations, total, err := model.ListRegistrations(r.Context(), as.BunDB, r.PathValue("id"), registrationFilter(r), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, registrations, total, opts)
	}))

	// organizers may register outside the sales window and while closed
	muxer.HandleFunc("POST /events/{id}/registrations", Protected(as, "registration", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody RegistrationReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		registration, err := model.Register(r.Context(), as.BunDB, r.PathValue("id"), reqBody.input(model.REGISTRATION_SOURCE_MANUAL), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		publish(as, bus.TOPIC_REGISTRATION_CREATED, bus.Event{EventID: registration.EventID, SubjectID: registration.ID})
		writeJSON(w, http.StatusCreated, registration)
	}))

	muxer.HandleFunc("GET /events/{id}/registrations/{rid}", Protected(as, "registration", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		registration, err := model.GetRegistration(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("rid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, registration)
	}))

	type UpdateReqBody struct {
		AttendeeName  *string              `json:"attendee_name" validate:"omitnil,min=1,max=200"`
		Email         *string              `json:"email" validate:"omitnil,email"`
		Phone         *string              `json:"phone" validate:"omitnil,max=32"`
		Designation   *string              `json:"designation"`
		Institution   *string              `json:"institution"`
		City          *string              `json:"city"`
		Country       *string              `json:"country"`
		PaymentStatus *model.PaymentStatus `json:"payment_status" validate:"omitnil,oneof=pending paid free refunded waived"`
		CustomFields  map[string]string    `json:"custom_fields"`
	}

	muxer.HandleFunc("PATCH /events/{id}/registrations/{rid}", Protected(as, "registration", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody UpdateReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		registration, err := model.UpdateRegistration(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("rid"), model.RegistrationUpdate{
			AttendeeName:  reqBody.AttendeeName,
			Email:         reqBody.Email,
			Phone:         reqBody.Phone,
			Designation:   reqBody.Designation,
			Institution:   reqBody.Institution,
			City:          reqBody.City,
			Country:       reqBody.Country,
			PaymentStatus: reqBody.PaymentStatus,
			CustomFields:  reqBody.CustomFields,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, registration)
	}))

	muxer.HandleFunc("POST /events/{id}/registrations/{rid}/confirm", Protected(as, "registration", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		before, err := model.GetRegistration(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("rid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		registration, err := model.ConfirmRegistration(r.Context(), as.BunDB, before.EventID, before.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if before.Status != model.REGISTRATION_STATUS_CONFIRMED {
			publish(as, bus.TOPIC_REGISTRATION_CONFIRMED, bus.Event{EventID: registration.EventID, SubjectID: registration.ID})
		}
		writeJSON(w, http.StatusOK, registration)
	}))

	muxer.HandleFunc("POST /events/{id}/registrations/{rid}/cancel", Protected(as, "registration", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		registration, err := model.CancelRegistration(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("rid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, registration)
	}))

	type CheckInReqBody struct {
		Token              string `json:"token"`
		RegistrationNumber string `json:"registration_number"`
	}
	type CheckInResBody struct {
		AlreadyCheckedIn bool                `json:"already_checked_in"`
		Registration     *model.Registration `json:"registration"`
	}

	muxer.HandleFunc("POST /events/{id}/check-in", Protected(as, "check_in", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody CheckInReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		// scanners send the whole QR payload
		token := reqBody.Token
		if i := strings.LastIndex(token, "/c/"); i >= 0 {
			token = token[i+len("/c/"):]
		}
		registration, err := model.FindRegistrationForCheckIn(r.Context(), as.BunDB, r.PathValue("id"), strings.TrimSpace(token), reqBody.RegistrationNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}
		already, err := model.CheckIn(r.Context(), as.BunDB, registration, time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CheckInResBody{AlreadyCheckedIn: already, Registration: registration})
	}))

	type ImportRowResult struct {
		Line               int    `json:"line"`
		Email              string `json:"email"`
		OK                 bool   `json:"ok"`
		RegistrationNumber string `json:"registration_number,omitempty"`
		Error              string `json:"error,omitempty"`
	}
	type ImportResBody struct {
		Imported int               `json:"imported"`
		Failed   int               `json:"failed"`
		Rows     []ImportRowResult `json:"rows"`
	}

	// imported attendees get no automatic confirmation message
	muxer.HandleFunc("POST /events/{id}/registrations/import", Protected(as, "registration", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		sheet, err := importSheet(w, r)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "can't read import sheet: "+err.Error())
			return
		}
		rows, err := export.ReadRegistrations(sheet)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ticketTypes, err := model.ListTicketTypes(r.Context(), as.BunDB, event.ID, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ticketByName := make(map[string]string, len(ticketTypes))
		for _, t := range ticketTypes {
			ticketByName[strings.ToLower(t.Name)] = t.ID
		}

		resBody := ImportResBody{Rows: make([]ImportRowResult, 0, len(rows))}
		for _, row := range rows {
			result := ImportRowResult{Line: row.Line, Email: row.Email}
			ticketTypeID := ticketByName[strings.ToLower(row.Ticket)]
			switch {
			case row.Ticket == "" && len(ticketTypes) > 0:
				ticketTypeID = ticketTypes[0].ID
			case ticketTypeID == "":
				result.Error = "unknown ticket " + row.Ticket
				resBody.Failed++
				resBody.Rows = append(resBody.Rows, result)
				continue
			}
			registration, err := model.Register(r.Context(), as.BunDB, event.ID, model.RegistrationInput{
				TicketTypeID: ticketTypeID,
				AttendeeName: row.Name,
				Email:        row.Email,
				Phone:        row.Phone,
				Designation:  row.Designation,
				Institution:  row.Institution,
				City:         row.City,
				Country:      row.Country,
				Source:       model.REGISTRATION_SOURCE_IMPORT,
			}, false)
			if err != nil {
				if statusOf(err) >= 500 {
					writeError(w, r, err)
					return
				}
				result.Error = publicMessage(err)
				resBody.Failed++
				resBody.Rows = append(resBody.Rows, result)
				continue
			}
			result.OK = true
			result.RegistrationNumber = registration.RegistrationNumber
			resBody.Imported++
			resBody.Rows = append(resBody.Rows, result)
		}
		writeJSON(w, http.StatusOK, resBody)
	}))

	muxer.HandleFunc("GET /events/{id}/registrations/export.csv", Protected(as, "registration", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		registrations, err := model.AllRegistrations(r.Context(), as.BunDB, event.ID, registrationFilter(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		names, err := ticketNames(r.Context(), as, event.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Registrations(&buf, registrations, names, eventLocation(as, event)); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/csv; charset=utf-8", event.Slug+"-registrations.csv", buf.Bytes())
	}))
}

// importSheet returns the uploaded "file" of a multipart form, or the raw
// body for any other content type.
func importSheet(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	return file, nil
}
