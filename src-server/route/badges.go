package route

import (
	"bytes"
	"net/http"

	"confdesk/src-server/authz"
	"confdesk/src-server/badge"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

// badgeTemplate resolves ?template_id=, or the event's default template.
func badgeTemplate(as *utils.AppState, r *http.Request, eventID string) (*model.BadgeTemplate, error) {
	if id := r.URL.Query().Get("template_id"); id != "" {
		return model.GetBadgeTemplate(r.Context(), as.BunDB, eventID, id)
	}
	return model.GetDefaultBadgeTemplate(r.Context(), as.BunDB, eventID)
}

func renderBadges(as *utils.AppState, w http.ResponseWriter, r *http.Request, event *model.Event, registrations []model.Registration, filename string) {
	template, err := badgeTemplate(as, r, event.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := ticketNames(r.Context(), as, event.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderer := &badge.Renderer{
		BaseURL:     as.Config.GetPublicBaseURL(),
		Event:       event,
		TicketNames: names,
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, template, registrations); err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, r, "application/pdf", filename, buf.Bytes())
}

func Badges(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/badge-templates", Protected(as, "badge", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		templates, err := model.ListBadgeTemplates(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
	}))

	muxer.HandleFunc("POST /events/{id}/badge-templates", Protected(as, "badge", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		template := new(model.BadgeTemplate)
		if !readJSON(w, r, template) {
			return
		}
		template.ID = uuid.NewString()
		template.EventID = event.ID
		if err := template.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, template)
	}))

	muxer.HandleFunc("GET /events/{id}/badge-templates/{tid}", Protected(as, "badge", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetBadgeTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	}))

	muxer.HandleFunc("PUT /events/{id}/badge-templates/{tid}", Protected(as, "badge", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetBadgeTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, createdAt := template.ID, template.EventID, template.CreatedAt
		if !readJSON(w, r, template) {
			return
		}
		template.ID, template.EventID, template.CreatedAt = id, eventID, createdAt
		if err := template.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	}))

	muxer.HandleFunc("DELETE /events/{id}/badge-templates/{tid}", Protected(as, "badge", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteBadgeTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	muxer.HandleFunc("GET /events/{id}/badge-templates/{tid}/check", Protected(as, "badge", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetBadgeTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, badge.Check(template))
	}))

	muxer.HandleFunc("GET /events/{id}/registrations/{rid}/badge.pdf", Protected(as, "badge", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		registration, err := model.GetRegistration(r.Context(), as.BunDB, event.ID, r.PathValue("rid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		renderBadges(as, w, r, event, []model.Registration{*registration}, registration.RegistrationNumber+".pdf")
	}))

	// ?status= defaults to confirmed; ?status=all prints every registration
	muxer.HandleFunc("GET /events/{id}/badges.pdf", Protected(as, "badge", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		filter := registrationFilter(r)
		switch filter.Status {
		case "":
			filter.Status = model.REGISTRATION_STATUS_CONFIRMED
		case "all":
			filter.Status = ""
		}
		registrations, err := model.AllRegistrations(r.Context(), as.BunDB, event.ID, filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		renderBadges(as, w, r, event, registrations, event.Slug+"-badges.pdf")
	}))
}
