package route

import (
	"net/http"

	"confdesk/src-server/authz"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

func Events(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events", Protected(as, "event", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		opts := listOptions(r)
		events, total, err := model.ListEvents(r.Context(), as.BunDB, model.EventFilter{
			Status: model.EventStatus(r.URL.Query().Get("status")),
			Query:  r.URL.Query().Get("q"),
		}, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, events, total, opts)
	}))

	muxer.HandleFunc("POST /events", Protected(as, "event", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event := new(model.Event)
		if !readJSON(w, r, event) {
			return
		}
		event.ID = uuid.NewString()
		event.RegistrationSeq = 0
		event.AbstractSeq = 0
		if err := event.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	}))

	muxer.HandleFunc("GET /events/{id}", Protected(as, "event", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, event)
	}))

	// fields missing from the body keep their stored values
	muxer.HandleFunc("PUT /events/{id}", Protected(as, "event", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		id, createdAt := event.ID, event.CreatedAt
		if !readJSON(w, r, event) {
			return
		}
		event.ID, event.CreatedAt = id, createdAt
		if err := event.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, event)
	}))

	muxer.HandleFunc("DELETE /events/{id}", Protected(as, "event", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteEvent(r.Context(), as.BunDB, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	type PublicEventResBody struct {
		*model.Event
		TicketTypes []model.TicketType `json:"ticket_types"`
	}

	muxer.HandleFunc("GET /public/events/{slug}", func(w http.ResponseWriter, r *http.Request) {
		event, err := model.GetEventBySlug(r.Context(), as.BunDB, r.PathValue("slug"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if event.Status != model.EVENT_STATUS_PUBLISHED {
			writeMessage(w, http.StatusNotFound, "event not found")
			return
		}
		ticketTypes, err := model.ListTicketTypes(r.Context(), as.BunDB, event.ID, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, PublicEventResBody{Event: event, TicketTypes: ticketTypes})
	})
}

func TicketTypes(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/ticket-types", Protected(as, "ticket_type", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		ticketTypes, err := model.ListTicketTypes(r.Context(), as.BunDB, r.PathValue("id"), false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ticketTypes)
	}))

	muxer.HandleFunc("POST /events/{id}/ticket-types", Protected(as, "ticket_type", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		ticketType := new(model.TicketType)
		if !readJSON(w, r, ticketType) {
			return
		}
		ticketType.ID = uuid.NewString()
		ticketType.EventID = event.ID
		ticketType.QuantitySold = 0
		if ticketType.Currency == "" {
			ticketType.Currency = event.Currency
		}
		if err := ticketType.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ticketType)
	}))

	muxer.HandleFunc("GET /events/{id}/ticket-types/{tid}", Protected(as, "ticket_type", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		ticketType, err := model.GetTicketType(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ticketType)
	}))

	muxer.HandleFunc("PUT /events/{id}/ticket-types/{tid}", Protected(as, "ticket_type", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		ticketType, err := model.GetTicketType(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, sold, createdAt := ticketType.ID, ticketType.EventID, ticketType.QuantitySold, ticketType.CreatedAt
		if !readJSON(w, r, ticketType) {
			return
		}
		ticketType.ID, ticketType.EventID, ticketType.QuantitySold, ticketType.CreatedAt = id, eventID, sold, createdAt
		if err := ticketType.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ticketType)
	}))

	muxer.HandleFunc("DELETE /events/{id}/ticket-types/{tid}", Protected(as, "ticket_type", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteTicketType(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}
