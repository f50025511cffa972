package route

import (
	"net/http"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/conflict"
	"confdesk/src-server/ical"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

func saveSession(as *utils.AppState, w http.ResponseWriter, r *http.Request, session *model.ProgramSession, status int) {
	if err := conflict.ValidateRRule(session.RRule, session.StartAt); err != nil {
		writeError(w, r, err)
		return
	}
	if err := session.Upsert(r.Context(), as.BunDB); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, session)
}

func Program(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/program", Protected(as, "program", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		sessions, err := model.ListProgram(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}))

	muxer.HandleFunc("POST /events/{id}/program/sessions", Protected(as, "program", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		session := new(model.ProgramSession)
		if !readJSON(w, r, session) {
			return
		}
		session.ID = uuid.NewString()
		session.EventID = event.ID
		session.Assignments = nil
		saveSession(as, w, r, session, http.StatusCreated)
	}))

	muxer.HandleFunc("GET /events/{id}/program/sessions/{sid}", Protected(as, "program", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		session, err := model.GetProgramSession(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("sid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}))

	muxer.HandleFunc("PUT /events/{id}/program/sessions/{sid}", Protected(as, "program", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		session, err := model.GetProgramSession(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("sid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, createdAt, assignments := session.ID, session.EventID, session.CreatedAt, session.Assignments
		if !readJSON(w, r, session) {
			return
		}
		session.ID, session.EventID, session.CreatedAt, session.Assignments = id, eventID, createdAt, assignments
		saveSession(as, w, r, session, http.StatusOK)
	}))

	muxer.HandleFunc("DELETE /events/{id}/program/sessions/{sid}", Protected(as, "program", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteProgramSession(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("sid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	type AssignReqBody struct {
		FacultyID   string               `json:"faculty_id" validate:"required"`
		Role        model.AssignmentRole `json:"role" validate:"omitempty,oneof=speaker chair moderator panelist"`
		Topic       string               `json:"topic"`
		DurationMin int                  `json:"duration_min" validate:"gte=0"`
	}

	muxer.HandleFunc("POST /events/{id}/program/sessions/{sid}/assignments", Protected(as, "program", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody AssignReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		assignment := &model.SessionAssignment{
			SessionID:   r.PathValue("sid"),
			FacultyID:   reqBody.FacultyID,
			Role:        reqBody.Role,
			Topic:       reqBody.Topic,
			DurationMin: reqBody.DurationMin,
		}
		if err := model.AssignFaculty(r.Context(), as.BunDB, r.PathValue("id"), assignment); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)
	}))

	muxer.HandleFunc("DELETE /events/{id}/program/sessions/{sid}/assignments/{aid}", Protected(as, "program", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if _, err := model.GetProgramSession(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("sid")); err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.UnassignFaculty(r.Context(), as.BunDB, r.PathValue("sid"), r.PathValue("aid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	muxer.HandleFunc("GET /events/{id}/program/conflicts", Protected(as, "program", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		report, err := conflict.Check(r.Context(), as.BunDB, event)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}))

	type OccurrencesReqBody struct {
		RRule      string     `json:"rrule" validate:"required"`
		StartAt    time.Time  `json:"start_at" validate:"required"`
		EndAt      time.Time  `json:"end_at" validate:"required,gtfield=StartAt"`
		RRuleUntil *time.Time `json:"rrule_until"`
	}

	// previews the slots a recurrence rule produces within the event
	muxer.HandleFunc("POST /events/{id}/program/occurrences", Protected(as, "program", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		var reqBody OccurrencesReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		occurrences, err := conflict.Occurrences(&model.ProgramSession{
			StartAt:    reqBody.StartAt,
			EndAt:      reqBody.EndAt,
			RRule:      reqBody.RRule,
			RRuleUntil: reqBody.RRuleUntil,
		}, conflict.ExpansionLimit(event))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, occurrences)
	}))

	muxer.HandleFunc("GET /events/{id}/program.ics", Protected(as, "program", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		sessions, err := model.ListProgram(r.Context(), as.BunDB, event.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		faculty, err := model.ListFaculty(r.Context(), as.BunDB, event.ID, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		names := make(map[string]string, len(faculty))
		for _, f := range faculty {
			names[f.ID] = f.Name
		}
		cal := ical.Program(event, sessions, names, as.Config.GetPublicBaseURL())
		content, err := cal.ToIcal()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/calendar; charset=utf-8", event.Slug+".ics", []byte(content))
	}))
}
