package route

import (
	"net/http"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/bus"
	"confdesk/src-server/ical"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

func Faculty(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/faculty", Protected(as, "faculty", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.ListFaculty(r.Context(), as.BunDB, r.PathValue("id"), model.InviteStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, faculty)
	}))

	muxer.HandleFunc("POST /events/{id}/faculty", Protected(as, "faculty", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		faculty := new(model.Faculty)
		if !readJSON(w, r, faculty) {
			return
		}
		faculty.ID = uuid.NewString()
		faculty.EventID = event.ID
		faculty.InviteStatus = model.INVITE_STATUS_PENDING
		faculty.InvitedAt, faculty.RespondedAt = nil, nil
		if err := faculty.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, faculty)
	}))

	muxer.HandleFunc("GET /events/{id}/faculty/{fid}", Protected(as, "faculty", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.GetFaculty(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, faculty)
	}))

	muxer.HandleFunc("PUT /events/{id}/faculty/{fid}", Protected(as, "faculty", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.GetFaculty(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, createdAt := faculty.ID, faculty.EventID, faculty.CreatedAt
		if !readJSON(w, r, faculty) {
			return
		}
		faculty.ID, faculty.EventID, faculty.CreatedAt = id, eventID, createdAt
		if err := faculty.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, faculty)
	}))

	muxer.HandleFunc("DELETE /events/{id}/faculty/{fid}", Protected(as, "faculty", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteFaculty(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	// the invitation itself is sent by the faculty.invited worker
	muxer.HandleFunc("POST /events/{id}/faculty/{fid}/invite", Protected(as, "faculty", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.GetFaculty(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := model.MarkInvited(r.Context(), as.BunDB, faculty, time.Now()); err != nil {
			writeError(w, r, err)
			return
		}
		publish(as, bus.TOPIC_FACULTY_INVITED, bus.Event{EventID: faculty.EventID, SubjectID: faculty.ID})
		writeJSON(w, http.StatusOK, faculty)
	}))

	type InviteResBody struct {
		Faculty     *model.Faculty            `json:"faculty"`
		Event       *model.Event              `json:"event"`
		Sessions    []model.ProgramSession    `json:"sessions"`
		Assignments []model.SessionAssignment `json:"assignments"`
		ScheduleURL string                    `json:"schedule_url"`
	}

	muxer.HandleFunc("GET /public/faculty-invites/{token}", func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.GetFacultyByInviteToken(r.Context(), as.BunDB, r.PathValue("token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		event, err := model.GetEvent(r.Context(), as.BunDB, faculty.EventID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sessions, assignments, err := facultySchedule(as, r, faculty)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resBody := InviteResBody{
			Faculty:     faculty,
			Event:       event,
			Sessions:    sessions,
			Assignments: make([]model.SessionAssignment, 0, len(assignments)),
			ScheduleURL: faculty.InviteURL(as.Config.GetPublicBaseURL()) + "/schedule.ics",
		}
		for _, s := range sessions {
			resBody.Assignments = append(resBody.Assignments, assignments[s.ID])
		}
		writeJSON(w, http.StatusOK, resBody)
	})

	type RespondReqBody struct {
		Accept *bool `json:"accept" validate:"required"`
	}

	muxer.Handle("POST /public/faculty-invites/{token}", PublicRateLimit(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody RespondReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		faculty, err := model.GetFacultyByInviteToken(r.Context(), as.BunDB, r.PathValue("token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		event, err := model.GetEvent(r.Context(), as.BunDB, faculty.EventID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		now := time.Now()
		if event.Status == model.EVENT_STATUS_CANCELLED || now.After(event.EndDate.AddDate(0, 0, 1)) {
			writeMessage(w, http.StatusConflict, "the event is over, the invitation can't be answered anymore")
			return
		}
		if err := model.RespondToInvite(r.Context(), as.BunDB, faculty, *reqBody.Accept, now); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, faculty)
	}))

	muxer.HandleFunc("GET /public/faculty-invites/{token}/schedule.ics", func(w http.ResponseWriter, r *http.Request) {
		faculty, err := model.GetFacultyByInviteToken(r.Context(), as.BunDB, r.PathValue("token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		event, err := model.GetEvent(r.Context(), as.BunDB, faculty.EventID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sessions, assignments, err := facultySchedule(as, r, faculty)
		if err != nil {
			writeError(w, r, err)
			return
		}
		cal := ical.FacultySchedule(event, faculty, sessions, assignments)
		content, err := cal.ToIcal()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/calendar; charset=utf-8", "", []byte(content))
	})
}

// facultySchedule returns the sessions of faculty and their assignment in
// each, keyed by session id.
func facultySchedule(as *utils.AppState, r *http.Request, faculty *model.Faculty) ([]model.ProgramSession, map[string]model.SessionAssignment, error) {
	sessions, err := model.ListFacultySessions(r.Context(), as.BunDB, faculty.ID)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]model.SessionAssignment, 0)
	if err := as.BunDB.NewSelect().
		Model(&rows).
		Where("faculty_id = ?", faculty.ID).
		Scan(r.Context()); err != nil {
		return nil, nil, err
	}
	assignments := make(map[string]model.SessionAssignment, len(rows))
	for _, a := range rows {
		assignments[a.SessionID] = a
	}
	return sessions, assignments, nil
}
