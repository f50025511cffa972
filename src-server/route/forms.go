package route

import (
	"bytes"
	"net/http"

	"confdesk/src-server/authz"
	"confdesk/src-server/export"
	"confdesk/src-server/formkit"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

func Forms(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/forms", Protected(as, "form", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		forms, err := model.ListForms(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, forms)
	}))

	muxer.HandleFunc("POST /events/{id}/forms", Protected(as, "form", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		form := new(model.Form)
		if !readJSON(w, r, form) {
			return
		}
		form.ID = uuid.NewString()
		form.EventID = event.ID
		if err := form.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, form)
	}))

	muxer.HandleFunc("GET /events/{id}/forms/{fid}", Protected(as, "form", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		form, err := model.GetForm(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, form)
	}))

	muxer.HandleFunc("PUT /events/{id}/forms/{fid}", Protected(as, "form", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		form, err := model.GetForm(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, eventID, createdAt := form.ID, form.EventID, form.CreatedAt
		if !readJSON(w, r, form) {
			return
		}
		form.ID, form.EventID, form.CreatedAt = id, eventID, createdAt
		if err := form.Upsert(r.Context(), as.BunDB); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, form)
	}))

	muxer.HandleFunc("DELETE /events/{id}/forms/{fid}", Protected(as, "form", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteForm(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	muxer.HandleFunc("GET /events/{id}/forms/{fid}/submissions", Protected(as, "form", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		form, err := model.GetForm(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		opts := listOptions(r)
		submissions, total, err := model.ListFormSubmissions(r.Context(), as.BunDB, form.ID, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, submissions, total, opts)
	}))

	muxer.HandleFunc("GET /events/{id}/forms/{fid}/submissions/export.csv", Protected(as, "form", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		form, err := model.GetForm(r.Context(), as.BunDB, event.ID, r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		submissions, err := model.AllFormSubmissions(r.Context(), as.BunDB, form.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.FormSubmissions(&buf, form, submissions, eventLocation(as, event)); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/csv; charset=utf-8", form.Slug+"-submissions.csv", buf.Bytes())
	}))

	// drafts stay private
	muxer.HandleFunc("GET /public/forms/{slug}", func(w http.ResponseWriter, r *http.Request) {
		form, err := model.GetFormBySlug(r.Context(), as.BunDB, r.PathValue("slug"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if form.Status == model.FORM_STATUS_DRAFT {
			writeMessage(w, http.StatusNotFound, "form not found")
			return
		}
		writeJSON(w, http.StatusOK, form)
	})

	type SubmitReqBody struct {
		Data map[string]any `json:"data" validate:"required"`
	}

	muxer.Handle("POST /public/forms/{slug}/submit", PublicRateLimit(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody SubmitReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		form, err := model.GetFormBySlug(r.Context(), as.BunDB, r.PathValue("slug"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		switch form.Status {
		case model.FORM_STATUS_DRAFT:
			writeMessage(w, http.StatusNotFound, "form not found")
			return
		case model.FORM_STATUS_CLOSED:
			writeError(w, r, model.ErrSubmissionClosed)
			return
		}
		cleaned, fieldErrs := formkit.Validate(form.Fields, reqBody.Data)
		if fieldErrs != nil {
			writeError(w, r, fieldErrs)
			return
		}
		submission := &model.FormSubmission{
			FormID: form.ID,
			Data:   cleaned,
			Email:  formkit.Email(form.Fields, cleaned),
		}
		if err := model.CreateFormSubmission(r.Context(), as.BunDB, submission); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, submission)
	}))
}
