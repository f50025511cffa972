package route

import (
	"bytes"
	"net/http"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/bus"
	"confdesk/src-server/export"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

func abstractFilter(r *http.Request) model.AbstractFilter {
	q := r.URL.Query()
	return model.AbstractFilter{
		Status:     model.AbstractStatus(q.Get("status")),
		Category:   q.Get("category"),
		Track:      q.Get("track"),
		Query:      q.Get("q"),
		ReviewerID: q.Get("reviewer_id"),
	}
}

func Abstracts(muxer *http.ServeMux, as *utils.AppState) {
	type SubmitReqBody struct {
		Title            string                 `json:"title" validate:"required,max=300"`
		Body             string                 `json:"body" validate:"required"`
		Authors          []string               `json:"authors" validate:"omitempty,dive,required"`
		PresentingAuthor string                 `json:"presenting_author" validate:"required"`
		Email            string                 `json:"email" validate:"required,email"`
		Phone            string                 `json:"phone" validate:"omitempty,max=32"`
		Category         string                 `json:"category"`
		Track            string                 `json:"track"`
		Keywords         []string               `json:"keywords"`
		PresentationType model.PresentationType `json:"presentation_type" validate:"omitempty,oneof=oral poster either"`
	}

	muxer.Handle("POST /public/events/{slug}/abstracts", PublicRateLimit(as, func(w http.ResponseWriter, r *http.Request) {
		var reqBody SubmitReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		event, err := model.GetEventBySlug(r.Context(), as.BunDB, r.PathValue("slug"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if event.Status != model.EVENT_STATUS_PUBLISHED {
			writeMessage(w, http.StatusNotFound, "event not found")
			return
		}
		abstract, err := model.SubmitAbstract(r.Context(), as.BunDB, event.ID, model.AbstractInput{
			Title:            reqBody.Title,
			Body:             reqBody.Body,
			Authors:          reqBody.Authors,
			PresentingAuthor: reqBody.PresentingAuthor,
			Email:            reqBody.Email,
			Phone:            reqBody.Phone,
			Category:         reqBody.Category,
			Track:            reqBody.Track,
			Keywords:         reqBody.Keywords,
			PresentationType: reqBody.PresentationType,
		}, time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, abstract)
	}))

	muxer.HandleFunc("GET /events/{id}/abstracts", Protected(as, "abstract", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		opts := listOptions(r)
		abstracts, total, err := model.ListAbstracts(r.Context(), as.BunDB, r.PathValue("id"), abstractFilter(r), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, abstracts, total, opts)
	}))

	muxer.HandleFunc("GET /events/{id}/abstracts/export.csv", Protected(as, "abstract", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		abstracts, err := model.AllAbstracts(r.Context(), as.BunDB, event.ID, abstractFilter(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Abstracts(&buf, abstracts, eventLocation(as, event)); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/csv; charset=utf-8", event.Slug+"-abstracts.csv", buf.Bytes())
	}))

	type AbstractResBody struct {
		*model.Abstract
		Reviews []model.AbstractReview `json:"reviews"`
	}

	muxer.HandleFunc("GET /events/{id}/abstracts/{aid}", Protected(as, "abstract", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		abstract, err := model.GetAbstract(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("aid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		reviews, err := model.ListReviews(r.Context(), as.BunDB, abstract.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, AbstractResBody{Abstract: abstract, Reviews: reviews})
	}))

	type AssignReqBody struct {
		ReviewerIDs []string `json:"reviewer_ids" validate:"required,min=1,dive,required"`
	}

	muxer.HandleFunc("POST /events/{id}/abstracts/{aid}/assign", Protected(as, "abstract", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody AssignReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		canReview := func(role model.Role) bool {
			return as.Enforcer.CanReview(string(role))
		}
		if err := model.AssignReviewers(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("aid"), reqBody.ReviewerIDs, canReview); err != nil {
			writeError(w, r, err)
			return
		}
		abstract, err := model.GetAbstract(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("aid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, abstract)
	}))

	type DecisionReqBody struct {
		Status model.AbstractStatus `json:"status" validate:"required,oneof=accepted rejected revision_requested"`
		Note   string               `json:"note"`
		Notify bool                 `json:"notify"`
	}

	muxer.HandleFunc("POST /events/{id}/abstracts/{aid}/decision", Protected(as, "abstract", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody DecisionReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		abstract, err := model.DecideAbstract(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("aid"), reqBody.Status, reqBody.Note, time.Now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if reqBody.Notify {
			publish(as, bus.TOPIC_ABSTRACT_DECIDED, bus.Event{EventID: abstract.EventID, SubjectID: abstract.ID})
		}
		writeJSON(w, http.StatusOK, abstract)
	}))

	muxer.HandleFunc("GET /reviews/mine", Protected(as, "review", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		queue, err := model.ListReviewQueue(r.Context(), as.BunDB, memberFrom(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	}))

	type ReviewReqBody struct {
		Scores         map[string]int       `json:"scores" validate:"required,min=1,dive,min=1,max=10"`
		Recommendation model.Recommendation `json:"recommendation" validate:"required,oneof=accept reject revise"`
		Comments       string               `json:"comments"`
	}

	// only reviewers assigned to the abstract may review it
	muxer.HandleFunc("PUT /events/{id}/abstracts/{aid}/review", Protected(as, "review", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody ReviewReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		member := memberFrom(r)
		assigned, err := model.IsReviewerAssigned(r.Context(), as.BunDB, r.PathValue("aid"), member.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !assigned {
			writeMessage(w, http.StatusForbidden, "you are not assigned to review this abstract")
			return
		}
		abstract, err := model.SubmitReview(r.Context(), as.BunDB, r.PathValue("id"), &model.AbstractReview{
			AbstractID:     r.PathValue("aid"),
			ReviewerID:     member.ID,
			Scores:         reqBody.Scores,
			Recommendation: reqBody.Recommendation,
			Comments:       reqBody.Comments,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, abstract)
	}))
}
