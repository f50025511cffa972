package route

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/export"
	"confdesk/src-server/model"
	"confdesk/src-server/scheduler"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

type BulkMessageReqBody struct {
	TemplateID string         `json:"template_id" validate:"required_without=Body"`
	Channel    model.Channel  `json:"channel" validate:"omitempty,oneof=email sms whatsapp discord"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body" validate:"required_without=TemplateID"`
	Audience   model.Audience `json:"audience"`
	SendAt     string         `json:"send_at"`
}

func (b BulkMessageReqBody) validate() error {
	if b.TemplateID == "" && b.Channel == "" {
		return fmt.Errorf("%w: channel is required without a template", model.ErrInvalid)
	}
	return nil
}

func (b BulkMessageReqBody) message(eventID, memberID string) *model.ScheduledMessage {
	m := &model.ScheduledMessage{
		EventID:   eventID,
		Audience:  b.Audience,
		CreatedBy: memberID,
	}
	if b.TemplateID != "" {
		m.TemplateID = b.TemplateID
	} else {
		m.Channel, m.Subject, m.Body = b.Channel, b.Subject, b.Body
	}
	return m
}

func messageLogFilter(r *http.Request) model.MessageLogFilter {
	q := r.URL.Query()
	return model.MessageLogFilter{
		Channel:       model.Channel(q.Get("channel")),
		Status:        model.MessageStatus(q.Get("status")),
		ReferenceType: q.Get("reference_type"),
		ReferenceID:   q.Get("reference_id"),
	}
}

func Messages(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /messaging/providers", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, as.Dispatcher.Providers())
	}))

	muxer.HandleFunc("GET /events/{id}/message-templates", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		templates, err := model.ListMessageTemplates(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
	}))

	muxer.HandleFunc("POST /events/{id}/message-templates", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		template := new(model.MessageTemplate)
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

	muxer.HandleFunc("GET /events/{id}/message-templates/{tid}", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetMessageTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	}))

	muxer.HandleFunc("PUT /events/{id}/message-templates/{tid}", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		template, err := model.GetMessageTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid"))
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

	muxer.HandleFunc("DELETE /events/{id}/message-templates/{tid}", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.DeleteMessageTemplate(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("tid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	muxer.HandleFunc("POST /events/{id}/messages/send", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody BulkMessageReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		if err := reqBody.validate(); err != nil {
			writeError(w, r, err)
			return
		}
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		summary, err := scheduler.SendBulk(r.Context(), as, reqBody.message(event.ID, memberFrom(r).ID))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}))

	// send_at is RFC3339 or natural language in the event timezone
	muxer.HandleFunc("POST /events/{id}/messages/schedule", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody BulkMessageReqBody
		if !readJSON(w, r, &reqBody) {
			return
		}
		if err := reqBody.validate(); err != nil {
			writeError(w, r, err)
			return
		}
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		now := time.Now()
		sendAt, err := as.ParseSendAt(reqBody.SendAt, eventLocation(as, event), now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		m := reqBody.message(event.ID, memberFrom(r).ID)
		if m.TemplateID != "" {
			if _, err := model.GetMessageTemplate(r.Context(), as.BunDB, event.ID, m.TemplateID); err != nil {
				writeError(w, r, err)
				return
			}
		}
		m.SendAt = sendAt
		if err := model.CreateScheduledMessage(r.Context(), as.BunDB, m, now); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}))

	muxer.HandleFunc("GET /events/{id}/messages/scheduled", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		messages, err := model.ListScheduledMessages(r.Context(), as.BunDB, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
	}))

	muxer.HandleFunc("POST /events/{id}/messages/scheduled/{mid}/cancel", Protected(as, "message", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		if err := model.CancelScheduledMessage(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("mid")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	muxer.HandleFunc("GET /events/{id}/messages/logs", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		opts := listOptions(r)
		logs, total, err := model.ListMessageLogs(r.Context(), as.BunDB, r.PathValue("id"), messageLogFilter(r), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeList(w, logs, total, opts)
	}))

	muxer.HandleFunc("GET /events/{id}/messages/logs/export.csv", Protected(as, "message", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		logs, err := model.AllMessageLogs(r.Context(), as.BunDB, event.ID, messageLogFilter(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.MessageLogs(&buf, logs, eventLocation(as, event)); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/csv; charset=utf-8", event.Slug+"-messages.csv", buf.Bytes())
	}))
}
