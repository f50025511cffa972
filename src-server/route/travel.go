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

func Travel(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/travel", Protected(as, "travel", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		travel, err := model.ListTravel(r.Context(), as.BunDB, r.PathValue("id"), model.TravelStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, travel)
	}))

	muxer.HandleFunc("GET /events/{id}/travel/export.csv", Protected(as, "travel", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		travel, err := model.ListTravel(r.Context(), as.BunDB, event.ID, model.TravelStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := export.Travel(&buf, travel, eventLocation(as, event)); err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, r, "text/csv; charset=utf-8", event.Slug+"-travel.csv", buf.Bytes())
	}))

	// ?date=YYYY-MM-DD in the event timezone, today when omitted
	muxer.HandleFunc("GET /events/{id}/travel/pickups", Protected(as, "travel", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		loc := eventLocation(as, event)
		day := time.Now().In(loc)
		if date := r.URL.Query().Get("date"); date != "" {
			var err error
			if day, err = time.ParseInLocation(time.DateOnly, date, loc); err != nil {
				writeMessage(w, http.StatusBadRequest, "date must look like 2006-01-02")
				return
			}
		}
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		pickups, err := model.ListPickups(r.Context(), as.BunDB, event.ID, dayStart)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pickups)
	}))

	muxer.HandleFunc("GET /events/{id}/faculty/{fid}/travel", Protected(as, "travel", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		travel, err := model.GetTravel(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, travel)
	}))

	muxer.HandleFunc("PUT /events/{id}/faculty/{fid}/travel", Protected(as, "travel", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		travel := new(model.TravelItinerary)
		if !readJSON(w, r, travel) {
			return
		}
		travel.EventID = r.PathValue("id")
		travel.FacultyID = r.PathValue("fid")
		travel.Faculty = nil
		if err := model.UpsertTravel(r.Context(), as.BunDB, travel); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, travel)
	}))

	type NotifyReqBody struct {
		Channel model.Channel `json:"channel" validate:"omitempty,oneof=email sms whatsapp discord"`
	}

	// the itinerary message goes out from the travel.notify worker
	muxer.HandleFunc("POST /events/{id}/faculty/{fid}/travel/notify", Protected(as, "travel", authz.ACTION_WRITE, func(w http.ResponseWriter, r *http.Request) {
		var reqBody NotifyReqBody
		if r.ContentLength != 0 && !readJSON(w, r, &reqBody) {
			return
		}
		travel, err := model.GetTravel(r.Context(), as.BunDB, r.PathValue("id"), r.PathValue("fid"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if reqBody.Channel != "" {
			if _, ok := as.Dispatcher.Providers()[reqBody.Channel]; !ok {
				writeMessage(w, http.StatusConflict, "no provider configured for "+string(reqBody.Channel))
				return
			}
		}
		publish(as, bus.TOPIC_TRAVEL_NOTIFY, bus.Event{
			EventID:   travel.EventID,
			SubjectID: travel.FacultyID,
			Channel:   string(reqBody.Channel),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}))
}
