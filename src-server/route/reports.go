package route

import (
	"net/http"

	"confdesk/src-server/authz"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

func Reports(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /events/{id}/dashboard", Protected(as, "report", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		dashboard, err := model.BuildDashboard(r.Context(), as.BunDB, event.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dashboard)
	}))

	// one bucket per calendar day in the event timezone
	muxer.HandleFunc("GET /events/{id}/reports/registrations-daily", Protected(as, "report", authz.ACTION_READ, func(w http.ResponseWriter, r *http.Request) {
		event, ok := loadEvent(as, w, r)
		if !ok {
			return
		}
		days, err := model.DailyRegistrations(r.Context(), as.BunDB, event.ID, eventLocation(as, event))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, days)
	}))
}
