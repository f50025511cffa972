package route

import (
	"context"
	"net/http"
	"time"

	"confdesk/src-server/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Platform(muxer *http.ServeMux, as *utils.AppState) {
	muxer.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := as.RawDB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
	})

	muxer.Handle("GET /metrics", promhttp.Handler())
}

// Register mounts every API route on muxer. The SPA goes last since it
// catches everything else.
func Register(muxer *http.ServeMux, as *utils.AppState) {
	Platform(muxer, as)
	Auth(muxer, as)
	TeamMembers(muxer, as)
	Events(muxer, as)
	TicketTypes(muxer, as)
	Registrations(muxer, as)
	Badges(muxer, as)
	Certificates(muxer, as)
	Faculty(muxer, as)
	Program(muxer, as)
	Travel(muxer, as)
	Abstracts(muxer, as)
	Forms(muxer, as)
	Messages(muxer, as)
	Reports(muxer, as)
	if as.Config.GetStaticWebClientDir() != "" {
		SPA(muxer, as)
	}
}
