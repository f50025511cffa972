package route

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/jwt"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type MemberCtxKeyType string

const MemberCtxKey MemberCtxKeyType = "member"

func memberFrom(r *http.Request) *model.TeamMember {
	member, _ := r.Context().Value(MemberCtxKey).(*model.TeamMember)
	return member
}

// authenticate resolves the bearer token to an active team member. The
// role is read from the database so demotions apply immediately.
func authenticate(as *utils.AppState, r *http.Request) (*model.TeamMember, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", jwt.ErrInvalidToken)
	}
	payload, err := jwt.Decode(strings.TrimSpace(token), as.Config.GetJWTSecret())
	if err != nil {
		return nil, err
	}
	member, err := model.GetTeamMember(r.Context(), as.BunDB, payload.MemberID)
	switch {
	case err != nil && statusOf(err) == http.StatusNotFound:
		return nil, fmt.Errorf("%w: unknown member", jwt.ErrInvalidToken)
	case err != nil:
		return nil, err
	case !member.Active:
		return nil, fmt.Errorf("%w: member is inactive", jwt.ErrInvalidToken)
	}
	return member, nil
}

// AuthMiddleware only lets authenticated team members through.
func AuthMiddleware(as *utils.AppState, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		member, err := authenticate(as, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), MemberCtxKey, member)
		next(w, r.WithContext(ctx))
	}
}

// Protected is AuthMiddleware plus a casbin check of (role, resource, act).
func Protected(as *utils.AppState, resource string, act authz.Action, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return AuthMiddleware(as, func(w http.ResponseWriter, r *http.Request) {
		member := memberFrom(r)
		if !as.Enforcer.Allowed(string(member.Role), resource, act) {
			writeMessage(w, http.StatusForbidden, fmt.Sprintf("role %s can't %s %s", member.Role, act, resource))
			return
		}
		next(w, r)
	})
}

// PublicRateLimit limits public form posts per client IP.
func PublicRateLimit(as *utils.AppState, next func(http.ResponseWriter, *http.Request)) http.Handler {
	return httprate.Limit(
		as.Config.GetRateLimitPublic(),
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeMessage(w, http.StatusTooManyRequests, "too many requests, try again in a minute")
		}),
	)(http.HandlerFunc(next))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Observe reports every request to the metric collectors. It wraps the
// muxer, which fills in r.Pattern while routing.
func Observe(as *utils.AppState, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		as.MetricChans.ObserveHTTP(utils.HTTPObservation{
			Method:   r.Method,
			Pattern:  r.Pattern,
			Status:   rec.status,
			Duration: time.Since(start),
		})
	})
}

// Handler wraps the muxer with CORS and request metrics.
func Handler(as *utils.AppState, muxer *http.ServeMux) http.Handler {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: as.Config.GetCORSAllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Content-Disposition"},
		MaxAge:         300,
	})
	return Observe(as, corsHandler(muxer))
}

// loadEvent fetches the {id} event of the route. On failure the response
// is already written.
func loadEvent(as *utils.AppState, w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	event, err := model.GetEvent(r.Context(), as.BunDB, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return event, true
}
