package route

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"confdesk/src-server/conflict"
	"confdesk/src-server/export"
	"confdesk/src-server/jwt"
	"confdesk/src-server/messaging"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
	"confdesk/src-server/validate"

	"github.com/goccy/go-json"
)

const maxBodyBytes = 4 << 20

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type listBody[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("can't write response body", "error", err)
	}
}

func writeList[T any](w http.ResponseWriter, items []T, total int, opts model.ListOptions) {
	writeJSON(w, http.StatusOK, listBody[T]{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: http.StatusText(status), Message: message})
}

// readJSON decodes the request body into dst and runs its validate tags.
// On failure the 400 response is already written.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// strips "(*Type).Method: " style prefixes from wrapped errors
var funcPrefix = regexp.MustCompile(`^(\(\*?[A-Za-z0-9_]+\)\.)?[A-Z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)?: `)

func publicMessage(err error) string {
	msg := err.Error()
	for {
		loc := funcPrefix.FindStringIndex(msg)
		if loc == nil {
			return msg
		}
		msg = msg[loc[1]:]
	}
}

func statusOf(err error) int {
	var fieldErrs validate.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, jwt.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrInvalid),
		errors.Is(err, utils.ErrUnparsableTime),
		errors.Is(err, export.ErrBadSheet),
		errors.Is(err, conflict.ErrInvalidRRule):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrSoldOut),
		errors.Is(err, model.ErrUnavailable),
		errors.Is(err, model.ErrRegistrationClosed),
		errors.Is(err, model.ErrDuplicateRegistration),
		errors.Is(err, model.ErrSubmissionClosed),
		errors.Is(err, messaging.ErrNoProvider):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code. Only 5xx are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "something went wrong on our side")
		return
	}
	body := errorBody{Error: http.StatusText(status), Message: publicMessage(err)}
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		body.Message = "validation failed"
		body.Details = fieldErrs
	}
	writeJSON(w, status, body)
}

// listOptions reads ?limit= and ?offset=; bad values fall back to the
// defaults.
func listOptions(r *http.Request) model.ListOptions {
	var opts model.ListOptions
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return opts.Normalize()
}

func queryBool(r *http.Request, key string) *bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		v := true
		return &v
	case "false", "0", "no":
		v := false
		return &v
	}
	return nil
}

// writeDocument serves a generated file with an ETag so unchanged
// documents answer 304.
func writeDocument(w http.ResponseWriter, r *http.Request, contentType, filename string, content []byte) {
	etag := utils.ETag(content)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// eventLocation returns the event's timezone, or the configured one.
func eventLocation(as *utils.AppState, event *model.Event) *time.Location {
	return event.Location(as.Config.GetLocation())
}
