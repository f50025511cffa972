package route_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confdesk/src-server/jwt"
	"confdesk/src-server/model"
	"confdesk/src-server/route"
	"confdesk/src-server/utils"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type fixture struct {
	as      *utils.AppState
	handler http.Handler
	event   *model.Event
	ticket  *model.TicketType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	as, err := utils.NewTestAppState()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(as.GracefulShutdown)

	muxer := http.NewServeMux()
	route.Register(muxer, as)

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	event := &model.Event{
		ID:               uuid.NewString(),
		Name:             "Pediatric Update",
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 2),
		Status:           model.EVENT_STATUS_PUBLISHED,
		RegistrationOpen: true,
	}
	if err := event.Upsert(context.Background(), as.BunDB); err != nil {
		t.Fatal(err)
	}
	ticket := &model.TicketType{ID: uuid.NewString(), EventID: event.ID, Name: "Delegate"}
	if err := ticket.Upsert(context.Background(), as.BunDB); err != nil {
		t.Fatal(err)
	}
	return &fixture{as: as, handler: route.Handler(as, muxer), event: event, ticket: ticket}
}

// member creates an active team member and returns a bearer token for it.
func (f *fixture) member(t *testing.T, role model.Role) string {
	t.Helper()
	m := &model.TeamMember{
		ID:     uuid.NewString(),
		Email:  uuid.NewString()[:8] + "@confdesk.test",
		Name:   string(role),
		Role:   role,
		Active: true,
	}
	if err := m.SetPassword("correct-horse"); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(context.Background(), f.as.BunDB); err != nil {
		t.Fatal(err)
	}
	token, err := jwt.Encode(jwt.Payload{MemberID: m.ID, Name: m.Name, Role: string(m.Role)}, f.as.Config.GetJWTSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("can't decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	created, err := model.SeedOwner(context.Background(), f.as.BunDB, "owner@confdesk.test", "correct-horse")
	if err != nil || !created {
		t.Fatalf("SeedOwner = %v, %v", created, err)
	}

	tests := map[string]struct {
		email, password string
		want            int
	}{
		"ok":             {"owner@confdesk.test", "correct-horse", http.StatusOK},
		"wrong password": {"owner@confdesk.test", "battery-staple", http.StatusUnauthorized},
		"unknown email":  {"nobody@confdesk.test", "correct-horse", http.StatusUnauthorized},
		"invalid email":  {"owner", "correct-horse", http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": tt.email, "password": tt.password})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			body := decode[struct {
				Token string `json:"token"`
			}](t, rec)
			me := f.do(t, http.MethodGet, "/auth/me", body.Token, nil)
			if me.Code != http.StatusOK {
				t.Fatalf("/auth/me status = %d", me.Code)
			}
		})
	}
}

func TestProtected(t *testing.T) {
	f := newFixture(t)
	viewer := f.member(t, model.ROLE_VIEWER)
	coordinator := f.member(t, model.ROLE_COORDINATOR)
	path := "/events/" + f.event.ID + "/registrations"
	reg := map[string]any{"ticket_type_id": f.ticket.ID, "attendee_name": "Dr. Asha Rao", "email": "asha@example.org"}

	if rec := f.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, path, "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, path, viewer, nil); rec.Code != http.StatusOK {
		t.Errorf("viewer read: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, path, viewer, reg); rec.Code != http.StatusForbidden {
		t.Errorf("viewer write: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, path, coordinator, reg); rec.Code != http.StatusCreated {
		t.Errorf("coordinator write: status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestPublicRegisterAndCheckIn(t *testing.T) {
	f := newFixture(t)
	path := "/public/events/" + f.event.Slug + "/register"
	reg := map[string]any{"ticket_type_id": f.ticket.ID, "attendee_name": "Dr. Asha Rao", "email": "asha@example.org"}

	rec := f.do(t, http.MethodPost, path, "", reg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[model.Registration](t, rec)
	if created.RegistrationNumber == "" || created.CheckInToken == "" {
		t.Fatalf("registration = %+v", created)
	}

	reg["email"] = "ASHA@example.org"
	if rec := f.do(t, http.MethodPost, path, "", reg); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, body %s", rec.Code, rec.Body)
	}

	coordinator := f.member(t, model.ROLE_COORDINATOR)
	checkIn := "/events/" + f.event.ID + "/check-in"
	qr := map[string]string{"token": f.as.Config.GetPublicBaseURL() + "/c/" + created.CheckInToken}
	for i, wantAlready := range []bool{false, true} {
		rec := f.do(t, http.MethodPost, checkIn, coordinator, qr)
		if rec.Code != http.StatusOK {
			t.Fatalf("check-in %d status = %d, body %s", i, rec.Code, rec.Body)
		}
		body := decode[struct {
			AlreadyCheckedIn bool `json:"already_checked_in"`
		}](t, rec)
		if body.AlreadyCheckedIn != wantAlready {
			t.Errorf("check-in %d already_checked_in = %v", i, body.AlreadyCheckedIn)
		}
	}

	if rec := f.do(t, http.MethodPost, checkIn, coordinator, map[string]string{"token": "nope"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d", rec.Code)
	}
}

func TestPublicEventHidesDrafts(t *testing.T) {
	f := newFixture(t)
	f.event.Status = model.EVENT_STATUS_DRAFT
	if err := f.event.Upsert(context.Background(), f.as.BunDB); err != nil {
		t.Fatal(err)
	}
	rec := f.do(t, http.MethodGet, "/public/events/"+f.event.Slug, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFormSubmit(t *testing.T) {
	f := newFixture(t)
	form := &model.Form{
		ID:      uuid.NewString(),
		EventID: f.event.ID,
		Title:   "Workshop interest",
		Status:  model.FORM_STATUS_OPEN,
		Fields: []model.FormField{
			{Key: "name", Label: "Name", Type: model.FIELD_TYPE_TEXT, Required: true},
			{Key: "email", Label: "Email", Type: model.FIELD_TYPE_EMAIL, Required: true},
			{Key: "diet", Label: "Diet", Type: model.FIELD_TYPE_SELECT, Options: []string{"veg", "non-veg"}},
		},
	}
	if err := form.Upsert(context.Background(), f.as.BunDB); err != nil {
		t.Fatal(err)
	}
	path := "/public/forms/" + form.Slug + "/submit"

	rec := f.do(t, http.MethodPost, path, "", map[string]any{"data": map[string]any{"email": "not-an-email", "diet": "vegan"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decode[errorBody](t, rec)
	for _, key := range []string{"name", "email", "diet"} {
		if body.Details[key] == "" {
			t.Errorf("details[%q] missing in %v", key, body.Details)
		}
	}

	rec = f.do(t, http.MethodPost, path, "", map[string]any{"data": map[string]any{"name": "Asha", "email": "asha@example.org", "diet": "veg"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	form.Status = model.FORM_STATUS_CLOSED
	if err := form.Upsert(context.Background(), f.as.BunDB); err != nil {
		t.Fatal(err)
	}
	rec = f.do(t, http.MethodPost, path, "", map[string]any{"data": map[string]any{"name": "Asha", "email": "asha@example.org"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("closed form status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestCertificateVerifyUnknown(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/public/certificates/CERT-2026-NOPE", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decode[errorBody](t, rec)
	if body.Message == "" {
		t.Error("empty error message")
	}
}

func TestExportETag(t *testing.T) {
	f := newFixture(t)
	viewer := f.member(t, model.ROLE_VIEWER)
	if _, err := model.Register(context.Background(), f.as.BunDB, f.event.ID, model.RegistrationInput{
		TicketTypeID: f.ticket.ID,
		AttendeeName: "Dr. Asha Rao",
		Email:        "asha@example.org",
	}, true); err != nil {
		t.Fatal(err)
	}
	path := "/events/" + f.event.ID + "/registrations/export.csv"

	rec := f.do(t, http.MethodGet, path, viewer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag")
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("asha@example.org")) {
		t.Errorf("export misses the attendee: %s", rec.Body)
	}

	rec = f.do(t, http.MethodGet, path, viewer, nil, "If-None-Match", etag)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", rec.Code)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	f := newFixture(t)
	owner := f.member(t, model.ROLE_OWNER)
	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/registrations", owner, map[string]any{"email": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decode[errorBody](t, rec)
	if len(body.Details) == 0 {
		t.Fatalf("no details in %s", rec.Body)
	}
}
