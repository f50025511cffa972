package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type InviteStatus string

const (
	INVITE_STATUS_PENDING  = InviteStatus("pending")
	INVITE_STATUS_INVITED  = InviteStatus("invited")
	INVITE_STATUS_ACCEPTED = InviteStatus("accepted")
	INVITE_STATUS_DECLINED = InviteStatus("declined")
)

type Faculty struct {
	bun.BaseModel `bun:"table:faculty"`

	ID           string       `bun:"id,pk" json:"id"`
	EventID      string       `bun:"event_id,notnull,unique:faculty_event_email" json:"event_id"`
	Name         string       `bun:"name,notnull" json:"name"`
	Email        string       `bun:"email,notnull,unique:faculty_event_email" json:"email"`
	Phone        string       `bun:"phone" json:"phone"`
	Designation  string       `bun:"designation" json:"designation"`
	Institution  string       `bun:"institution" json:"institution"`
	Bio          string       `bun:"bio" json:"bio"`
	PhotoURL     string       `bun:"photo_url" json:"photo_url"`
	InviteStatus InviteStatus `bun:"invite_status,notnull,type:varchar" json:"invite_status"`
	InviteToken  string       `bun:"invite_token,notnull,unique" json:"-"`
	InvitedAt    *time.Time   `bun:"invited_at" json:"invited_at,omitempty"`
	RespondedAt  *time.Time   `bun:"responded_at" json:"responded_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// InviteURL is where the faculty member answers the invitation.
func (f *Faculty) InviteURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/public/faculty-invites/" + f.InviteToken
}

func (f *Faculty) Variables() map[string]string {
	return map[string]string{
		"name":         f.Name,
		"faculty_name": f.Name,
		"email":        f.Email,
		"phone":        f.Phone,
		"designation":  f.Designation,
		"institution":  f.Institution,
	}
}

// Upsert inserts or updates the faculty profile. The invite columns are
// owned by the invite flow and are left alone on update.
func (f *Faculty) Upsert(ctx context.Context, db bun.IDB) error {
	f.Email = NormalizeEmail(f.Email)
	f.Name = strings.TrimSpace(f.Name)
	switch {
	case f.ID == "":
		return fmt.Errorf("(*Faculty).Upsert: %w: faculty id is blank", ErrInvalid)
	case f.EventID == "":
		return fmt.Errorf("(*Faculty).Upsert: %w: event id is blank", ErrInvalid)
	case f.Name == "":
		return fmt.Errorf("(*Faculty).Upsert: %w: name is blank", ErrInvalid)
	case !strings.Contains(f.Email, "@"):
		return fmt.Errorf("(*Faculty).Upsert: %w: a valid email is required", ErrInvalid)
	}
	emailTaken, err := db.NewSelect().
		Model((*Faculty)(nil)).
		Where("event_id = ?", f.EventID).
		Where("email = ?", f.Email).
		Where("id != ?", f.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Faculty).Upsert: %w", err)
	}
	if emailTaken {
		return fmt.Errorf("(*Faculty).Upsert: %w: faculty %q already exists", ErrConflict, f.Email)
	}

	if f.InviteStatus == "" {
		f.InviteStatus = INVITE_STATUS_PENDING
	}
	if f.InviteToken == "" {
		f.InviteToken = newID()
	}
	now := time.Now().UTC()
	f.UpdatedAt = now
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if _, err := db.NewInsert().
		Model(f).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Set("phone = EXCLUDED.phone").
		Set("designation = EXCLUDED.designation").
		Set("institution = EXCLUDED.institution").
		Set("bio = EXCLUDED.bio").
		Set("photo_url = EXCLUDED.photo_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Faculty).Upsert: %w", err)
	}
	return nil
}

func GetFaculty(ctx context.Context, db bun.IDB, eventID, id string) (*Faculty, error) {
	faculty := new(Faculty)
	if err := db.NewSelect().
		Model(faculty).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "faculty")
	}
	return faculty, nil
}

func GetFacultyByInviteToken(ctx context.Context, db bun.IDB, token string) (*Faculty, error) {
	faculty := new(Faculty)
	if err := db.NewSelect().
		Model(faculty).
		Where("invite_token = ?", token).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "invite")
	}
	return faculty, nil
}

func ListFaculty(ctx context.Context, db bun.IDB, eventID string, status InviteStatus) ([]Faculty, error) {
	faculty := make([]Faculty, 0)
	q := db.NewSelect().
		Model(&faculty).
		Where("event_id = ?", eventID).
		Order("name ASC")
	if status != "" {
		q = q.Where("invite_status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListFaculty: %w", err)
	}
	return faculty, nil
}

// MarkInvited records that the invitation went out.
func MarkInvited(ctx context.Context, db bun.IDB, faculty *Faculty, now time.Time) error {
	if faculty.InviteStatus == INVITE_STATUS_ACCEPTED || faculty.InviteStatus == INVITE_STATUS_DECLINED {
		return fmt.Errorf("MarkInvited: %w: invitation already answered", ErrConflict)
	}
	now = now.UTC()
	faculty.InviteStatus = INVITE_STATUS_INVITED
	faculty.InvitedAt = &now
	faculty.UpdatedAt = now
	if _, err := db.NewUpdate().
		Model(faculty).
		Column("invite_status", "invited_at", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return fmt.Errorf("MarkInvited: %w", err)
	}
	return nil
}

// RespondToInvite stores the faculty member's answer. Answers can be
// changed until the event ends.
func RespondToInvite(ctx context.Context, db bun.IDB, faculty *Faculty, accept bool, now time.Time) error {
	now = now.UTC()
	faculty.InviteStatus = INVITE_STATUS_DECLINED
	if accept {
		faculty.InviteStatus = INVITE_STATUS_ACCEPTED
	}
	faculty.RespondedAt = &now
	faculty.UpdatedAt = now
	if _, err := db.NewUpdate().
		Model(faculty).
		Column("invite_status", "responded_at", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return fmt.Errorf("RespondToInvite: %w", err)
	}
	return nil
}

func DeleteFaculty(ctx context.Context, db *bun.DB, eventID, id string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := GetFaculty(ctx, tx, eventID, id); err != nil {
			return fmt.Errorf("DeleteFaculty: %w", err)
		}
		for _, m := range []interface{}{
			(*SessionAssignment)(nil),
			(*TravelItinerary)(nil),
			(*ReminderLog)(nil),
		} {
			if _, err := tx.NewDelete().
				Model(m).
				Where("faculty_id = ?", id).
				Exec(ctx); err != nil {
				return fmt.Errorf("DeleteFaculty: %w", err)
			}
		}
		if _, err := tx.NewDelete().
			Model((*Faculty)(nil)).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("DeleteFaculty: %w", err)
		}
		return nil
	})
}

type SessionKind string

const (
	SESSION_KIND_TALK     = SessionKind("talk")
	SESSION_KIND_PANEL    = SessionKind("panel")
	SESSION_KIND_WORKSHOP = SessionKind("workshop")
	SESSION_KIND_KEYNOTE  = SessionKind("keynote")
	SESSION_KIND_BREAK    = SessionKind("break")
)

type ProgramSession struct {
	bun.BaseModel `bun:"table:program_sessions"`

	ID          string      `bun:"id,pk" json:"id"`
	EventID     string      `bun:"event_id,notnull" json:"event_id"`
	Title       string      `bun:"title,notnull" json:"title"`
	Description string      `bun:"description" json:"description"`
	Hall        string      `bun:"hall" json:"hall"`
	Track       string      `bun:"track" json:"track"`
	Kind        SessionKind `bun:"kind,notnull,type:varchar" json:"kind"`
	StartAt     time.Time   `bun:"start_at,notnull" json:"start_at"`
	EndAt       time.Time   `bun:"end_at,notnull" json:"end_at"`

	// RRule is an RFC 5545 recurrence rule without DTSTART, e.g.
	// "FREQ=DAILY;COUNT=3". Empty for one-off sessions.
	RRule      string     `bun:"rrule" json:"rrule,omitempty"`
	RRuleUntil *time.Time `bun:"rrule_until" json:"rrule_until,omitempty"`

	Assignments []*SessionAssignment `bun:"rel:has-many,join:id=session_id" json:"assignments,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *ProgramSession) Duration() time.Duration {
	return s.EndAt.Sub(s.StartAt)
}

func (s *ProgramSession) Upsert(ctx context.Context, db bun.IDB) error {
	if s.Kind == "" {
		s.Kind = SESSION_KIND_TALK
	}
	s.RRule = strings.TrimPrefix(strings.TrimSpace(s.RRule), "RRULE:")
	switch {
	case s.ID == "":
		return fmt.Errorf("(*ProgramSession).Upsert: %w: session id is blank", ErrInvalid)
	case s.EventID == "":
		return fmt.Errorf("(*ProgramSession).Upsert: %w: event id is blank", ErrInvalid)
	case strings.TrimSpace(s.Title) == "":
		return fmt.Errorf("(*ProgramSession).Upsert: %w: title is blank", ErrInvalid)
	case s.StartAt.IsZero() || s.EndAt.IsZero():
		return fmt.Errorf("(*ProgramSession).Upsert: %w: start and end are required", ErrInvalid)
	case !s.EndAt.After(s.StartAt):
		return fmt.Errorf("(*ProgramSession).Upsert: %w: end must be after start", ErrInvalid)
	}
	switch s.Kind {
	case SESSION_KIND_TALK, SESSION_KIND_PANEL, SESSION_KIND_WORKSHOP, SESSION_KIND_KEYNOTE, SESSION_KIND_BREAK:
	default:
		return fmt.Errorf("(*ProgramSession).Upsert: %w: unknown kind %q", ErrInvalid, s.Kind)
	}
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	now := time.Now().UTC()
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if _, err := db.NewInsert().
		Model(s).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("hall = EXCLUDED.hall").
		Set("track = EXCLUDED.track").
		Set("kind = EXCLUDED.kind").
		Set("start_at = EXCLUDED.start_at").
		Set("end_at = EXCLUDED.end_at").
		Set("rrule = EXCLUDED.rrule").
		Set("rrule_until = EXCLUDED.rrule_until").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*ProgramSession).Upsert: %w", err)
	}
	return nil
}

func GetProgramSession(ctx context.Context, db bun.IDB, eventID, id string) (*ProgramSession, error) {
	session := new(ProgramSession)
	if err := db.NewSelect().
		Model(session).
		Relation("Assignments").
		Where("program_session.id = ?", id).
		Where("program_session.event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "session")
	}
	return session, nil
}

// ListProgram returns the event's sessions with their assignments, ordered
// by start time.
func ListProgram(ctx context.Context, db bun.IDB, eventID string) ([]ProgramSession, error) {
	sessions := make([]ProgramSession, 0)
	if err := db.NewSelect().
		Model(&sessions).
		Relation("Assignments").
		Where("program_session.event_id = ?", eventID).
		Order("program_session.start_at ASC", "program_session.hall ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListProgram: %w", err)
	}
	return sessions, nil
}

func DeleteProgramSession(ctx context.Context, db *bun.DB, eventID, id string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*ProgramSession)(nil)).
			Where("id = ?", id).
			Where("event_id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("DeleteProgramSession: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("DeleteProgramSession: session %w", ErrNotFound)
		}
		for _, m := range []interface{}{
			(*SessionAssignment)(nil),
			(*ReminderLog)(nil),
		} {
			if _, err := tx.NewDelete().
				Model(m).
				Where("session_id = ?", id).
				Exec(ctx); err != nil {
				return fmt.Errorf("DeleteProgramSession: %w", err)
			}
		}
		return nil
	})
}

type AssignmentRole string

const (
	ASSIGNMENT_ROLE_SPEAKER   = AssignmentRole("speaker")
	ASSIGNMENT_ROLE_CHAIR     = AssignmentRole("chair")
	ASSIGNMENT_ROLE_MODERATOR = AssignmentRole("moderator")
	ASSIGNMENT_ROLE_PANELIST  = AssignmentRole("panelist")
)

type SessionAssignment struct {
	bun.BaseModel `bun:"table:session_assignments"`

	ID          string         `bun:"id,pk" json:"id"`
	SessionID   string         `bun:"session_id,notnull,unique:assignment_session_faculty" json:"session_id"`
	FacultyID   string         `bun:"faculty_id,notnull,unique:assignment_session_faculty" json:"faculty_id"`
	Role        AssignmentRole `bun:"role,notnull,type:varchar" json:"role"`
	Topic       string         `bun:"topic" json:"topic"`
	DurationMin int            `bun:"duration_min,notnull" json:"duration_min"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// AssignFaculty adds a faculty member to a session. Both must belong to the
// event and the pair must be new.
func AssignFaculty(ctx context.Context, db bun.IDB, eventID string, a *SessionAssignment) error {
	if a.Role == "" {
		a.Role = ASSIGNMENT_ROLE_SPEAKER
	}
	switch a.Role {
	case ASSIGNMENT_ROLE_SPEAKER, ASSIGNMENT_ROLE_CHAIR, ASSIGNMENT_ROLE_MODERATOR, ASSIGNMENT_ROLE_PANELIST:
	default:
		return fmt.Errorf("AssignFaculty: %w: unknown role %q", ErrInvalid, a.Role)
	}
	if a.DurationMin < 0 {
		return fmt.Errorf("AssignFaculty: %w: duration must not be negative", ErrInvalid)
	}
	if _, err := GetProgramSession(ctx, db, eventID, a.SessionID); err != nil {
		return fmt.Errorf("AssignFaculty: %w", err)
	}
	if _, err := GetFaculty(ctx, db, eventID, a.FacultyID); err != nil {
		return fmt.Errorf("AssignFaculty: %w", err)
	}
	exists, err := db.NewSelect().
		Model((*SessionAssignment)(nil)).
		Where("session_id = ?", a.SessionID).
		Where("faculty_id = ?", a.FacultyID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("AssignFaculty: %w", err)
	}
	if exists {
		return fmt.Errorf("AssignFaculty: %w: faculty is already assigned to this session", ErrConflict)
	}
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = time.Now().UTC()
	if _, err := db.NewInsert().
		Model(a).
		Exec(ctx); err != nil {
		return fmt.Errorf("AssignFaculty: %w", err)
	}
	return nil
}

func UnassignFaculty(ctx context.Context, db bun.IDB, sessionID, assignmentID string) error {
	res, err := db.NewDelete().
		Model((*SessionAssignment)(nil)).
		Where("id = ?", assignmentID).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("UnassignFaculty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UnassignFaculty: assignment %w", ErrNotFound)
	}
	return nil
}

// ListFacultySessions returns the sessions a faculty member is assigned to,
// ordered by start.
func ListFacultySessions(ctx context.Context, db bun.IDB, facultyID string) ([]ProgramSession, error) {
	sessions := make([]ProgramSession, 0)
	if err := db.NewSelect().
		Model(&sessions).
		Where("id IN (?)", db.NewSelect().
			Model((*SessionAssignment)(nil)).
			Column("session_id").
			Where("faculty_id = ?", facultyID)).
		Order("start_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListFacultySessions: %w", err)
	}
	return sessions, nil
}

// ReminderLog marks a reminder as sent for one occurrence of one
// assignment so the worker never sends it twice.
type ReminderLog struct {
	bun.BaseModel `bun:"table:reminder_logs"`

	ID           string    `bun:"id,pk"`
	SessionID    string    `bun:"session_id,notnull,unique:reminder_occurrence"`
	FacultyID    string    `bun:"faculty_id,notnull,unique:reminder_occurrence"`
	OccurrenceAt time.Time `bun:"occurrence_at,notnull,unique:reminder_occurrence"`
	SentAt       time.Time `bun:"sent_at,notnull"`
}

// ClaimReminder records the reminder and reports whether this caller is
// the first to do so.
func ClaimReminder(ctx context.Context, db bun.IDB, sessionID, facultyID string, occurrence, now time.Time) (bool, error) {
	res, err := db.NewInsert().
		Model(&ReminderLog{
			ID:           newID(),
			SessionID:    sessionID,
			FacultyID:    facultyID,
			OccurrenceAt: occurrence.UTC(),
			SentAt:       now.UTC(),
		}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("ClaimReminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimReminder: %w", err)
	}
	return n == 1, nil
}
