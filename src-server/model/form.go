package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type FormStatus string

const (
	FORM_STATUS_DRAFT  = FormStatus("draft")
	FORM_STATUS_OPEN   = FormStatus("open")
	FORM_STATUS_CLOSED = FormStatus("closed")
)

type FieldType string

const (
	FIELD_TYPE_TEXT        = FieldType("text")
	FIELD_TYPE_TEXTAREA    = FieldType("textarea")
	FIELD_TYPE_EMAIL       = FieldType("email")
	FIELD_TYPE_PHONE       = FieldType("phone")
	FIELD_TYPE_NUMBER      = FieldType("number")
	FIELD_TYPE_SELECT      = FieldType("select")
	FIELD_TYPE_MULTISELECT = FieldType("multiselect")
	FIELD_TYPE_CHECKBOX    = FieldType("checkbox")
	FIELD_TYPE_DATE        = FieldType("date")
	FIELD_TYPE_URL         = FieldType("url")
)

func (t FieldType) Valid() bool {
	switch t {
	case FIELD_TYPE_TEXT, FIELD_TYPE_TEXTAREA, FIELD_TYPE_EMAIL, FIELD_TYPE_PHONE,
		FIELD_TYPE_NUMBER, FIELD_TYPE_SELECT, FIELD_TYPE_MULTISELECT,
		FIELD_TYPE_CHECKBOX, FIELD_TYPE_DATE, FIELD_TYPE_URL:
		return true
	}
	return false
}

func (t FieldType) HasOptions() bool {
	return t == FIELD_TYPE_SELECT || t == FIELD_TYPE_MULTISELECT
}

// FormField describes one input. Min and Max bound the value for numbers
// and the length for text types.
type FormField struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	HelpText    string    `json:"help_text,omitempty"`
}

type Form struct {
	bun.BaseModel `bun:"table:forms"`

	ID          string      `bun:"id,pk" json:"id"`
	EventID     string      `bun:"event_id,notnull" json:"event_id"`
	Slug        string      `bun:"slug,notnull,unique" json:"slug"`
	Title       string      `bun:"title,notnull" json:"title"`
	Description string      `bun:"description" json:"description"`
	Status      FormStatus  `bun:"status,notnull,type:varchar" json:"status"`
	Fields      []FormField `bun:"fields,notnull" json:"fields"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (f *Form) validate() error {
	switch {
	case f.ID == "":
		return fmt.Errorf("%w: form id is blank", ErrInvalid)
	case f.EventID == "":
		return fmt.Errorf("%w: event id is blank", ErrInvalid)
	case strings.TrimSpace(f.Title) == "":
		return fmt.Errorf("%w: title is blank", ErrInvalid)
	case !ValidSlug(f.Slug):
		return fmt.Errorf("%w: slug %q is not valid", ErrInvalid, f.Slug)
	}
	switch f.Status {
	case FORM_STATUS_DRAFT, FORM_STATUS_OPEN, FORM_STATUS_CLOSED:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	seen := make(map[string]struct{}, len(f.Fields))
	for i, field := range f.Fields {
		key := strings.TrimSpace(field.Key)
		switch {
		case key == "":
			return fmt.Errorf("%w: field %d has no key", ErrInvalid, i+1)
		case !field.Type.Valid():
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalid, key, field.Type)
		case field.Type.HasOptions() && len(field.Options) == 0:
			return fmt.Errorf("%w: field %q needs options", ErrInvalid, key)
		case field.Min != nil && field.Max != nil && *field.Min > *field.Max:
			return fmt.Errorf("%w: field %q has min above max", ErrInvalid, key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate field key %q", ErrInvalid, key)
		}
		seen[key] = struct{}{}
		f.Fields[i].Key = key
	}
	return nil
}

func (f *Form) Upsert(ctx context.Context, db bun.IDB) error {
	if f.Slug == "" {
		f.Slug = Slugify(f.Title)
	}
	if f.Status == "" {
		f.Status = FORM_STATUS_DRAFT
	}
	if f.Fields == nil {
		f.Fields = []FormField{}
	}
	if err := f.validate(); err != nil {
		return fmt.Errorf("(*Form).Upsert: %w", err)
	}
	slugTaken, err := db.NewSelect().
		Model((*Form)(nil)).
		Where("slug = ?", f.Slug).
		Where("id != ?", f.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Form).Upsert: %w", err)
	}
	if slugTaken {
		return fmt.Errorf("(*Form).Upsert: %w: slug %q is taken", ErrConflict, f.Slug)
	}

	now := time.Now().UTC()
	f.UpdatedAt = now
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if _, err := db.NewInsert().
		Model(f).
		On("CONFLICT (id) DO UPDATE").
		Set("slug = EXCLUDED.slug").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("status = EXCLUDED.status").
		Set("fields = EXCLUDED.fields").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*Form).Upsert: %w", err)
	}
	return nil
}

func GetForm(ctx context.Context, db bun.IDB, eventID, id string) (*Form, error) {
	form := new(Form)
	if err := db.NewSelect().
		Model(form).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "form")
	}
	return form, nil
}

func GetFormBySlug(ctx context.Context, db bun.IDB, slug string) (*Form, error) {
	form := new(Form)
	if err := db.NewSelect().
		Model(form).
		Where("slug = ?", slug).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "form")
	}
	return form, nil
}

func ListForms(ctx context.Context, db bun.IDB, eventID string) ([]Form, error) {
	forms := make([]Form, 0)
	if err := db.NewSelect().
		Model(&forms).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListForms: %w", err)
	}
	return forms, nil
}

func DeleteForm(ctx context.Context, db *bun.DB, eventID, id string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*Form)(nil)).
			Where("id = ?", id).
			Where("event_id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("DeleteForm: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("DeleteForm: form %w", ErrNotFound)
		}
		if _, err := tx.NewDelete().
			Model((*FormSubmission)(nil)).
			Where("form_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("DeleteForm: %w", err)
		}
		return nil
	})
}

type FormSubmission struct {
	bun.BaseModel `bun:"table:form_submissions"`

	ID        string         `bun:"id,pk" json:"id"`
	FormID    string         `bun:"form_id,notnull" json:"form_id"`
	Data      map[string]any `bun:"data,notnull" json:"data"`
	Email     string         `bun:"email" json:"email"`
	CreatedAt time.Time      `bun:"created_at,notnull" json:"created_at"`
}

func CreateFormSubmission(ctx context.Context, db bun.IDB, submission *FormSubmission) error {
	if submission.ID == "" {
		submission.ID = newID()
	}
	submission.Email = NormalizeEmail(submission.Email)
	submission.CreatedAt = time.Now().UTC()
	if _, err := db.NewInsert().
		Model(submission).
		Exec(ctx); err != nil {
		return fmt.Errorf("CreateFormSubmission: %w", err)
	}
	return nil
}

func ListFormSubmissions(ctx context.Context, db bun.IDB, formID string, opts ListOptions) ([]FormSubmission, int, error) {
	opts = opts.Normalize()
	submissions := make([]FormSubmission, 0)
	total, err := db.NewSelect().
		Model(&submissions).
		Where("form_id = ?", formID).
		Order("created_at ASC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListFormSubmissions: %w", err)
	}
	return submissions, total, nil
}

func AllFormSubmissions(ctx context.Context, db bun.IDB, formID string) ([]FormSubmission, error) {
	submissions := make([]FormSubmission, 0)
	if err := db.NewSelect().
		Model(&submissions).
		Where("form_id = ?", formID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("AllFormSubmissions: %w", err)
	}
	return submissions, nil
}
