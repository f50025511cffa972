package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type BadgeElementKind string

const (
	BADGE_ELEMENT_TEXT  = BadgeElementKind("text")
	BADGE_ELEMENT_FIELD = BadgeElementKind("field")
	BADGE_ELEMENT_QR    = BadgeElementKind("qr")
	BADGE_ELEMENT_IMAGE = BadgeElementKind("image")
	BADGE_ELEMENT_LINE  = BadgeElementKind("line")
)

// BadgeElement is one positioned item on a badge. Coordinates are in
// millimetres from the top-left corner.
type BadgeElement struct {
	Kind      BadgeElementKind `json:"kind"`
	Field     string           `json:"field,omitempty"`
	Text      string           `json:"text,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	XMm       float64          `json:"x_mm"`
	YMm       float64          `json:"y_mm"`
	WidthMm   float64          `json:"width_mm"`
	HeightMm  float64          `json:"height_mm"`
	FontSize  float64          `json:"font_size,omitempty"`
	Bold      bool             `json:"bold,omitempty"`
	Align     string           `json:"align,omitempty"`     // L, C or R
	Color     string           `json:"color,omitempty"`     // #rrggbb
	Uppercase bool             `json:"uppercase,omitempty"` // otherwise field values are title-cased
}

type BadgeTemplate struct {
	bun.BaseModel `bun:"table:badge_templates"`

	ID        string         `bun:"id,pk" json:"id"`
	EventID   string         `bun:"event_id,notnull" json:"event_id"`
	Name      string         `bun:"name,notnull" json:"name"`
	WidthMm   float64        `bun:"width_mm,notnull" json:"width_mm"`
	HeightMm  float64        `bun:"height_mm,notnull" json:"height_mm"`
	Elements  []BadgeElement `bun:"elements,notnull" json:"elements"`
	IsDefault bool           `bun:"is_default,notnull" json:"is_default"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Upsert stores the template. Layout problems are not rejected here; the
// completeness check reports them and PDF rendering refuses broken
// templates. Marking a template default clears the flag on its siblings.
func (t *BadgeTemplate) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("(*BadgeTemplate).Upsert: %w: template id is blank", ErrInvalid)
	case t.EventID == "":
		return fmt.Errorf("(*BadgeTemplate).Upsert: %w: event id is blank", ErrInvalid)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("(*BadgeTemplate).Upsert: %w: name is blank", ErrInvalid)
	}
	if t.Elements == nil {
		t.Elements = []BadgeElement{}
	}
	now := time.Now().UTC()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	if t.IsDefault {
		if _, err := db.NewUpdate().
			Model((*BadgeTemplate)(nil)).
			Set("is_default = ?", false).
			Where("event_id = ?", t.EventID).
			Where("id != ?", t.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*BadgeTemplate).Upsert: %w", err)
		}
	}
	if _, err := db.NewInsert().
		Model(t).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("width_mm = EXCLUDED.width_mm").
		Set("height_mm = EXCLUDED.height_mm").
		Set("elements = EXCLUDED.elements").
		Set("is_default = EXCLUDED.is_default").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*BadgeTemplate).Upsert: %w", err)
	}
	return nil
}

func GetBadgeTemplate(ctx context.Context, db bun.IDB, eventID, id string) (*BadgeTemplate, error) {
	template := new(BadgeTemplate)
	if err := db.NewSelect().
		Model(template).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "badge template")
	}
	return template, nil
}

// GetDefaultBadgeTemplate returns the default template, or the oldest one
// when none is flagged.
func GetDefaultBadgeTemplate(ctx context.Context, db bun.IDB, eventID string) (*BadgeTemplate, error) {
	template := new(BadgeTemplate)
	if err := db.NewSelect().
		Model(template).
		Where("event_id = ?", eventID).
		OrderExpr("is_default DESC").
		Order("created_at ASC").
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "badge template")
	}
	return template, nil
}

func ListBadgeTemplates(ctx context.Context, db bun.IDB, eventID string) ([]BadgeTemplate, error) {
	templates := make([]BadgeTemplate, 0)
	if err := db.NewSelect().
		Model(&templates).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListBadgeTemplates: %w", err)
	}
	return templates, nil
}

func DeleteBadgeTemplate(ctx context.Context, db bun.IDB, eventID, id string) error {
	res, err := db.NewDelete().
		Model((*BadgeTemplate)(nil)).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("DeleteBadgeTemplate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteBadgeTemplate: badge template %w", ErrNotFound)
	}
	return nil
}
