package model_test

import (
	"context"
	"errors"
	"testing"

	"confdesk/src-server/model"

	"github.com/google/uuid"
)

func TestFormUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)

	for name, fields := range map[string][]model.FormField{
		"blank key":      {{Key: " ", Label: "x", Type: model.FIELD_TYPE_TEXT}},
		"duplicate key":  {{Key: "a", Type: model.FIELD_TYPE_TEXT}, {Key: "a", Type: model.FIELD_TYPE_EMAIL}},
		"select options": {{Key: "diet", Type: model.FIELD_TYPE_SELECT}},
		"unknown type":   {{Key: "a", Type: "color"}},
	} {
		form := &model.Form{ID: uuid.NewString(), EventID: event.ID, Title: "Feedback " + name, Fields: fields}
		if err := form.Upsert(ctx, db); !errors.Is(err, model.ErrInvalid) {
			t.Errorf("%s: expected invalid, got %v", name, err)
		}
	}

	form := &model.Form{
		ID:      uuid.NewString(),
		EventID: event.ID,
		Title:   "Dietary Preferences",
		Status:  model.FORM_STATUS_OPEN,
		Fields: []model.FormField{
			{Key: "diet", Label: "Diet", Type: model.FIELD_TYPE_SELECT, Options: []string{"veg", "non-veg"}, Required: true},
		},
	}
	if err := form.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	got, err := model.GetFormBySlug(ctx, db, "dietary-preferences")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Fields) != 1 || got.Fields[0].Options[1] != "non-veg" {
		t.Errorf("fields not stored: %+v", got.Fields)
	}

	if err := model.CreateFormSubmission(ctx, db, &model.FormSubmission{
		FormID: form.ID,
		Data:   map[string]any{"diet": "veg"},
		Email:  "A@Example.com",
	}); err != nil {
		t.Fatal(err)
	}
	submissions, total, err := model.ListFormSubmissions(ctx, db, form.ID, model.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || submissions[0].Data["diet"] != "veg" || submissions[0].Email != "a@example.com" {
		t.Errorf("unexpected submissions %+v", submissions)
	}

	if err := model.DeleteForm(ctx, db, event.ID, form.ID); err != nil {
		t.Fatal(err)
	}
	if rest, _ := model.AllFormSubmissions(ctx, db, form.ID); len(rest) != 0 {
		t.Error("submissions should be deleted with the form")
	}
}
