package formkit_test

import (
	"testing"

	"confdesk/src-server/formkit"
	"confdesk/src-server/model"
)

func ptr(f float64) *float64 { return &f }

var fields = []model.FormField{
	{Key: "name", Type: model.FIELD_TYPE_TEXT, Required: true, Min: ptr(2), Max: ptr(40)},
	{Key: "email", Type: model.FIELD_TYPE_EMAIL, Required: true},
	{Key: "phone", Type: model.FIELD_TYPE_PHONE},
	{Key: "age", Type: model.FIELD_TYPE_NUMBER, Min: ptr(18), Max: ptr(99)},
	{Key: "diet", Type: model.FIELD_TYPE_SELECT, Options: []string{"veg", "non-veg"}},
	{Key: "workshops", Type: model.FIELD_TYPE_MULTISELECT, Options: []string{"echo", "cath", "ecg"}, Max: ptr(2)},
	{Key: "consent", Type: model.FIELD_TYPE_CHECKBOX, Required: true},
	{Key: "arrival", Type: model.FIELD_TYPE_DATE},
	{Key: "website", Type: model.FIELD_TYPE_URL},
}

func TestValidateAccepts(t *testing.T) {
	cleaned, errs := formkit.Validate(fields, map[string]any{
		"name":      "  Asha Rao ",
		"email":     "Asha@Example.com",
		"phone":     "+91 98000 00000",
		"age":       "34",
		"diet":      "veg",
		"workshops": []any{"echo", "ecg"},
		"consent":   true,
		"arrival":   "2026-03-09",
		"website":   "https://asha.example.com",
		"injected":  "dropped",
	})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cleaned["name"] != "Asha Rao" || cleaned["email"] != "asha@example.com" || cleaned["phone"] != "+919800000000" {
		t.Errorf("cleaned = %v", cleaned)
	}
	if cleaned["age"] != float64(34) {
		t.Errorf("age = %#v", cleaned["age"])
	}
	if _, ok := cleaned["injected"]; ok {
		t.Error("undeclared key kept")
	}
	if got := formkit.Email(fields, cleaned); got != "asha@example.com" {
		t.Errorf("Email = %q", got)
	}
}

func TestValidateRejects(t *testing.T) {
	_, errs := formkit.Validate(fields, map[string]any{
		"name":      "A",
		"email":     "not-an-email",
		"phone":     "call me",
		"age":       float64(12),
		"diet":      "vegan",
		"workshops": []any{"echo", "cath", "ecg"},
		"consent":   false,
		"arrival":   "09/03/2026",
		"website":   "asha dot com",
	})
	for _, key := range []string{"name", "email", "phone", "age", "diet", "workshops", "consent", "arrival", "website"} {
		if _, ok := errs[key]; !ok {
			t.Errorf("expected an error for %s, got %v", key, errs)
		}
	}
	if errs["consent"] != "is required" {
		t.Errorf("consent = %q", errs["consent"])
	}
}

func TestValidateOptionalEmpty(t *testing.T) {
	cleaned, errs := formkit.Validate(fields, map[string]any{
		"name":    "Bala",
		"email":   "bala@example.com",
		"consent": "true",
		"phone":   "",
	})
	if errs != nil {
		t.Fatal(errs)
	}
	if _, ok := cleaned["phone"]; ok {
		t.Error("empty optional field stored")
	}
}
