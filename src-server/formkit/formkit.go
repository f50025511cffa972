// Package formkit checks a public form submission against the form's field
// definitions.
package formkit

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"confdesk/src-server/model"
	"confdesk/src-server/validate"
)

// Validate returns the cleaned submission (declared fields only, values
// normalized) or a message per offending field key.
func Validate(fields []model.FormField, data map[string]any) (map[string]any, validate.FieldErrors) {
	cleaned := make(map[string]any, len(fields))
	errs := make(validate.FieldErrors)
	for _, field := range fields {
		raw, present := data[field.Key]
		if !present || isEmpty(raw) {
			if field.Required {
				errs[field.Key] = "is required"
			}
			continue
		}
		value, msg := check(field, raw)
		if msg != "" {
			errs[field.Key] = msg
			continue
		}
		cleaned[field.Key] = value
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

// Email returns the first email-typed value of a cleaned submission.
func Email(fields []model.FormField, cleaned map[string]any) string {
	for _, field := range fields {
		if field.Type != model.FIELD_TYPE_EMAIL {
			continue
		}
		if s, ok := cleaned[field.Key].(string); ok {
			return s
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case bool:
		return !v
	}
	return false
}

func check(field model.FormField, raw any) (any, string) {
	switch field.Type {
	case model.FIELD_TYPE_TEXT, model.FIELD_TYPE_TEXTAREA:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be text"
		}
		s = strings.TrimSpace(s)
		n := float64(utf8.RuneCountInString(s))
		if field.Min != nil && n < *field.Min {
			return nil, fmt.Sprintf("must be at least %s characters", formatNumber(*field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return nil, fmt.Sprintf("must be at most %s characters", formatNumber(*field.Max))
		}
		return s, ""

	case model.FIELD_TYPE_EMAIL:
		s, ok := raw.(string)
		if !ok || !validate.Var(strings.TrimSpace(s), "email") {
			return nil, "must be a valid email address"
		}
		return model.NormalizeEmail(s), ""

	case model.FIELD_TYPE_PHONE:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a phone number"
		}
		phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
		switch {
		case strings.HasPrefix(phone, "+") && validate.Var(phone, "e164"):
		case !strings.HasPrefix(phone, "+") && validate.Var(phone, "numeric,min=7,max=15"):
		default:
			return nil, "must be a phone number"
		}
		return phone, ""

	case model.FIELD_TYPE_NUMBER:
		var n float64
		switch v := raw.(type) {
		case float64:
			n = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, "must be a number"
			}
			n = parsed
		default:
			return nil, "must be a number"
		}
		if field.Min != nil && n < *field.Min {
			return nil, fmt.Sprintf("must be at least %s", formatNumber(*field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return nil, fmt.Sprintf("must be at most %s", formatNumber(*field.Max))
		}
		return n, ""

	case model.FIELD_TYPE_SELECT:
		s, ok := raw.(string)
		if !ok || !contains(field.Options, s) {
			return nil, "must be one of the listed options"
		}
		return s, ""

	case model.FIELD_TYPE_MULTISELECT:
		items, ok := raw.([]any)
		if !ok {
			return nil, "must be a list of options"
		}
		picked := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !contains(field.Options, s) {
				return nil, "must only contain listed options"
			}
			picked = append(picked, s)
		}
		n := float64(len(picked))
		if field.Min != nil && n < *field.Min {
			return nil, fmt.Sprintf("must pick at least %s", formatNumber(*field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return nil, fmt.Sprintf("must pick at most %s", formatNumber(*field.Max))
		}
		return picked, ""

	case model.FIELD_TYPE_CHECKBOX:
		switch v := raw.(type) {
		case bool:
			return v, ""
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, "must be true or false"
			}
			return b, ""
		}
		return nil, "must be true or false"

	case model.FIELD_TYPE_DATE:
		s, ok := raw.(string)
		if !ok || !validate.Var(strings.TrimSpace(s), "datetime=2006-01-02") {
			return nil, "must be a date (YYYY-MM-DD)"
		}
		return strings.TrimSpace(s), ""

	case model.FIELD_TYPE_URL:
		s, ok := raw.(string)
		if !ok || !validate.Var(strings.TrimSpace(s), "http_url") {
			return nil, "must be a valid URL"
		}
		return strings.TrimSpace(s), ""
	}
	return nil, "has an unsupported type"
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
