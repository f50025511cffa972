// Package validate wraps a shared go-playground validator that reports
// field names the way clients send them (json tag names).
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// FieldErrors maps a field name to a human readable message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// Struct validates s against its `validate` tags. It returns FieldErrors on
// failure so callers can pass them on as response details.
func Struct(s interface{}) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	fieldErrs := make(FieldErrors, len(validationErrs))
	for _, fieldErr := range validationErrs {
		field := fieldErr.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		fieldErrs[field] = message(fieldErr)
	}
	return fieldErrs
}

// Var validates a single value against tag, e.g. Var(email, "email").
func Var(value interface{}, tag string) bool {
	return get().Var(value, tag) == nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
