package model

import "errors"

// Sentinel errors returned by the model layer. The route package maps them
// to HTTP status codes.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrSoldOut     = errors.New("ticket type is sold out")
	ErrUnavailable = errors.New("not available")

	ErrRegistrationClosed    = errors.New("registration is closed")
	ErrDuplicateRegistration = errors.New("email is already registered for this event")
	ErrSubmissionClosed      = errors.New("abstract submission is closed")
)
