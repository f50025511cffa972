package model

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// notFound converts sql.ErrNoRows into ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("can't get %s: %w", what, err)
}

func notFoundErr(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// uniqueViolation reports whether err comes from the named unique index.
// Postgres names the constraint; sqlite only lists the columns.
func uniqueViolation(err error, index string, sqliteColumns string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == index
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, sqliteColumns)
}

func newID() string {
	return uuid.NewString()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListOptions carries limit/offset paging.
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) Normalize() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = 50
	case o.Limit > 500:
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
