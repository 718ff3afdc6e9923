package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/odvcencio/codehub/internal/database"
)

// Error taxonomy surfaced to callers. Every service error wraps one of these
// (or is an unexpected infrastructure failure) and is matched with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already exists")
	ErrInvalidState = errors.New("invalid state transition")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
)

// ErrNotVisible is the ErrForbidden returned when the caller may not see a
// private repository at all. Transports answer it as not found.
var ErrNotVisible = fmt.Errorf("%w: not visible", ErrForbidden)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// mapDBErr translates storage errors into the service taxonomy, prefixed with what.
func mapDBErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	case errors.Is(err, database.ErrStateConflict):
		return fmt.Errorf("%s: %w", what, ErrInvalidState)
	case errors.Is(err, database.ErrCommentTarget):
		return fmt.Errorf("%s: %w: %v", what, ErrValidation, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, database.ErrDuplicate)
}

func normalizePage(page, perPage, defaultPerPage, maxPerPage int) (limit, offset int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return perPage, (page - 1) * perPage
}

// clipText trims s and shortens it to at most max bytes, appending "..." when
// it had to cut. Cuts land on rune boundaries.
func clipText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeBoundary(s, max)]
	}
	return strings.TrimSpace(s[:runeBoundary(s, max-3)]) + "..."
}

// runeBoundary returns the largest index <= n that starts a rune in s.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
