package store

import (
	"database/sql"
	"errors"
	"time"
)

// BoolToInt converts a boolean into SQLite's integer representation.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// FormatTime renders a timestamp the way text columns store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// IsNoRows reports whether err signals an empty single-row result.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
