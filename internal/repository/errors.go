package repository

import "strings"

// isDuplicate reports whether err is a unique constraint violation on any of
// the supported drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()

	// PostgreSQL and SQLite
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return true
	}
	// MySQL
	return strings.Contains(errStr, "Duplicate entry")
}
