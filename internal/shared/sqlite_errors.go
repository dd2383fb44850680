// Package shared holds small helpers used by more than one package.
package shared

import "strings"

// IsSQLiteBusyError reports whether err is a SQLITE_BUSY failure,
// raised when another connection holds the write lock.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError reports whether err is a "database is locked"
// failure, the other shape SQLite lock contention takes.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports whether err is retryable SQLite lock
// contention in either form. Callers back off and retry the write.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
