// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

// ChangeCategory scopes a change-log query to one slice of item lifecycle history.
// The numeric values are the repository's native category keys and must not change.
type ChangeCategory int

const (
	CategoryAdded   ChangeCategory = 0
	CategoryUpdated ChangeCategory = 1
	CategoryRemoved ChangeCategory = 2
)

// String returns the category name used in logs and diagnostics
func (c ChangeCategory) String() string {
	switch c {
	case CategoryAdded:
		return "added"
	case CategoryUpdated:
		return "updated"
	case CategoryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known categories
func (c ChangeCategory) Valid() bool {
	return c == CategoryAdded || c == CategoryUpdated || c == CategoryRemoved
}

const (
	// CursorLayout is the only accepted textual cursor format: a UTC instant
	// such as "2024-07-01T15:04:05Z".
	CursorLayout = "2006-01-02T15:04:05Z"

	// DefaultCursor is substituted for an absent or empty cursor and predates
	// any recordable library history ("return everything the user can see").
	DefaultCursor = "1900-01-01T00:00:00Z"
)

// APIVersion is reported by the status endpoint
const APIVersion = "1.0.0"
