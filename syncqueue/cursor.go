// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"fmt"
	"strings"
	"time"
)

// ParseCursor normalizes a client-supplied "since" marker into an absolute UTC
// instant. An absent or empty cursor resolves to DefaultCursor, which predates
// all history. Any other input must match CursorLayout exactly; a string that
// does not parse fails with ErrMalformedCursor rather than being coerced.
func ParseCursor(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t, _ := time.Parse(CursorLayout, DefaultCursor)
		return t, nil
	}

	t, err := time.Parse(CursorLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a UTC instant formatted as yyyy-MM-ddTHH:mm:ssZ", ErrMalformedCursor, raw)
	}
	return t.UTC(), nil
}

// CursorEpoch converts a normalized cursor to the repository's comparison key:
// whole seconds since the Unix epoch. Repository callers must use this integer
// form exclusively so category queries cannot drift on timezone or sub-second
// precision.
func CursorEpoch(t time.Time) int64 {
	return t.UTC().Unix()
}
