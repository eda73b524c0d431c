// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import "errors"

// Error taxonomy for the delta API. Handlers translate these to HTTP statuses;
// everything except ErrMalformedCursor is safe for the client to retry with the
// same cursor.
var (
	// ErrMalformedCursor means the client-supplied cursor string is not a valid
	// UTC instant in the CursorLayout format.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrRepositoryUnavailable means one or more change-log queries failed due to
	// an infrastructure fault. No partial delta is ever returned in this case.
	ErrRepositoryUnavailable = errors.New("change repository unavailable")

	// ErrTimeout means the caller's deadline elapsed before all category queries
	// completed.
	ErrTimeout = errors.New("delta computation timed out")

	// ErrServiceClosed is returned for operations issued after Close
	ErrServiceClosed = errors.New("sync service has been closed")
)
