// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import "context"

// ChangeRepository is the store of historical item and user-data change events,
// queried by (user, epoch cursor). It is injected into the sync service rather
// than reached through ambient state so the delta engine stays testable with a
// substitute store.
//
// The "since" argument is always the integer epoch form of a cursor
// (CursorEpoch); implementations compare it against last_modified and include
// rows at or after the boundary. Concurrent queries for the same or different
// users require no coordination from the caller.
type ChangeRepository interface {
	// ItemChanges returns the ids of items whose lifecycle state changed in the
	// given category at or after the cursor, scoped to the user
	ItemChanges(ctx context.Context, userID string, since int64, category ChangeCategory) ([]string, error)

	// UserDataChanges returns raw user-data payloads with their item ids,
	// one entry per (user, item) pair changed at or after the cursor, in the
	// store's emission order
	UserDataChanges(ctx context.Context, userID string, since int64) ([]UserDataEntry, error)

	// RecordItemChange upserts an item lifecycle change. A zero LastModified is
	// stamped with the current time by the implementation.
	RecordItemChange(ctx context.Context, rec *ItemChangeEntity) error

	// RecordUserDataChange upserts the user-data record for (user, item)
	RecordUserDataChange(ctx context.Context, rec *UserDataChangeEntity) error

	// Prune deletes change rows strictly older than the given epoch boundary
	// and returns how many rows were removed
	Prune(ctx context.Context, before int64) (int64, error)

	// Close releases store resources held by the repository
	Close() error
}
