// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import "encoding/json"

// Database entity models for the change-log store

// ItemChangeEntity represents a row in the item_change_log table.
// One row exists per (user, item, category); re-recording the same change
// advances LastModified in place.
type ItemChangeEntity struct {
	ID           int64          `db:"id"`            // BIGSERIAL PRIMARY KEY
	UserID       string         `db:"user_id"`       // Requesting-user scope
	ItemID       string         `db:"item_id"`       // Library item id (UUID as string)
	Category     ChangeCategory `db:"category"`      // Added/Updated/Removed
	LastModified int64          `db:"last_modified"` // Seconds since Unix epoch
}

// UserDataChangeEntity represents a row in the user_data_log table.
// One row exists per (user, item); the payload is the serialized user-data
// record emitted by the media server and is decoded only at delta time.
type UserDataChangeEntity struct {
	ID           int64           `db:"id"`            // BIGSERIAL PRIMARY KEY
	UserID       string          `db:"user_id"`       // Owning user
	ItemID       string          `db:"item_id"`       // Library item id (UUID as string)
	Payload      json.RawMessage `db:"payload"`       // Serialized UserItemData
	LastModified int64           `db:"last_modified"` // Seconds since Unix epoch
}

// UserDataEntry is the raw (payload, item id) pair the repository emits for a
// user-data query, before decoding
type UserDataEntry struct {
	ItemID  string
	Payload json.RawMessage
}
