// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"encoding/json"
	"time"
)

// REST/JSON models for HTTP API requests and responses

// SyncUpdateInfo is the consolidated delta envelope returned to a client so it
// can reconcile a local library cache without re-downloading the full catalog.
// Item id slices have set semantics; ordering within a category is unspecified.
type SyncUpdateInfo struct {
	ItemsAdded   []string `json:"ItemsAdded"`
	ItemsRemoved []string `json:"ItemsRemoved"`
	ItemsUpdated []string `json:"ItemsUpdated"`

	// Folder-level diffing is out of scope; both fields are always present and empty.
	FoldersAddedTo     []string `json:"FoldersAddedTo"`
	FoldersRemovedFrom []string `json:"FoldersRemovedFrom"`

	// UserDataChanged preserves repository emission order, which carries no
	// semantic meaning and is not guaranteed stable across calls.
	UserDataChanged []UserItemData `json:"UserDataChanged"`
}

// NewSyncUpdateInfo returns an envelope with every field non-nil so JSON output
// always contains empty arrays rather than nulls.
func NewSyncUpdateInfo() *SyncUpdateInfo {
	return &SyncUpdateInfo{
		ItemsAdded:         []string{},
		ItemsRemoved:       []string{},
		ItemsUpdated:       []string{},
		FoldersAddedTo:     []string{},
		FoldersRemovedFrom: []string{},
		UserDataChanged:    []UserItemData{},
	}
}

// UserItemData is a decoded per-user, per-item metadata change record
type UserItemData struct {
	ItemID                string     `json:"ItemId"`
	Key                   string     `json:"Key,omitempty"`
	PlaybackPositionTicks int64      `json:"PlaybackPositionTicks"`
	PlayCount             int        `json:"PlayCount"`
	IsFavorite            bool       `json:"IsFavorite"`
	Played                bool       `json:"Played"`
	LastPlayedDate        *time.Time `json:"LastPlayedDate,omitempty"`
}

// RecordItemChangeRequest is the admin ingest body for an item lifecycle change
type RecordItemChangeRequest struct {
	UserID   string         `json:"user_id"`
	ItemID   string         `json:"item_id"`
	Category ChangeCategory `json:"category"`
}

// RecordUserDataRequest is the admin ingest body for a user-data change.
// Payload is stored as-is and decoded into UserItemData at delta time.
type RecordUserDataRequest struct {
	UserID  string          `json:"user_id"`
	ItemID  string          `json:"item_id"`
	Payload json.RawMessage `json:"payload"`
}

// PruneRequest bounds retention cleanup to rows older than the given instant,
// supplied in the same textual format as a cursor.
type PruneRequest struct {
	Before string `json:"before"`
}

// PruneResponse reports how many change-log rows retention removed
type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	AppName  string          `json:"app_name"`
	Features map[string]bool `json:"features"`
}
