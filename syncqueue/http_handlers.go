// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// cursorQueryParam is the query-shape cursor parameter, named after the
// LastUpdateDT parameter Kodi clients already send
const cursorQueryParam = "lastUpdateDT"

// ClientAuthenticator extracts the caller's identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and provide both pieces.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	IsAdmin(r *http.Request) (bool, error)
}

// HTTPSyncHandlers provides HTTP handlers for the delta sync API
type HTTPSyncHandlers struct {
	service       *SyncService
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers
func NewHTTPSyncHandlers(service *SyncService, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// authorizeUser resolves the authenticated caller and checks it may read the
// requested user's delta. Admin tokens may query any user.
func (h *HTTPSyncHandlers) authorizeUser(w http.ResponseWriter, r *http.Request, requestedUser string) bool {
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return false
	}
	if userID == requestedUser {
		return true
	}
	admin, err := h.authenticator.IsAdmin(r)
	if err != nil || !admin {
		h.writeError(w, http.StatusForbidden, "forbidden", "token does not grant access to this user")
		return false
	}
	return true
}

// HandleDeltaPath serves GET /sync/{user}/{cursor}/items, the shape with the
// cursor as a path segment
func (h *HTTPSyncHandlers) HandleDeltaPath(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if !h.authorizeUser(w, r, user) {
		return
	}
	h.serveDelta(w, r, user, r.PathValue("cursor"))
}

// HandleDeltaQuery serves GET /sync/{user}/items?lastUpdateDT=..., the shape
// with the cursor as a query parameter. An absent parameter means "all history".
func (h *HTTPSyncHandlers) HandleDeltaQuery(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if !h.authorizeUser(w, r, user) {
		return
	}
	h.serveDelta(w, r, user, r.URL.Query().Get(cursorQueryParam))
}

// serveDelta is the shared tail of both cursor shapes: normalize the cursor,
// compute the delta, translate the error taxonomy to HTTP statuses.
func (h *HTTPSyncHandlers) serveDelta(w http.ResponseWriter, r *http.Request, userID, rawCursor string) {
	cursor, err := ParseCursor(rawCursor)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed_cursor",
			"cursor must be a UTC instant formatted as yyyy-MM-ddTHH:mm:ssZ")
		return
	}

	info, err := h.service.Delta(r.Context(), userID, cursor)
	if err != nil {
		switch {
		case errors.Is(err, ErrTimeout):
			h.writeError(w, http.StatusGatewayTimeout, "timeout", "delta computation timed out, retry with the same cursor")
		case errors.Is(err, ErrRepositoryUnavailable), errors.Is(err, ErrServiceClosed):
			h.writeError(w, http.StatusServiceUnavailable, "repository_unavailable", "change repository unavailable, retry with the same cursor")
		default:
			h.logger.Error("Failed to compute delta", "error", err, "user_id", userID)
			h.writeError(w, http.StatusInternalServerError, "delta_failed", "Failed to compute delta")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(info); err != nil {
		h.logger.Error("Failed to encode delta response", "error", err, "user_id", userID)
	}
}

// requireAdmin gates the ingest and retention endpoints
func (h *HTTPSyncHandlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	admin, err := h.authenticator.IsAdmin(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return false
	}
	if !admin {
		h.writeError(w, http.StatusForbidden, "forbidden", "admin token required")
		return false
	}
	return true
}

// HandleRecordItemChange serves POST /admin/changes, feeding the item change log
func (h *HTTPSyncHandlers) HandleRecordItemChange(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req RecordItemChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse item change request")
		return
	}

	if err := h.service.RecordItemChange(r.Context(), req.UserID, req.ItemID, req.Category); err != nil {
		if errors.Is(err, ErrServiceClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "service_closed", err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRecordUserData serves POST /admin/userdata, feeding the user-data log
func (h *HTTPSyncHandlers) HandleRecordUserData(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req RecordUserDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse user-data request")
		return
	}

	if err := h.service.RecordUserData(r.Context(), req.UserID, req.ItemID, req.Payload); err != nil {
		if errors.Is(err, ErrServiceClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "service_closed", err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandlePrune serves POST /admin/prune for retention cleanup
func (h *HTTPSyncHandlers) HandlePrune(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse prune request")
		return
	}
	before, err := ParseCursor(req.Before)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed_cursor",
			"before must be a UTC instant formatted as yyyy-MM-ddTHH:mm:ssZ")
		return
	}

	removed, err := h.service.Prune(r.Context(), before)
	if err != nil {
		h.logger.Error("Prune failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "prune_failed", "Failed to prune change log")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PruneResponse{Removed: removed}); err != nil {
		h.logger.Error("Failed to encode prune response", "error", err)
	}
}

// HandleStatus serves GET /status
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Status:  "healthy",
		Version: APIVersion,
		AppName: h.service.AppName(),
		Features: map[string]bool{
			"item_changes":   true,
			"user_data":      true,
			"folder_changes": false,
			"retention":      true,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode status response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
