// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SyncService computes consolidated library deltas and feeds the change log.
// This is the main component applications integrate: the repository is an
// injected collaborator so the engine runs against Postgres, SQLite, or a
// substitute store in tests.
type SyncService struct {
	repo   ChangeRepository
	logger *slog.Logger
	config *ServiceConfig

	mu     sync.RWMutex
	closed bool
}

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	AppName string // Application name for status reporting

	// QueryTimeout bounds a single delta computation. Zero means the caller's
	// context deadline (if any) is the only bound.
	QueryTimeout time.Duration

	StageMetrics    StageMetricsRecorder // Optional per-stage timing recorder
	LogStageTimings bool                 // Log per-stage durations at debug level
}

// NewSyncService creates a new sync service instance bound to a change repository
func NewSyncService(repo ChangeRepository, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if repo == nil {
		return nil, errors.New("change repository is required")
	}
	if config == nil {
		config = &ServiceConfig{AppName: "kodi-sync-queue"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncService{
		repo:   repo,
		logger: logger,
		config: config,
	}, nil
}

// Close marks the service closed. It does not close the repository - the
// caller is responsible for the store lifecycle.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.logger.Debug("Shutting down sync service")
	s.closed = true
	return nil
}

func (s *SyncService) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// AppName returns the configured application name
func (s *SyncService) AppName() string {
	return s.config.AppName
}

// Delta answers "what changed in this user's visible library since cursor?"
// with one consolidated envelope. The four category queries run concurrently
// and join before assembly; total latency is bounded by the slowest single
// query. Repeating the same (user, cursor) call against unchanged history
// yields the same item-id sets - the computation mutates nothing.
//
// Infrastructure failures are all-or-nothing: if any query fails the whole
// call fails with ErrRepositoryUnavailable (or ErrTimeout on deadline) and no
// partial envelope is returned, so a client never applies an incomplete delta
// to its cache. Individual user-data payloads that fail to decode are skipped
// and logged, never fatal.
func (s *SyncService) Delta(ctx context.Context, userID string, cursor time.Time) (*SyncUpdateInfo, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	since := CursorEpoch(cursor)
	totalStart := s.stageStart()

	var (
		added, removed, updated []string
		userData                []UserDataEntry
	)

	// All four queries are launched before any is awaited; g.Wait is the single
	// fan-in barrier, and the first failure cancels the sibling queries.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := s.stageStart()
		var err error
		added, err = s.repo.ItemChanges(gctx, userID, since, CategoryAdded)
		s.observeStage(ctx, MetricsOpDelta, MetricsStageItemsAdded, start, len(added), err != nil)
		return err
	})
	g.Go(func() error {
		start := s.stageStart()
		var err error
		removed, err = s.repo.ItemChanges(gctx, userID, since, CategoryRemoved)
		s.observeStage(ctx, MetricsOpDelta, MetricsStageItemsRemoved, start, len(removed), err != nil)
		return err
	})
	g.Go(func() error {
		start := s.stageStart()
		var err error
		updated, err = s.repo.ItemChanges(gctx, userID, since, CategoryUpdated)
		s.observeStage(ctx, MetricsOpDelta, MetricsStageItemsUpdated, start, len(updated), err != nil)
		return err
	})
	g.Go(func() error {
		start := s.stageStart()
		var err error
		userData, err = s.repo.UserDataChanges(gctx, userID, since)
		s.observeStage(ctx, MetricsOpDelta, MetricsStageUserData, start, len(userData), err != nil)
		return err
	})

	if err := g.Wait(); err != nil {
		s.observeStage(ctx, MetricsOpDelta, MetricsStageTotal, totalStart, 0, true)
		return nil, s.classifyQueryError(ctx, err)
	}

	info := s.assemble(ctx, userID, added, removed, updated, userData)

	s.logger.Info("Delta computed",
		"user_id", userID,
		"since", since,
		"added", len(info.ItemsAdded),
		"removed", len(info.ItemsRemoved),
		"updated", len(info.ItemsUpdated),
		"user_data_changed", len(info.UserDataChanged),
	)
	s.observeStage(ctx, MetricsOpDelta, MetricsStageTotal, totalStart,
		len(info.ItemsAdded)+len(info.ItemsRemoved)+len(info.ItemsUpdated)+len(info.UserDataChanged), false)

	return info, nil
}

// classifyQueryError maps a failed fan-out to the delta error taxonomy:
// deadline expiry becomes ErrTimeout, everything else ErrRepositoryUnavailable.
func (s *SyncService) classifyQueryError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
}

// assemble builds the response envelope from the four raw result sets. Folder
// fields stay empty: folder-level diffing is a declared scope boundary. A
// user-data payload that fails to decode is dropped with a diagnostic so one
// corrupt record cannot block the rest of the delta.
func (s *SyncService) assemble(ctx context.Context, userID string, added, removed, updated []string, userData []UserDataEntry) *SyncUpdateInfo {
	info := NewSyncUpdateInfo()
	info.ItemsAdded = append(info.ItemsAdded, added...)
	info.ItemsRemoved = append(info.ItemsRemoved, removed...)
	info.ItemsUpdated = append(info.ItemsUpdated, updated...)

	decodeStart := s.stageStart()
	skipped := 0
	for _, entry := range userData {
		var rec UserItemData
		if err := json.Unmarshal(entry.Payload, &rec); err != nil {
			skipped++
			s.logger.Warn("Skipping undecodable user-data payload",
				"user_id", userID, "item_id", entry.ItemID, "error", err)
			continue
		}
		if rec.ItemID == "" {
			rec.ItemID = entry.ItemID
		}
		info.UserDataChanged = append(info.UserDataChanged, rec)
	}
	s.observeStage(ctx, MetricsOpDelta, MetricsStageDecode, decodeStart, len(info.UserDataChanged), skipped > 0)

	return info
}

// RecordItemChange validates and stores an item lifecycle change. Item ids must
// be UUIDs; they are normalized to the canonical dashed form before storage so
// delta responses are byte-stable regardless of the ingest spelling.
func (s *SyncService) RecordItemChange(ctx context.Context, userID, itemID string, category ChangeCategory) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if userID == "" {
		return errors.New("user id is required")
	}
	if !category.Valid() {
		return fmt.Errorf("unknown change category %d", category)
	}
	id, err := uuid.Parse(itemID)
	if err != nil {
		return fmt.Errorf("invalid item id %q: %w", itemID, err)
	}

	rec := &ItemChangeEntity{
		UserID:   userID,
		ItemID:   id.String(),
		Category: category,
	}
	if err := s.repo.RecordItemChange(ctx, rec); err != nil {
		return err
	}

	s.logger.Debug("Recorded item change",
		"user_id", userID, "item_id", rec.ItemID, "category", category.String())
	return nil
}

// RecordUserData validates and stores a user-data change payload for (user, item)
func (s *SyncService) RecordUserData(ctx context.Context, userID, itemID string, payload json.RawMessage) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if userID == "" {
		return errors.New("user id is required")
	}
	id, err := uuid.Parse(itemID)
	if err != nil {
		return fmt.Errorf("invalid item id %q: %w", itemID, err)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return errors.New("payload must be valid JSON")
	}

	rec := &UserDataChangeEntity{
		UserID:  userID,
		ItemID:  id.String(),
		Payload: payload,
	}
	if err := s.repo.RecordUserDataChange(ctx, rec); err != nil {
		return err
	}

	s.logger.Debug("Recorded user-data change", "user_id", userID, "item_id", rec.ItemID)
	return nil
}

// Prune removes change rows last modified strictly before the given instant.
// Clients whose cursor predates the retention horizon will simply receive the
// full remaining history on their next delta.
func (s *SyncService) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}

	start := s.stageStart()
	removed, err := s.repo.Prune(ctx, CursorEpoch(before))
	s.observeStage(ctx, MetricsOpPrune, MetricsStageTotal, start, int(removed), err != nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}

	s.logger.Info("Retention prune complete", "before", CursorEpoch(before), "removed", removed)
	return removed, nil
}
