// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteChangeRepository is the embedded change-log store for single-node
// deployments, where the queue lives next to the media server the way the
// original plugin embedded its database.
type SQLiteChangeRepository struct {
	db     *sql.DB
	logger *slog.Logger
	// Serialize writes to avoid SQLITE_BUSY under concurrent ingest
	writeMu sync.Mutex
}

// NewSQLiteChangeRepository opens (or creates) the database at path and
// initializes the change-log tables. Use ":memory:" for an ephemeral store.
func NewSQLiteChangeRepository(ctx context.Context, path string, logger *slog.Logger) (*SQLiteChangeRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection sidesteps table-lock contention between readers and
	// the serialized writer.
	db.SetMaxOpenConns(1)

	r := &SQLiteChangeRepository{db: db, logger: logger}
	if err := r.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteChangeRepository) initializeSchema(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS item_change_log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT    NOT NULL,
			item_id       TEXT    NOT NULL,
			category      INTEGER NOT NULL CHECK (category IN (0, 1, 2)),
			last_modified INTEGER NOT NULL,
			UNIQUE (user_id, item_id, category)
		)`,
		`CREATE INDEX IF NOT EXISTS item_change_log_user_modified_idx
			ON item_change_log (user_id, last_modified)`,
		`CREATE TABLE IF NOT EXISTS user_data_log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT    NOT NULL,
			item_id       TEXT    NOT NULL,
			payload       TEXT    NOT NULL,
			last_modified INTEGER NOT NULL,
			UNIQUE (user_id, item_id)
		)`,
		`CREATE INDEX IF NOT EXISTS user_data_log_user_modified_idx
			ON user_data_log (user_id, last_modified)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return nil
}

// ItemChanges returns item ids for one lifecycle category at or after the cursor
func (r *SQLiteChangeRepository) ItemChanges(ctx context.Context, userID string, since int64, category ChangeCategory) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id FROM item_change_log
		 WHERE user_id = ? AND category = ? AND last_modified >= ?`,
		userID, int(category), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s items: %w", category, err)
	}
	defer rows.Close()

	items := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s item row: %w", category, err)
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s item rows: %w", category, err)
	}
	return items, nil
}

// UserDataChanges returns raw user-data payloads changed at or after the cursor,
// in insertion order
func (r *SQLiteChangeRepository) UserDataChanges(ctx context.Context, userID string, since int64) ([]UserDataEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id, payload FROM user_data_log
		 WHERE user_id = ? AND last_modified >= ?
		 ORDER BY id`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query user-data changes: %w", err)
	}
	defer rows.Close()

	entries := []UserDataEntry{}
	for rows.Next() {
		var itemID string
		var payload []byte
		if err := rows.Scan(&itemID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan user-data row: %w", err)
		}
		entries = append(entries, UserDataEntry{ItemID: itemID, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user-data rows: %w", err)
	}
	return entries, nil
}

// RecordItemChange upserts an item lifecycle change
func (r *SQLiteChangeRepository) RecordItemChange(ctx context.Context, rec *ItemChangeEntity) error {
	if rec.LastModified == 0 {
		rec.LastModified = time.Now().UTC().Unix()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO item_change_log (user_id, item_id, category, last_modified)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, item_id, category)
		 DO UPDATE SET last_modified = excluded.last_modified`,
		rec.UserID, rec.ItemID, int(rec.Category), rec.LastModified)
	if err != nil {
		return fmt.Errorf("failed to record item change: %w", err)
	}
	return nil
}

// RecordUserDataChange upserts the user-data record for (user, item)
func (r *SQLiteChangeRepository) RecordUserDataChange(ctx context.Context, rec *UserDataChangeEntity) error {
	if rec.LastModified == 0 {
		rec.LastModified = time.Now().UTC().Unix()
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_data_log (user_id, item_id, payload, last_modified)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, item_id)
		 DO UPDATE SET payload = excluded.payload, last_modified = excluded.last_modified`,
		rec.UserID, rec.ItemID, string(rec.Payload), rec.LastModified)
	if err != nil {
		return fmt.Errorf("failed to record user-data change: %w", err)
	}
	return nil
}

// Prune removes change rows strictly older than the epoch boundary
func (r *SQLiteChangeRepository) Prune(ctx context.Context, before int64) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var removed int64
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM item_change_log WHERE last_modified < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune item changes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = r.db.ExecContext(ctx,
		`DELETE FROM user_data_log WHERE last_modified < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune user-data changes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	r.logger.Debug("Pruned change log", "before", before, "removed", removed)
	return removed, nil
}

// Close closes the underlying database
func (r *SQLiteChangeRepository) Close() error {
	return r.db.Close()
}
