// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgWriteRetries = 3

// PGChangeRepository is the PostgreSQL-backed change-log store, suitable for
// multi-node deployments where several media-server instances feed one queue.
type PGChangeRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGChangeRepository initializes the change-log schema on the given pool and
// returns a repository bound to it. The pool's lifecycle stays with the caller.
func NewPGChangeRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PGChangeRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &PGChangeRepository{pool: pool, logger: logger}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return r.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize change-log schema: %w", err)
	}

	return r, nil
}

// initializeSchemaInTx creates the change-log tables within an existing transaction
func (r *PGChangeRepository) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema keeps queue tables apart from media-server tables
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS syncqueue`,

		// Item lifecycle change log, one row per (user, item, category).
		// last_modified is whole seconds since the Unix epoch: the repository
		// comparison key is this integer, never a timestamp column.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS syncqueue.item_change_log (
			id            BIGSERIAL PRIMARY KEY,
			user_id       TEXT     NOT NULL,
			item_id       TEXT     NOT NULL,
			category      SMALLINT NOT NULL CHECK (category IN (0, 1, 2)),
			last_modified BIGINT   NOT NULL,
			UNIQUE (user_id, item_id, category)
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS item_change_log_user_modified_idx
			ON syncqueue.item_change_log (user_id, last_modified)`,

		// User-data change log, one row per (user, item); the payload is the
		// serialized user-data record, decoded only at delta time
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS syncqueue.user_data_log (
			id            BIGSERIAL PRIMARY KEY,
			user_id       TEXT   NOT NULL,
			item_id       TEXT   NOT NULL,
			payload       JSON   NOT NULL,
			last_modified BIGINT NOT NULL,
			UNIQUE (user_id, item_id)
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS user_data_log_user_modified_idx
			ON syncqueue.user_data_log (user_id, last_modified)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// ItemChanges returns item ids for one lifecycle category at or after the cursor
func (r *PGChangeRepository) ItemChanges(ctx context.Context, userID string, since int64, category ChangeCategory) ([]string, error) {
	const q = `
SELECT item_id
FROM syncqueue.item_change_log
WHERE user_id = @user_id
  AND category = @category
  AND last_modified >= @since`

	rows, err := r.pool.Query(ctx, q, pgx.NamedArgs{
		"user_id":  userID,
		"category": int(category),
		"since":    since,
	})
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
func (r *PGChangeRepository) UserDataChanges(ctx context.Context, userID string, since int64) ([]UserDataEntry, error) {
	const q = `
SELECT item_id, payload
FROM syncqueue.user_data_log
WHERE user_id = @user_id
  AND last_modified >= @since
ORDER BY id`

	rows, err := r.pool.Query(ctx, q, pgx.NamedArgs{
		"user_id": userID,
		"since":   since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query user-data changes: %w", err)
	}
	defer rows.Close()

	entries := []UserDataEntry{}
	for rows.Next() {
		var e UserDataEntry
		if err := rows.Scan(&e.ItemID, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan user-data row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user-data rows: %w", err)
	}
	return entries, nil
}

// RecordItemChange upserts an item lifecycle change, advancing last_modified
// when the (user, item, category) row already exists
func (r *PGChangeRepository) RecordItemChange(ctx context.Context, rec *ItemChangeEntity) error {
	if rec.LastModified == 0 {
		rec.LastModified = time.Now().UTC().Unix()
	}

	const q = `
INSERT INTO syncqueue.item_change_log (user_id, item_id, category, last_modified)
VALUES (@user_id, @item_id, @category, @last_modified)
ON CONFLICT (user_id, item_id, category)
DO UPDATE SET last_modified = EXCLUDED.last_modified`

	return withPGRetry(ctx, pgWriteRetries, 50*time.Millisecond, func() error {
		_, err := r.pool.Exec(ctx, q, pgx.NamedArgs{
			"user_id":       rec.UserID,
			"item_id":       rec.ItemID,
			"category":      int(rec.Category),
			"last_modified": rec.LastModified,
		})
		if err != nil {
			return fmt.Errorf("failed to record item change: %w", err)
		}
		return nil
	})
}

// RecordUserDataChange upserts the user-data record for (user, item)
func (r *PGChangeRepository) RecordUserDataChange(ctx context.Context, rec *UserDataChangeEntity) error {
	if rec.LastModified == 0 {
		rec.LastModified = time.Now().UTC().Unix()
	}

	const q = `
INSERT INTO syncqueue.user_data_log (user_id, item_id, payload, last_modified)
VALUES (@user_id, @item_id, @payload, @last_modified)
ON CONFLICT (user_id, item_id)
DO UPDATE SET payload = EXCLUDED.payload, last_modified = EXCLUDED.last_modified`

	return withPGRetry(ctx, pgWriteRetries, 50*time.Millisecond, func() error {
		_, err := r.pool.Exec(ctx, q, pgx.NamedArgs{
			"user_id":       rec.UserID,
			"item_id":       rec.ItemID,
			"payload":       rec.Payload,
			"last_modified": rec.LastModified,
		})
		if err != nil {
			return fmt.Errorf("failed to record user-data change: %w", err)
		}
		return nil
	})
}

// Prune removes change rows strictly older than the epoch boundary
func (r *PGChangeRepository) Prune(ctx context.Context, before int64) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM syncqueue.item_change_log WHERE last_modified < @before`,
			pgx.NamedArgs{"before": before})
		if err != nil {
			return fmt.Errorf("failed to prune item changes: %w", err)
		}
		removed += tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`DELETE FROM syncqueue.user_data_log WHERE last_modified < @before`,
			pgx.NamedArgs{"before": before})
		if err != nil {
			return fmt.Errorf("failed to prune user-data changes: %w", err)
		}
		removed += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("Pruned change log", "before", before, "removed", removed)
	return removed, nil
}

// Close is a no-op; the caller owns the pool lifecycle
func (r *PGChangeRepository) Close() error {
	return nil
}
