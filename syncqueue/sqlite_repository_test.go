package syncqueue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemoryRepo(t *testing.T) *SQLiteChangeRepository {
	t.Helper()
	repo, err := NewSQLiteChangeRepository(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLite_ItemChangesFilteredByCursorAndCategory(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "item1", Category: CategoryAdded, LastModified: 100}))
	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "item2", Category: CategoryAdded, LastModified: 300}))
	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "item3", Category: CategoryRemoved, LastModified: 300}))
	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u2", ItemID: "item4", Category: CategoryAdded, LastModified: 300}))

	added, err := repo.ItemChanges(ctx, "u1", 200, CategoryAdded)
	require.NoError(t, err)
	require.Equal(t, []string{"item2"}, added)

	// Boundary rows (last_modified == since) are included
	added, err = repo.ItemChanges(ctx, "u1", 300, CategoryAdded)
	require.NoError(t, err)
	require.Equal(t, []string{"item2"}, added)

	removed, err := repo.ItemChanges(ctx, "u1", 0, CategoryRemoved)
	require.NoError(t, err)
	require.Equal(t, []string{"item3"}, removed)

	updated, err := repo.ItemChanges(ctx, "u1", 0, CategoryUpdated)
	require.NoError(t, err)
	require.Empty(t, updated)
}

func TestSQLite_RecordItemChangeUpserts(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "item1", Category: CategoryUpdated, LastModified: 100}))
	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "item1", Category: CategoryUpdated, LastModified: 500}))

	// One row per (user, item, category): invisible below the new watermark,
	// visible once at or above it
	items, err := repo.ItemChanges(ctx, "u1", 600, CategoryUpdated)
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = repo.ItemChanges(ctx, "u1", 200, CategoryUpdated)
	require.NoError(t, err)
	require.Equal(t, []string{"item1"}, items)
}

func TestSQLite_UserDataUpsertKeepsLatestPayload(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordUserDataChange(ctx, &UserDataChangeEntity{
		UserID: "u1", ItemID: "item1", Payload: json.RawMessage(`{"PlayCount":1}`), LastModified: 100}))
	require.NoError(t, repo.RecordUserDataChange(ctx, &UserDataChangeEntity{
		UserID: "u1", ItemID: "item1", Payload: json.RawMessage(`{"PlayCount":2}`), LastModified: 200}))

	entries, err := repo.UserDataChanges(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "item1", entries[0].ItemID)
	require.JSONEq(t, `{"PlayCount":2}`, string(entries[0].Payload))
}

func TestSQLite_UserDataEmissionOrder(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	for i, item := range []string{"a", "b", "c"} {
		require.NoError(t, repo.RecordUserDataChange(ctx, &UserDataChangeEntity{
			UserID: "u1", ItemID: item, Payload: json.RawMessage(`{}`), LastModified: int64(100 + i)}))
	}

	entries, err := repo.UserDataChanges(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].ItemID)
	require.Equal(t, "b", entries[1].ItemID)
	require.Equal(t, "c", entries[2].ItemID)
}

func TestSQLite_Prune(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "old", Category: CategoryAdded, LastModified: 100}))
	require.NoError(t, repo.RecordItemChange(ctx, &ItemChangeEntity{
		UserID: "u1", ItemID: "new", Category: CategoryAdded, LastModified: 300}))
	require.NoError(t, repo.RecordUserDataChange(ctx, &UserDataChangeEntity{
		UserID: "u1", ItemID: "old", Payload: json.RawMessage(`{}`), LastModified: 100}))

	removed, err := repo.Prune(ctx, 300)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	// The boundary row survives: prune removes strictly older rows only
	items, err := repo.ItemChanges(ctx, "u1", 0, CategoryAdded)
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, items)

	entries, err := repo.UserDataChanges(ctx, "u1", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSQLite_ServiceEndToEnd(t *testing.T) {
	repo := newMemoryRepo(t)
	svc, err := NewSyncService(repo, &ServiceConfig{AppName: "sqlite-test"}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	itemID := "9f4b5e6a-1111-2222-3333-444455556666"
	require.NoError(t, svc.RecordItemChange(ctx, "u1", itemID, CategoryAdded))
	require.NoError(t, svc.RecordUserData(ctx, "u1", itemID, json.RawMessage(`{"IsFavorite":true}`)))

	cursor, err := ParseCursor("")
	require.NoError(t, err)
	info, err := svc.Delta(ctx, "u1", cursor)
	require.NoError(t, err)
	require.Equal(t, []string{itemID}, info.ItemsAdded)
	require.Len(t, info.UserDataChanged, 1)
	require.True(t, info.UserDataChanged[0].IsFavorite)
	require.Equal(t, itemID, info.UserDataChanged[0].ItemID)
}
