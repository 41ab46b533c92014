package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdwatch/regpulse/pkg/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), Config{
		DSN:          ":memory:",
		MaxOpenConns: 1, // in-memory sqlite needs a single connection
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func sampleUpdate(sourceID, fingerprint, title string) *domain.NormalizedUpdate {
	return &domain.NormalizedUpdate{
		ID:          domain.UpdateID(sourceID, fingerprint),
		SourceID:    sourceID,
		SourceName:  "FDA Recalls",
		Region:      "US",
		Authority:   "FDA",
		UpdateType:  "safety",
		Title:       title,
		Content:     "affected lots listed at https://example.com/" + fingerprint,
		Priority:    domain.PriorityCritical,
		Published:   time.Date(2023, 5, 10, 9, 30, 0, 0, time.UTC),
		Fingerprint: fingerprint,
		Metadata:    map[string]string{"link": "https://example.com/" + fingerprint},
	}
}

func TestUpdateRepository_CreateUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("first write creates", func(t *testing.T) {
		created, err := store.Updates.CreateUpdate(ctx, sampleUpdate("fda-recalls", "fp-1", "Recall of infusion pumps"))
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("same fingerprint is a no-op", func(t *testing.T) {
		created, err := store.Updates.CreateUpdate(ctx, sampleUpdate("fda-recalls", "fp-1", "Recall of infusion pumps"))
		require.NoError(t, err)
		assert.False(t, created)

		count, err := store.Updates.CountUpdates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("same fingerprint under another source creates", func(t *testing.T) {
		created, err := store.Updates.CreateUpdate(ctx, sampleUpdate("mhra-alerts", "fp-1", "Recall of infusion pumps"))
		require.NoError(t, err)
		assert.True(t, created)

		count, err := store.Updates.CountUpdates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestUpdateRepository_FingerprintExists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Updates.CreateUpdate(ctx, sampleUpdate("fda-recalls", "fp-1", "Recall of infusion pumps"))
	require.NoError(t, err)

	exists, err := store.Updates.FingerprintExists(ctx, "fda-recalls", "fp-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Updates.FingerprintExists(ctx, "fda-recalls", "fp-2")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.Updates.FingerprintExists(ctx, "mhra-alerts", "fp-1")
	require.NoError(t, err)
	assert.False(t, exists, "fingerprints scoped per source")
}

func TestUpdateRepository_ListUpdates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		upd := sampleUpdate("fda-recalls", fmt.Sprintf("fp-%d", i), fmt.Sprintf("Recall notice %d", i))
		upd.Published = base.Add(time.Duration(i) * time.Hour)
		created, err := store.Updates.CreateUpdate(ctx, upd)
		require.NoError(t, err)
		require.True(t, created)
	}

	t.Run("newest published first", func(t *testing.T) {
		updates, err := store.Updates.ListUpdates(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, updates, 5)
		assert.Equal(t, "Recall notice 4", updates[0].Title)
		assert.Equal(t, "Recall notice 0", updates[4].Title)
	})

	t.Run("limit and offset paginate", func(t *testing.T) {
		updates, err := store.Updates.ListUpdates(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, updates, 2)
		assert.Equal(t, "Recall notice 2", updates[0].Title)
		assert.Equal(t, "Recall notice 1", updates[1].Title)
	})

	t.Run("fields survive the round trip", func(t *testing.T) {
		updates, err := store.Updates.ListUpdates(ctx, 1, 4)
		require.NoError(t, err)
		require.Len(t, updates, 1)

		got := updates[0]
		assert.Equal(t, domain.UpdateID("fda-recalls", "fp-0"), got.ID)
		assert.Equal(t, "fda-recalls", got.SourceID)
		assert.Equal(t, "FDA", got.Authority)
		assert.Equal(t, "US", got.Region)
		assert.Equal(t, domain.PriorityCritical, got.Priority)
		assert.Equal(t, "safety", got.UpdateType)
		assert.Equal(t, "fp-0", got.Fingerprint)
		assert.Equal(t, map[string]string{"link": "https://example.com/fp-0"}, got.Metadata)
		assert.True(t, got.Published.Equal(base))
		assert.False(t, got.CreatedAt.IsZero())
	})
}

func TestUpdateRepository_ListRecentUpdates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		upd := sampleUpdate("fda-recalls", fmt.Sprintf("fp-%d", i), fmt.Sprintf("Recall notice %d", i))
		_, err := store.Updates.CreateUpdate(ctx, upd)
		require.NoError(t, err)
	}

	recent, err := store.Updates.ListRecentUpdates(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestUpdateRepository_CountUpdates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	count, err := store.Updates.CountUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.Updates.CreateUpdate(ctx, sampleUpdate("fda-recalls", "fp-1", "Recall of infusion pumps"))
	require.NoError(t, err)

	count, err = store.Updates.CountUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateRepository_NilMetadata(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	upd := sampleUpdate("fda-recalls", "fp-nil", "Recall without metadata")
	upd.Metadata = nil
	created, err := store.Updates.CreateUpdate(ctx, upd)
	require.NoError(t, err)
	require.True(t, created)

	updates, err := store.Updates.ListUpdates(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].Metadata)
}

func TestStore_Ping(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
