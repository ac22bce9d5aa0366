package gorm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/scopelabs/scopeintel/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTicket(id, system string, opened time.Time) models.Ticket {
	return models.Ticket{
		ID:        id,
		System:    system,
		Service:   "ERP",
		Status:    "open",
		Requester: "alice",
		Title:     "invoice stuck",
		OpenedAt:  opened,
		Text:      "invoice stuck in posting queue",
	}
}

func TestUpsertAndListTickets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	tickets := []models.Ticket{
		sampleTicket("1", "erp", now.AddDate(0, 0, -2)),
		sampleTicket("2", "erp", now.AddDate(0, 0, -40)),
		sampleTicket("3", "crm", now),
	}
	require.NoError(t, store.UpsertTickets(ctx, tickets))

	got, err := store.ListTickets(ctx, "erp", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID, "oldest first")
	assert.Equal(t, "1", got[1].ID)
	assert.Equal(t, now.AddDate(0, 0, -2), got[1].OpenedAt)

	// Time window drops the 40-day-old ticket.
	recent, err := store.ListTickets(ctx, "erp", 30)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "1", recent[0].ID)
}

func TestUpsertTicketsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ticket := sampleTicket("1", "erp", time.Now())
	require.NoError(t, store.UpsertTickets(ctx, []models.Ticket{ticket}))

	ticket.Status = "resolved"
	require.NoError(t, store.UpsertTickets(ctx, []models.Ticket{ticket}))

	count, err := store.CountTickets(ctx, "erp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.ListTickets(ctx, "erp", 0)
	require.NoError(t, err)
	assert.Equal(t, "resolved", got[0].Status)
}

func TestListSystems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertTickets(ctx, []models.Ticket{
		sampleTicket("1", "erp", time.Now()),
		sampleTicket("2", "crm", time.Now()),
		sampleTicket("3", "crm", time.Now()),
	}))

	systems, err := store.ListSystems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"crm", "erp"}, systems)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vectors := map[string][]float64{
		"key-a": {0.1, 0.2, 0.3},
		"key-b": {0.4, 0.5, 0.6},
	}
	require.NoError(t, store.PutEmbeddings(ctx, "text-embedding-3-small", vectors))

	got, err := store.GetEmbeddings(ctx, []string{"key-a", "key-b", "key-missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, vectors["key-a"], got["key-a"])
	assert.Equal(t, vectors["key-b"], got["key-b"])

	// Overwrite replaces the stale vector.
	require.NoError(t, store.PutEmbeddings(ctx, "text-embedding-3-small", map[string][]float64{
		"key-a": {9, 9},
	}))
	got, err = store.GetEmbeddings(ctx, []string{"key-a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9}, got["key-a"])
}

func TestSaveListGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := &models.AnalysisResult{
		Metadata: models.RunMetadata{
			System:       "erp",
			AnalyzedAt:   time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
			PeriodDays:   90,
			TotalTickets: 250,
			TotalGroups:  7,
			NoiseRate:    0.12,
		},
		Clusters: []*models.Group{
			{ID: 0, Title: "Invoice posting failures", Metrics: models.Metrics{Volume: 40}},
		},
	}

	id, err := store.SaveRun(ctx, result)
	require.NoError(t, err)
	require.NotZero(t, id)

	runs, err := store.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "erp", runs[0].System)
	assert.Equal(t, 250, runs[0].TotalTickets)
	assert.Equal(t, result.Metadata.AnalyzedAt, runs[0].AnalyzedAt)

	got, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, result.Metadata.System, got.Metadata.System)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, "Invoice posting failures", got.Clusters[0].Title)

	filtered, err := store.ListRuns(ctx, "crm", 10)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
