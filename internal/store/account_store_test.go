package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func newAccount(t *testing.T, s *store.Store, name string, priority int) *models.StorageAccount {
	t.Helper()
	a, err := s.CreateStorageAccount(context.Background(), models.StorageAccountInput{
		Name: name, Provider: models.ProviderCloudinary, CloudName: name, APIKey: "key", APISecret: "secret",
		StorageLimitMB: 1000, PriorityOrder: priority, PlanType: "free",
	})
	require.NoError(t, err)
	return a
}

func countPrimaries(t *testing.T, s *store.Store) int {
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM storage_accounts WHERE is_primary = 1").Scan(&n))
	return n
}

func TestStorageAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))
	a := newAccount(t, s, "alpha", 2)
	b := newAccount(t, s, "beta", 1)

	assert.True(t, a.IsActive)
	assert.Equal(t, "secret", a.APISecret)

	t.Run("single primary", func(t *testing.T) {
		require.NoError(t, s.SetPrimaryStorageAccount(ctx, a.ID))
		assert.Equal(t, 1, countPrimaries(t, s))
		require.NoError(t, s.SetPrimaryStorageAccount(ctx, b.ID))
		assert.Equal(t, 1, countPrimaries(t, s))

		got, _ := s.GetStorageAccount(ctx, b.ID)
		assert.True(t, got.IsPrimary)
		assert.ErrorIs(t, s.SetPrimaryStorageAccount(ctx, 999), store.ErrNotFound)
		assert.Equal(t, 1, countPrimaries(t, s), "a failed switch must keep the old primary")
	})

	t.Run("list orders primary first", func(t *testing.T) {
		accounts, err := s.ListStorageAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, b.ID, accounts[0].ID)
	})

	t.Run("update keeps secrets when blank", func(t *testing.T) {
		updated, err := s.UpdateStorageAccount(ctx, a.ID, models.StorageAccountInput{
			Name: "alpha-2", Provider: models.ProviderCloudinary, CloudName: "alpha", StorageLimitMB: 2000, PriorityOrder: 3, PlanType: "plus",
		})
		require.NoError(t, err)
		assert.Equal(t, "alpha-2", updated.Name)
		assert.Equal(t, "secret", updated.APISecret)
		assert.Equal(t, 2000.0, updated.StorageLimitMB)
	})

	t.Run("toggle", func(t *testing.T) {
		active, err := s.ToggleStorageAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, active)
		active, _ = s.ToggleStorageAccount(ctx, a.ID)
		assert.True(t, active)
	})

	t.Run("usage counters", func(t *testing.T) {
		require.NoError(t, s.AddStorageUsage(ctx, a.ID, 1.5))
		require.NoError(t, s.AddStorageUsage(ctx, a.ID, 0.5))
		got, _ := s.GetStorageAccount(ctx, a.ID)
		assert.InDelta(t, 2.0, got.StorageUsedMB, 0.0001)
		assert.Equal(t, int64(2), got.MediaCount)
		assert.NotNil(t, got.LastUsedAt)

		require.NoError(t, s.DeprioritizeStorageAccount(ctx, a.ID, 1000))
		got, _ = s.GetStorageAccount(ctx, a.ID)
		assert.Equal(t, 1003, got.PriorityOrder)

		require.NoError(t, s.ReconcileStorageUsage(ctx, a.ID, 512, 0, 40))
		got, _ = s.GetStorageAccount(ctx, a.ID)
		assert.Equal(t, 512.0, got.StorageUsedMB)
		assert.Equal(t, 2000.0, got.StorageLimitMB, "zero limit keeps the stored value")
		assert.Equal(t, int64(40), got.MediaCount)
		assert.NotNil(t, got.LastReconciledAt)

		require.NoError(t, s.MarkStorageAccountFull(ctx, a.ID))
		got, _ = s.GetStorageAccount(ctx, a.ID)
		assert.True(t, got.IsFull())
	})

	t.Run("stats", func(t *testing.T) {
		manga := int64(5)
		require.NoError(t, s.LogStorageUsage(ctx, models.UsageLog{AccountID: a.ID, OperationType: models.OpUpload, DataSizeMB: 1.25, MangaID: &manga, Success: true}))
		require.NoError(t, s.LogStorageUsage(ctx, models.UsageLog{AccountID: a.ID, OperationType: models.OpUpload, Success: false, ErrorMessage: "quota"}))
		require.NoError(t, s.LogStorageUsage(ctx, models.UsageLog{AccountID: a.ID, OperationType: models.OpDelete, ResourceCount: 4, Success: true}))

		stats, err := s.GetStorageAccountStats(ctx, a.ID, time.Now().AddDate(0, 0, -30))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.UploadsLast30d)
		assert.Equal(t, 1, stats.FailedLast30d)
		assert.Equal(t, 4, stats.DeletesLast30d)
		assert.InDelta(t, 1.25, stats.UploadedMBLast30d, 0.0001)
	})
}

func TestScrapingSettings(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))

	settings, err := s.GetScrapingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultScrapingSettings(), settings)

	settings.ScrapingEnabled = false
	settings.MaxConcurrentScrapes = 8
	require.NoError(t, s.UpdateScrapingSettings(ctx, settings))

	got, err := s.GetScrapingSettings(ctx)
	require.NoError(t, err)
	assert.False(t, got.ScrapingEnabled)
	assert.Equal(t, 8, got.MaxConcurrentScrapes)
}

func TestCreateStorageAccount_Defaults(t *testing.T) {
	ctx := context.Background()
	s := store.New(testutil.SetupTestDB(t))

	a, err := s.CreateStorageAccount(ctx, models.StorageAccountInput{
		Name: "bare", Provider: models.ProviderCloudinary, CloudName: "bare", APIKey: "k", APISecret: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(store.DefaultStorageLimitMB), a.StorageLimitMB)
	assert.Equal(t, store.DefaultPriorityOrder, a.PriorityOrder)
	assert.Equal(t, store.DefaultPlanType, a.PlanType)
	assert.Zero(t, a.UsagePercent())
	assert.True(t, a.Usable(), "a fresh account must be selectable")

	updated, err := s.UpdateStorageAccount(ctx, a.ID, models.StorageAccountInput{Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, models.ProviderCloudinary, updated.Provider)
	assert.Equal(t, "bare", updated.CloudName)
	assert.Equal(t, float64(store.DefaultStorageLimitMB), updated.StorageLimitMB)
	assert.Equal(t, store.DefaultPriorityOrder, updated.PriorityOrder)
	assert.Equal(t, store.DefaultPlanType, updated.PlanType)
	assert.Equal(t, "s", updated.APISecret)
}
