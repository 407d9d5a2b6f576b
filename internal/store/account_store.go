package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

const accountColumns = `id, name, provider, cloud_name, api_key, api_secret, storage_limit_mb, storage_used_mb,
	media_count, is_primary, is_active, priority_order, plan_type, notes, last_used_at, last_reconciled_at, created_at`

func scanAccount(row rowScanner) (*models.StorageAccount, error) {
	var a models.StorageAccount
	var notes sql.NullString
	var lastUsed, lastReconciled sql.NullTime
	err := row.Scan(&a.ID, &a.Name, &a.Provider, &a.CloudName, &a.APIKey, &a.APISecret, &a.StorageLimitMB,
		&a.StorageUsedMB, &a.MediaCount, &a.IsPrimary, &a.IsActive, &a.PriorityOrder, &a.PlanType, &notes,
		&lastUsed, &lastReconciled, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Notes = notes.String
	a.LastUsedAt = timePtr(lastUsed)
	a.LastReconciledAt = timePtr(lastReconciled)
	return &a, nil
}

// ListStorageAccounts returns every account in selection order.
func (s *Store) ListStorageAccounts(ctx context.Context) ([]*models.StorageAccount, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM storage_accounts ORDER BY is_primary DESC, priority_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*models.StorageAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) GetStorageAccount(ctx context.Context, id int64) (*models.StorageAccount, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM storage_accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage account %d: %w", id, ErrNotFound)
	}
	return a, err
}

// Defaults applied when an account is created without these fields.
const (
	DefaultStorageLimitMB = 25600
	DefaultPriorityOrder  = 1
	DefaultPlanType       = "free"
)

// CreateStorageAccount inserts an account. Zero limit, priority and plan take
// their defaults.
func (s *Store) CreateStorageAccount(ctx context.Context, in models.StorageAccountInput) (*models.StorageAccount, error) {
	if in.Provider == "" {
		in.Provider = models.ProviderCloudinary
	}
	if in.StorageLimitMB <= 0 {
		in.StorageLimitMB = DefaultStorageLimitMB
	}
	if in.PriorityOrder <= 0 {
		in.PriorityOrder = DefaultPriorityOrder
	}
	if in.PlanType == "" {
		in.PlanType = DefaultPlanType
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_accounts (name, provider, cloud_name, api_key, api_secret, storage_limit_mb,
			priority_order, plan_type, notes, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Provider, in.CloudName, in.APIKey, in.APISecret, in.StorageLimitMB,
		in.PriorityOrder, in.PlanType, nullString(in.Notes), active, nowUTC())
	if err != nil {
		return nil, conflict(err, "insert storage account")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetStorageAccount(ctx, id)
}

// UpdateStorageAccount writes editable fields. Empty or zero fields keep their
// stored value, notes excepted.
func (s *Store) UpdateStorageAccount(ctx context.Context, id int64, in models.StorageAccountInput) (*models.StorageAccount, error) {
	current, err := s.GetStorageAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Provider == "" {
		in.Provider = current.Provider
	}
	if in.CloudName == "" {
		in.CloudName = current.CloudName
	}
	if in.StorageLimitMB <= 0 {
		in.StorageLimitMB = current.StorageLimitMB
	}
	if in.PriorityOrder <= 0 {
		in.PriorityOrder = current.PriorityOrder
	}
	if in.PlanType == "" {
		in.PlanType = current.PlanType
	}
	if in.APIKey == "" {
		in.APIKey = current.APIKey
	}
	if in.APISecret == "" {
		in.APISecret = current.APISecret
	}
	active := current.IsActive
	if in.IsActive != nil {
		active = *in.IsActive
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE storage_accounts
		SET name = ?, provider = ?, cloud_name = ?, api_key = ?, api_secret = ?, storage_limit_mb = ?,
			priority_order = ?, plan_type = ?, notes = ?, is_active = ?
		WHERE id = ?`,
		in.Name, in.Provider, in.CloudName, in.APIKey, in.APISecret, in.StorageLimitMB,
		in.PriorityOrder, in.PlanType, nullString(in.Notes), active, id)
	if err != nil {
		return nil, conflict(err, fmt.Sprintf("update storage account %d", id))
	}
	return s.GetStorageAccount(ctx, id)
}

// ToggleStorageAccount flips is_active and returns the new state.
func (s *Store) ToggleStorageAccount(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		"UPDATE storage_accounts SET is_active = NOT is_active WHERE id = ? RETURNING is_active", id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("storage account %d: %w", id, ErrNotFound)
	}
	return active, err
}

// SetPrimaryStorageAccount makes id the only primary account. The old primary is
// unset in the same transaction.
func (s *Store) SetPrimaryStorageAccount(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE storage_accounts SET is_primary = 0 WHERE is_primary = 1 AND id != ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE storage_accounts SET is_primary = 1 WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectOne(res, "storage account", id)
	})
}

// AddStorageUsage increments the cached usage estimate after an upload.
func (s *Store) AddStorageUsage(ctx context.Context, id int64, mb float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE storage_accounts
		SET storage_used_mb = storage_used_mb + ?, media_count = media_count + 1, last_used_at = ?
		WHERE id = ?`, mb, nowUTC(), id)
	if err != nil {
		return err
	}
	return expectOne(res, "storage account", id)
}

// DeprioritizeStorageAccount pushes an account back in the selection order.
func (s *Store) DeprioritizeStorageAccount(ctx context.Context, id int64, by int) error {
	res, err := s.db.ExecContext(ctx, "UPDATE storage_accounts SET priority_order = priority_order + ? WHERE id = ?", by, id)
	if err != nil {
		return err
	}
	return expectOne(res, "storage account", id)
}

// MarkStorageAccountFull raises the cached usage to the limit so selection
// skips the account until the next reconciliation reports real numbers.
func (s *Store) MarkStorageAccountFull(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE storage_accounts SET storage_used_mb = MAX(storage_used_mb, storage_limit_mb) WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res, "storage account", id)
}

// ReconcileStorageUsage overwrites cached counters with provider-reported values.
// A non-positive limit leaves the stored limit unchanged.
func (s *Store) ReconcileStorageUsage(ctx context.Context, id int64, usedMB, limitMB float64, mediaCount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE storage_accounts
		SET storage_used_mb = ?,
			storage_limit_mb = CASE WHEN ? > 0 THEN ? ELSE storage_limit_mb END,
			media_count = ?, last_reconciled_at = ?
		WHERE id = ?`, usedMB, limitMB, limitMB, mediaCount, nowUTC(), id)
	if err != nil {
		return err
	}
	return expectOne(res, "storage account", id)
}

// LogStorageUsage appends a usage log row.
func (s *Store) LogStorageUsage(ctx context.Context, entry models.UsageLog) error {
	var mangaID, chapterID sql.NullInt64
	if entry.MangaID != nil {
		mangaID = sql.NullInt64{Int64: *entry.MangaID, Valid: true}
	}
	if entry.ChapterID != nil {
		chapterID = sql.NullInt64{Int64: *entry.ChapterID, Valid: true}
	}
	count := entry.ResourceCount
	if count == 0 {
		count = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_usage_logs (account_id, operation_type, resource_count, data_size_mb, manga_id, chapter_id, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AccountID, entry.OperationType, count, entry.DataSizeMB, mangaID, chapterID,
		entry.Success, nullString(entry.ErrorMessage), nowUTC())
	return err
}

// GetStorageAccountStats summarizes usage logs of an account since the given time.
func (s *Store) GetStorageAccountStats(ctx context.Context, id int64, since time.Time) (*models.AccountStats, error) {
	account, err := s.GetStorageAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := &models.AccountStats{AccountID: id, UsagePercent: account.UsagePercent()}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN operation_type = 'upload' AND success = 1 THEN resource_count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN operation_type = 'upload' AND success = 1 THEN data_size_mb ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN operation_type = 'delete' AND success = 1 THEN resource_count ELSE 0 END), 0)
		FROM storage_usage_logs WHERE account_id = ? AND created_at >= ?`, id, since.UTC()).Scan(
		&stats.UploadsLast30d, &stats.FailedLast30d, &stats.UploadedMBLast30d, &stats.DeletesLast30d)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
