package models

import "time"

const (
	ProviderCloudinary = "cloudinary"
	ProviderLocal      = "local"
)

// StorageAccount is one configured credential set for the storage backend.
type StorageAccount struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Provider         string     `json:"provider"`
	CloudName        string     `json:"cloud_name"`
	APIKey           string     `json:"-"`
	APISecret        string     `json:"-"`
	StorageLimitMB   float64    `json:"storage_limit_mb"`
	StorageUsedMB    float64    `json:"storage_used_mb"`
	MediaCount       int64      `json:"media_count"`
	IsPrimary        bool       `json:"is_primary"`
	IsActive         bool       `json:"is_active"`
	PriorityOrder    int        `json:"priority_order"`
	PlanType         string     `json:"plan_type"`
	Notes            string     `json:"notes,omitempty"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// UsagePercent returns used/limit as a percentage. An account without a limit is treated as full.
func (a *StorageAccount) UsagePercent() float64 {
	if a.StorageLimitMB <= 0 {
		return 100
	}
	return a.StorageUsedMB / a.StorageLimitMB * 100
}

func (a *StorageAccount) IsNearLimit() bool { return a.UsagePercent() > 90 }

func (a *StorageAccount) IsFull() bool { return a.UsagePercent() > 95 }

// Usable reports whether the account may receive uploads outside degraded mode.
func (a *StorageAccount) Usable() bool { return a.IsActive && !a.IsFull() }

// StorageAccountInput carries the admin-editable fields of an account.
type StorageAccountInput struct {
	Name           string  `json:"name"`
	Provider       string  `json:"provider"`
	CloudName      string  `json:"cloud_name"`
	APIKey         string  `json:"api_key"`
	APISecret      string  `json:"api_secret"`
	StorageLimitMB float64 `json:"storage_limit_mb"`
	PriorityOrder  int     `json:"priority_order"`
	PlanType       string  `json:"plan_type"`
	Notes          string  `json:"notes"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

type UsageOperation string

const (
	OpUpload    UsageOperation = "upload"
	OpDelete    UsageOperation = "delete"
	OpReconcile UsageOperation = "reconcile"
)

type UsageLog struct {
	ID            int64          `json:"id"`
	AccountID     int64          `json:"account_id"`
	OperationType UsageOperation `json:"operation_type"`
	ResourceCount int            `json:"resource_count"`
	DataSizeMB    float64        `json:"data_size_mb"`
	MangaID       *int64         `json:"manga_id,omitempty"`
	ChapterID     *int64         `json:"chapter_id,omitempty"`
	Success       bool           `json:"success"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AccountStats summarizes recent activity on one storage account.
type AccountStats struct {
	AccountID         int64   `json:"account_id"`
	UsagePercent      float64 `json:"usage_percent"`
	UploadsLast30d    int     `json:"uploads_last_30d"`
	FailedLast30d     int     `json:"failed_last_30d"`
	UploadedMBLast30d float64 `json:"uploaded_mb_last_30d"`
	DeletesLast30d    int     `json:"deletes_last_30d"`
}
