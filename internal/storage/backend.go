// Package storage persists page images across a pool of storage accounts,
// failing over between them as they fill up.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

// deprioritizeBy is added to priority_order of an account that hit its quota.
const deprioritizeBy = 1000

// AccountRepository is the slice of the store the backend needs.
type AccountRepository interface {
	ListStorageAccounts(ctx context.Context) ([]*models.StorageAccount, error)
	AddStorageUsage(ctx context.Context, id int64, mb float64) error
	DeprioritizeStorageAccount(ctx context.Context, id int64, by int) error
	MarkStorageAccountFull(ctx context.Context, id int64) error
	ReconcileStorageUsage(ctx context.Context, id int64, usedMB, limitMB float64, mediaCount int64) error
	LogStorageUsage(ctx context.Context, entry models.UsageLog) error
}

type Options struct {
	UploadRetries int
	RetryDelay    time.Duration
	UploadTimeout time.Duration
	Folder        string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UploadRetries: cfg.Storage.UploadRetries,
		RetryDelay:    config.Seconds(cfg.Storage.RetryDelay),
		UploadTimeout: config.Seconds(cfg.Storage.UploadTimeout),
		Folder:        cfg.Storage.Folder,
	}
}

// Target identifies where a page belongs.
type Target struct {
	MangaID    int64
	ChapterID  int64
	PageNumber int
}

type StoredImage struct {
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	AccountID int64  `json:"account_id"`
	Bytes     int64  `json:"bytes"`
}

type Backend struct {
	repo    AccountRepository
	factory Factory
	opts    Options
}

func NewBackend(repo AccountRepository, factory Factory, opts Options) *Backend {
	if opts.UploadRetries <= 0 {
		opts.UploadRetries = 1
	}
	return &Backend{repo: repo, factory: factory, opts: opts}
}

// PublicID returns the provider key of a page.
func (b *Backend) PublicID(t Target) string {
	return fmt.Sprintf("%s/page_%03d", b.ChapterPrefix(t.MangaID, t.ChapterID), t.PageNumber)
}

// ChapterPrefix is the folder holding every page of a chapter.
func (b *Backend) ChapterPrefix(mangaID, chapterID int64) string {
	return fmt.Sprintf("%s/chapter_%d", b.MangaPrefix(mangaID), chapterID)
}

// MangaPrefix is the folder holding every chapter of a manga.
func (b *Backend) MangaPrefix(mangaID int64) string {
	return fmt.Sprintf("%s/manga_%d", b.opts.Folder, mangaID)
}

// SelectAccount picks the account for the next upload, skipping excluded ids.
// Order of preference: a usable primary, then the usable account with the
// lowest priority_order, then (degraded mode) the active account with the
// lowest usage. It returns nil when no active account remains.
func SelectAccount(accounts []*models.StorageAccount, excluded map[int64]bool) *models.StorageAccount {
	var candidates []*models.StorageAccount
	for _, a := range accounts {
		if a.IsActive && !excluded[a.ID] {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, a := range candidates {
		if a.IsPrimary && a.Usable() {
			return a
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].PriorityOrder != candidates[j].PriorityOrder {
			return candidates[i].PriorityOrder < candidates[j].PriorityOrder
		}
		return candidates[i].ID < candidates[j].ID
	})
	for _, a := range candidates {
		if a.Usable() {
			return a
		}
	}

	best := candidates[0]
	for _, a := range candidates[1:] {
		if a.UsagePercent() < best.UsagePercent() {
			best = a
		}
	}
	return best
}

// Store uploads one page. Transient errors are retried on the same account;
// a quota error moves to the next account once.
func (b *Backend) Store(ctx context.Context, data []byte, t Target) (*StoredImage, error) {
	publicID := b.PublicID(t)
	excluded := make(map[int64]bool)
	var lastErr error

	for hop := 0; hop < 2; hop++ {
		accounts, err := b.repo.ListStorageAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing storage accounts: %w", err)
		}
		account := SelectAccount(accounts, excluded)
		if account == nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrNoStorageAvailable, lastErr)
			}
			return nil, ErrNoStorageAvailable
		}
		if !account.Usable() {
			log.Printf("Storage: all accounts near capacity, using %s (%.1f%% full)", account.Name, account.UsagePercent())
		}

		res, err := b.uploadWithRetry(ctx, account, data, publicID)
		if err == nil {
			b.recordUpload(ctx, account, res, t)
			if account.IsNearLimit() {
				log.Printf("Storage: account %s is %.1f%% full, consider adding more accounts", account.Name, account.UsagePercent())
			}
			return &StoredImage{URL: res.URL, PublicID: res.PublicID, AccountID: account.ID, Bytes: res.Bytes}, nil
		}

		b.logUsage(ctx, models.UsageLog{
			AccountID: account.ID, OperationType: models.OpUpload, DataSizeMB: bytesToMB(int64(len(data))),
			MangaID: &t.MangaID, ChapterID: &t.ChapterID, ErrorMessage: err.Error(),
		})
		if !errors.Is(err, ErrQuotaExceeded) {
			return nil, err
		}

		log.Printf("Storage: account %s is over quota, failing over: %v", account.Name, err)
		if err := b.repo.DeprioritizeStorageAccount(ctx, account.ID, deprioritizeBy); err != nil {
			log.Printf("Storage: failed to deprioritize account %d: %v", account.ID, err)
		}
		if err := b.repo.MarkStorageAccountFull(ctx, account.ID); err != nil {
			log.Printf("Storage: failed to mark account %d full: %v", account.ID, err)
		}
		excluded[account.ID] = true
		lastErr = err
	}
	return nil, lastErr
}

func (b *Backend) uploadWithRetry(ctx context.Context, account *models.StorageAccount, data []byte, publicID string) (*UploadResult, error) {
	provider, err := b.factory(account)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= b.opts.UploadRetries; attempt++ {
		res, err := b.uploadOnce(ctx, provider, data, publicID)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if kindOf(err) != KindTransient {
			return nil, err
		}
		if attempt < b.opts.UploadRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.opts.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrTransient, b.opts.UploadRetries, lastErr)
}

func (b *Backend) uploadOnce(ctx context.Context, provider Provider, data []byte, publicID string) (*UploadResult, error) {
	if b.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.UploadTimeout)
		defer cancel()
	}
	return provider.Upload(ctx, data, publicID)
}

func (b *Backend) recordUpload(ctx context.Context, account *models.StorageAccount, res *UploadResult, t Target) {
	mb := bytesToMB(res.Bytes)
	if err := b.repo.AddStorageUsage(ctx, account.ID, mb); err != nil {
		log.Printf("Storage: failed to update usage of account %d: %v", account.ID, err)
	}
	b.logUsage(ctx, models.UsageLog{
		AccountID: account.ID, OperationType: models.OpUpload, DataSizeMB: mb,
		MangaID: &t.MangaID, ChapterID: &t.ChapterID, Success: true,
	})
}

func (b *Backend) logUsage(ctx context.Context, entry models.UsageLog) {
	if err := b.repo.LogStorageUsage(ctx, entry); err != nil {
		log.Printf("Storage: failed to write usage log: %v", err)
	}
}
