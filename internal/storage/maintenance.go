package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

type ReconcileResult struct {
	AccountID    int64   `json:"account_id"`
	Name         string  `json:"name"`
	UsedMB       float64 `json:"used_mb"`
	LimitMB      float64 `json:"limit_mb"`
	MediaCount   int64   `json:"media_count"`
	UsagePercent float64 `json:"usage_percent"`
	Error        string  `json:"error,omitempty"`
}

// Reconcile overwrites the cached usage of every active account with the
// provider's numbers. A failing account is reported and skipped.
func (b *Backend) Reconcile(ctx context.Context) ([]ReconcileResult, error) {
	accounts, err := b.repo.ListStorageAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing storage accounts: %w", err)
	}

	results := []ReconcileResult{}
	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		result := ReconcileResult{AccountID: account.ID, Name: account.Name}
		usage, err := b.accountUsage(ctx, account)
		if err == nil {
			err = b.repo.ReconcileStorageUsage(ctx, account.ID, usage.UsedMB, usage.LimitMB, usage.MediaCount)
		}
		if err != nil {
			log.Printf("Storage: reconcile of account %s failed: %v", account.Name, err)
			result.Error = err.Error()
		} else {
			result.UsedMB, result.LimitMB, result.MediaCount = usage.UsedMB, usage.LimitMB, usage.MediaCount
			if usage.LimitMB > 0 {
				result.UsagePercent = usage.UsedMB / usage.LimitMB * 100
			}
		}
		b.logUsage(ctx, models.UsageLog{
			AccountID: account.ID, OperationType: models.OpReconcile, ResourceCount: int(result.MediaCount),
			DataSizeMB: result.UsedMB, Success: err == nil, ErrorMessage: result.Error,
		})
		results = append(results, result)
	}
	return results, nil
}

func (b *Backend) accountUsage(ctx context.Context, account *models.StorageAccount) (*Usage, error) {
	provider, err := b.factory(account)
	if err != nil {
		return nil, err
	}
	return provider.Usage(ctx)
}

// DeleteChapterImages removes every stored page of a chapter from all active
// accounts. It returns the number of resources deleted.
func (b *Backend) DeleteChapterImages(ctx context.Context, mangaID, chapterID int64) (int, error) {
	return b.deletePrefix(ctx, b.ChapterPrefix(mangaID, chapterID)+"/", &mangaID, &chapterID)
}

// DeleteMangaImages removes every stored page of every chapter of a manga.
func (b *Backend) DeleteMangaImages(ctx context.Context, mangaID int64) (int, error) {
	return b.deletePrefix(ctx, b.MangaPrefix(mangaID)+"/", &mangaID, nil)
}

// deletePrefix runs DeletePrefix on each active account. The trailing slash
// of prefix keeps manga_1 from matching manga_10.
func (b *Backend) deletePrefix(ctx context.Context, prefix string, mangaID, chapterID *int64) (int, error) {
	accounts, err := b.repo.ListStorageAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing storage accounts: %w", err)
	}

	total := 0
	var errs []error
	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		provider, err := b.factory(account)
		if err == nil {
			var n int
			n, err = provider.DeletePrefix(ctx, prefix)
			total += n
			if err == nil && n > 0 {
				b.logUsage(ctx, models.UsageLog{
					AccountID: account.ID, OperationType: models.OpDelete, ResourceCount: n,
					MangaID: mangaID, ChapterID: chapterID, Success: true,
				})
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", account.Name, err))
			b.logUsage(ctx, models.UsageLog{
				AccountID: account.ID, OperationType: models.OpDelete,
				MangaID: mangaID, ChapterID: chapterID, ErrorMessage: err.Error(),
			})
		}
	}
	return total, errors.Join(errs...)
}

// Destroy deletes a single image from the account that holds it.
func (b *Backend) Destroy(ctx context.Context, accountID int64, publicID string) error {
	accounts, err := b.repo.ListStorageAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing storage accounts: %w", err)
	}
	for _, account := range accounts {
		if account.ID != accountID {
			continue
		}
		provider, err := b.factory(account)
		if err == nil {
			err = provider.Destroy(ctx, publicID)
		}
		entry := models.UsageLog{AccountID: account.ID, OperationType: models.OpDelete, Success: err == nil}
		if err != nil {
			entry.ErrorMessage = err.Error()
		}
		b.logUsage(ctx, entry)
		return err
	}
	return fmt.Errorf("storage account %d: %w", accountID, ErrNoStorageAvailable)
}
