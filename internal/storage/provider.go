package storage

import (
	"context"
	"fmt"

	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

type UploadResult struct {
	URL      string
	PublicID string
	Bytes    int64
}

// Usage is a provider's ground-truth view of an account.
type Usage struct {
	UsedMB     float64
	LimitMB    float64
	MediaCount int64
}

// Provider talks to one storage account.
type Provider interface {
	Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error)
	Destroy(ctx context.Context, publicID string) error
	// DeletePrefix removes every resource under prefix and returns how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Usage(ctx context.Context) (*Usage, error)
}

// Factory builds the Provider for an account.
type Factory func(account *models.StorageAccount) (Provider, error)

// NewFactory returns the Factory used in production.
func NewFactory(cfg *config.Config) Factory {
	timeout := config.Seconds(cfg.Storage.UploadTimeout)
	return func(account *models.StorageAccount) (Provider, error) {
		switch account.Provider {
		case models.ProviderCloudinary, "":
			return NewCloudinary(CloudinaryCredentials{
				BaseURL:   cfg.Storage.APIBaseURL,
				CloudName: account.CloudName,
				APIKey:    account.APIKey,
				APISecret: account.APISecret,
			}, timeout)
		case models.ProviderLocal:
			return NewLocal(cfg.Storage.LocalPath, cfg.Storage.LocalBaseURL, account.StorageLimitMB), nil
		}
		return nil, fmt.Errorf("unknown storage provider %q", account.Provider)
	}
}
