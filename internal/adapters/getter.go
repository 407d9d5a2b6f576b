package adapters

import "context"

// Getter downloads adapter documents. *fetcher.Fetcher satisfies it.
type Getter interface {
	GetBody(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}
