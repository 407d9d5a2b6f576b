package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	cldconfig "github.com/cloudinary/cloudinary-go/v2/config"
)

const (
	defaultStorageLimitBytes = 25 << 30
	// maxPrefixPasses bounds DeletePrefix when the admin API keeps answering partial.
	maxPrefixPasses = 20
)

type CloudinaryCredentials struct {
	// BaseURL replaces the SDK's upload prefix (https://api.cloudinary.com).
	BaseURL   string
	CloudName string
	APIKey    string
	APISecret string
}

// Cloudinary adapts the Cloudinary SDK to Provider. Every call records the
// HTTP status it got so failures can be classified.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(creds CloudinaryCredentials, timeout time.Duration) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(creds.CloudName, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary account %q: %w", creds.CloudName, err)
	}
	if base := strings.TrimRight(creds.BaseURL, "/"); base != "" {
		for _, conf := range []*cldconfig.Configuration{&cld.Config, &cld.Upload.Config, &cld.Admin.Config} {
			conf.API.UploadPrefix = base
		}
	}
	client := http.Client{Timeout: timeout, Transport: statusRecorder{next: http.DefaultTransport}}
	cld.Upload.Client = client
	cld.Admin.Client = client
	return &Cloudinary{cld: cld}, nil
}

type statusKey struct{}

// statusRecorder writes each response status into the slot carried by the
// request context.
type statusRecorder struct {
	next http.RoundTripper
}

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if resp != nil {
		if slot, ok := req.Context().Value(statusKey{}).(*int); ok {
			*slot = resp.StatusCode
		}
	}
	return resp, err
}

func withStatus(ctx context.Context) (context.Context, *int) {
	slot := new(int)
	return context.WithValue(ctx, statusKey{}, slot), slot
}

// providerError turns an SDK outcome into a *ProviderError, or nil on success.
func providerError(ctx context.Context, status int, err error, message string) error {
	if err == nil && message == "" && status < 300 {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("cloudinary: %w", ctxErr)
	}
	if message == "" && err != nil {
		message = err.Error()
	}
	if status == 0 && err != nil {
		return &ProviderError{Kind: KindTransient, Message: message}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &ProviderError{Kind: ClassifyResponse(status, message), StatusCode: status, Message: message}
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	callCtx, status := withStatus(ctx)
	res, err := c.cld.Upload.Upload(callCtx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:  publicID,
		Overwrite: api.Bool(true),
	})
	var apiErr api.ErrorResp
	if res != nil {
		apiErr = res.Error
	}
	if err := providerError(ctx, *status, err, apiErr.Message); err != nil {
		return nil, err
	}

	result := &UploadResult{URL: res.SecureURL, PublicID: res.PublicID, Bytes: int64(res.Bytes)}
	if result.URL == "" {
		result.URL = res.URL
	}
	if result.Bytes == 0 {
		result.Bytes = int64(len(data))
	}
	return result, nil
}

func (c *Cloudinary) Destroy(ctx context.Context, publicID string) error {
	callCtx, status := withStatus(ctx)
	res, err := c.cld.Upload.Destroy(callCtx, uploader.DestroyParams{
		PublicID:   publicID,
		Invalidate: api.Bool(true),
	})
	var apiErr api.ErrorResp
	if res != nil {
		apiErr = res.Error
	}
	if err := providerError(ctx, *status, err, apiErr.Message); err != nil {
		return err
	}
	if res.Result != "ok" && res.Result != "not found" {
		return &ProviderError{Kind: KindPermanent, StatusCode: *status, Message: "destroy returned " + res.Result}
	}
	return nil
}

func (c *Cloudinary) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n := 0
	for pass := 0; pass < maxPrefixPasses; pass++ {
		callCtx, status := withStatus(ctx)
		res, err := c.cld.Admin.DeleteAssetsByPrefix(callCtx, admin.DeleteAssetsByPrefixParams{
			Prefix: []string{prefix},
		})
		var apiErr api.ErrorResp
		if res != nil {
			apiErr = res.Error
		}
		if err := providerError(ctx, *status, err, apiErr.Message); err != nil {
			return n, err
		}
		deleted := 0
		for _, state := range res.Deleted {
			if state == "deleted" {
				deleted++
			}
		}
		n += deleted
		if !res.Partial || deleted == 0 {
			break
		}
	}
	return n, nil
}

func (c *Cloudinary) Usage(ctx context.Context) (*Usage, error) {
	callCtx, status := withStatus(ctx)
	res, err := c.cld.Admin.Usage(callCtx, admin.UsageParams{})
	var apiErr api.ErrorResp
	if res != nil {
		apiErr = res.Error
	}
	if err := providerError(ctx, *status, err, apiErr.Message); err != nil {
		return nil, err
	}

	limit := int64(res.Storage.Limit)
	if limit == 0 {
		limit = defaultStorageLimitBytes
	}
	return &Usage{
		UsedMB:     bytesToMB(int64(res.Storage.Usage)),
		LimitMB:    bytesToMB(limit),
		MediaCount: int64(res.Resources),
	}, nil
}

func bytesToMB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
