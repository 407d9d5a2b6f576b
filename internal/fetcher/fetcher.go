// Package fetcher performs single-attempt HTTP downloads of page images and
// adapter documents, paced per host.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/config"
	"golang.org/x/time/rate"
)

var ErrFetchFailed = errors.New("fetch failed")

// StatusError is returned, wrapped in ErrFetchFailed, for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

type Image struct {
	Data        []byte
	ContentType string
	// Format is the short image type: jpeg, png, gif or webp.
	Format string
}

type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:           config.Seconds(cfg.Fetcher.Timeout),
		UserAgent:         cfg.Fetcher.UserAgent,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Burst:             cfg.Fetcher.Burst,
		MaxBodyBytes:      cfg.Fetcher.MaxImageBytes,
	}
}

type Fetcher struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if f.opts.RequestsPerSecond > 0 {
			limit = rate.Limit(f.opts.RequestsPerSecond)
		}
		l = rate.NewLimiter(limit, f.opts.Burst)
		f.limiters[host] = l
	}
	return l
}

// imageAccept lists only formats formatOf can decode.
const imageAccept = "image/webp,image/png,image/jpeg,image/gif;q=0.9,*/*;q=0.5"

// Fetch downloads one image. It makes exactly one attempt.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Image, error) {
	body, contentType, err := f.do(ctx, rawURL, imageAccept, headers)
	if err != nil {
		return nil, err
	}
	format := formatOf(contentType)
	if format == "" {
		contentType = http.DetectContentType(body)
		format = formatOf(contentType)
	}
	if format == "" {
		return nil, fmt.Errorf("%w: %s is not an image (%s)", ErrFetchFailed, rawURL, contentType)
	}
	return &Image{Data: body, ContentType: contentType, Format: format}, nil
}

// GetBody downloads an HTML or JSON document for an adapter.
func (f *Fetcher) GetBody(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	body, _, err := f.do(ctx, rawURL, "text/html,application/json;q=0.9,*/*;q=0.8", headers)
	return body, err
}

func (f *Fetcher) do(ctx context.Context, rawURL, accept string, headers map[string]string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("%w: invalid url %q", ErrFetchFailed, rawURL)
	}
	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", accept)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("%w: %w", ErrFetchFailed, &StatusError{StatusCode: resp.StatusCode, URL: rawURL})
	}

	reader := io.Reader(resp.Body)
	if f.opts.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %v", ErrFetchFailed, rawURL, err)
	}
	if f.opts.MaxBodyBytes > 0 && int64(buf.Len()) > f.opts.MaxBodyBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrFetchFailed, rawURL, f.opts.MaxBodyBytes)
	}
	return buf.Bytes(), resp.Header.Get("Content-Type"), nil
}

func formatOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	}
	return ""
}
