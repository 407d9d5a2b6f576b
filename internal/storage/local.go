package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores images on disk under root and serves them from baseURL.
// It exists for development setups without a Cloudinary account.
type Local struct {
	root    string
	baseURL string
	limitMB float64
}

func NewLocal(root, baseURL string, limitMB float64) *Local {
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/"), limitMB: limitMB}
}

// path maps a public id to a file, refusing ids that escape root.
func (l *Local) path(publicID string) (string, error) {
	if strings.Contains(publicID, "..") {
		return "", &ProviderError{Kind: KindPermanent, Message: fmt.Sprintf("invalid public id %q", publicID)}
	}
	return filepath.Join(l.root, filepath.FromSlash(filepath.Clean("/"+publicID))), nil
}

func (l *Local) Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(publicID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, &ProviderError{Kind: KindPermanent, Message: err.Error()}
	}
	if err := os.WriteFile(p+".jpg", data, 0644); err != nil {
		return nil, &ProviderError{Kind: KindTransient, Message: err.Error()}
	}
	return &UploadResult{
		URL:      l.baseURL + "/" + strings.TrimPrefix(publicID, "/") + ".jpg",
		PublicID: publicID,
		Bytes:    int64(len(data)),
	}, nil
}

func (l *Local) Destroy(ctx context.Context, publicID string) error {
	p, err := l.path(publicID)
	if err != nil {
		return err
	}
	if err := os.Remove(p + ".jpg"); err != nil && !os.IsNotExist(err) {
		return &ProviderError{Kind: KindPermanent, Message: err.Error()}
	}
	return nil
}

func (l *Local) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	p, err := l.path(prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(p); err != nil {
		return 0, &ProviderError{Kind: KindPermanent, Message: err.Error()}
	}
	return n, nil
}

func (l *Local) Usage(ctx context.Context) (*Usage, error) {
	var total, count int64
	err := filepath.WalkDir(l.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		count++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Usage{UsedMB: bytesToMB(total), LimitMB: l.limitMB, MediaCount: count}, nil
}
