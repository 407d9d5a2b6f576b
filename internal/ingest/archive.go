// Package ingest turns local chapter files (comic archives and PDFs) into
// queue items and page images.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/mholt/archives"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

// Page is one image read from a local chapter file.
type Page struct {
	Name string
	Data []byte
}

var archiveExts = map[string]bool{
	".cbz": true, ".zip": true,
	".cbr": true, ".rar": true,
	".cb7": true, ".7z": true,
	".cbt": true, ".tar": true,
}

// IsSupported reports whether name has an extension ExtractPages can read.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pdf" || archiveExts[ext]
}

func isImageFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// ExtractPages reads every page of an archive or PDF in reading order.
func ExtractPages(ctx context.Context, filePath string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch {
	case ext == ".pdf":
		return renderPDF(ctx, filePath)
	case archiveExts[ext]:
		return extractArchive(ctx, filePath)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(filePath))
}

func extractArchive(ctx context.Context, filePath string) ([]Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, filepath.Base(filePath), f)
	if err != nil {
		return nil, fmt.Errorf("identify %s: %w", filepath.Base(filePath), err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an archive", ErrUnsupportedFile, filepath.Base(filePath))
	}

	byName := make(map[string][]byte)
	err = extractor.Extract(ctx, stream, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() || !isImageFile(info.NameInArchive) || isHidden(info.NameInArchive) {
			return nil
		}
		rc, err := info.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read %s: %w", info.NameInArchive, err)
		}
		byName[info.NameInArchive] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(filePath), err)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	util.SortPageNames(names)

	pages := make([]Page, len(names))
	for i, name := range names {
		pages[i] = Page{Name: name, Data: byName[name]}
	}
	return pages, nil
}

// isHidden skips macOS resource forks and dotfiles that some tools add.
func isHidden(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/")
}

func renderPDF(ctx context.Context, filePath string) ([]Page, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filepath.Base(filePath), err)
	}
	defer doc.Close()

	pages := make([]Page, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("render pdf page %d: %w", n+1, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode pdf page %d: %w", n+1, err)
		}
		pages = append(pages, Page{Name: fmt.Sprintf("page_%03d.jpg", n+1), Data: buf.Bytes()})
	}
	return pages, nil
}
