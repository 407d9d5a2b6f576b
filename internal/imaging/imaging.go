// Package imaging normalizes scraped page images before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/nfnt/resize"
	"github.com/vrsandeep/mango-scraper/internal/config"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var ErrLowQuality = errors.New("image below minimum dimensions")

type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// MinWidth and MinHeight are only enforced when CheckQuality is set.
	MinWidth     int
	MinHeight    int
	CheckQuality bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxWidth:  cfg.Imaging.MaxWidth,
		MaxHeight: cfg.Imaging.MaxHeight,
		Quality:   cfg.Imaging.Quality,
		MinWidth:  cfg.Imaging.MinWidth,
		MinHeight: cfg.Imaging.MinHeight,
	}
}

type Result struct {
	Data   []byte
	Width  int
	Height int
	// SourceFormat is what the input decoded as.
	SourceFormat string
}

// Normalize decodes data, shrinks it to fit within the configured bounds and
// re-encodes it as JPEG. Images are never enlarged.
func Normalize(data []byte, opts Options) (*Result, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if opts.CheckQuality && (b.Dx() < opts.MinWidth || b.Dy() < opts.MinHeight) {
		return nil, fmt.Errorf("%w: %dx%d, need at least %dx%d", ErrLowQuality, b.Dx(), b.Dy(), opts.MinWidth, opts.MinHeight)
	}

	if opts.MaxWidth > 0 && opts.MaxHeight > 0 && (b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight) {
		img = resize.Thumbnail(uint(opts.MaxWidth), uint(opts.MaxHeight), img, resize.Lanczos3)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	out := img.Bounds()
	return &Result{Data: buf.Bytes(), Width: out.Dx(), Height: out.Dy(), SourceFormat: format}, nil
}

// flatten composites img onto white, since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
