package testutil

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// TempPath returns a path named name inside a per-test temp directory.
func TempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// PNG encodes a solid w x h image. It is the stand-in for a scraped page.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

// CreateTestCBZ writes a CBZ archive into dir whose entries map names to contents.
func CreateTestCBZ(t *testing.T, dir, name string, pages map[string][]byte) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create temp cbz file: %v", err)
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for entry, data := range pages {
		w, err := zipWriter.Create(entry)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", entry, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to write entry '%s': %v", entry, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to finish zip: %v", err)
	}
	return filePath
}
