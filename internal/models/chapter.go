package models

import (
	"context"
	"time"
)

type Chapter struct {
	ID            int64     `json:"id"`
	MangaID       int64     `json:"manga_id"`
	ChapterNumber float64   `json:"chapter_number"`
	Title         string    `json:"title,omitempty"`
	PageCount     int       `json:"page_count"`
	IsLocked      bool      `json:"is_locked"`
	IsFinalized   bool      `json:"is_finalized"`
	CreatedAt     time.Time `json:"created_at"`
}

// PageImage holds either a local path or a hosted URL, never both.
type PageImage struct {
	ID         int64  `json:"id"`
	ChapterID  int64  `json:"chapter_id"`
	PageNumber int    `json:"page_number"`
	ImagePath  string `json:"image_path,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	PublicID   string `json:"public_id,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// ChapterSink is where finished chapters are handed to the surrounding application.
type ChapterSink interface {
	// FindFinalizedChapter returns the finalized chapter for (mangaID, number), or nil.
	FindFinalizedChapter(ctx context.Context, mangaID int64, number float64) (*Chapter, error)
	// EnsureChapter returns the draft chapter bound to a queue item, creating it if needed.
	EnsureChapter(ctx context.Context, mangaID int64, number float64, title string, locked bool, queueItemID int64) (int64, error)
	// FinalizeChapter attaches pages 1..N, sets the page count and completes the queue item atomically.
	FinalizeChapter(ctx context.Context, chapterID, queueItemID int64, pages []PageImage) error
}
