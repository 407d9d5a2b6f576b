package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

// FindFinalizedChapter returns the finalized chapter for (mangaID, number), or nil if there is none.
func (s *Store) FindFinalizedChapter(ctx context.Context, mangaID int64, number float64) (*models.Chapter, error) {
	ch, err := s.findChapter(ctx, mangaID, number)
	if err != nil || ch == nil || !ch.IsFinalized {
		return nil, err
	}
	return ch, nil
}

func (s *Store) findChapter(ctx context.Context, mangaID int64, number float64) (*models.Chapter, error) {
	var ch models.Chapter
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, manga_id, chapter_number, title, page_count, is_locked, is_finalized, created_at
		FROM chapters WHERE manga_id = ? AND chapter_number = ?`, mangaID, number).Scan(
		&ch.ID, &ch.MangaID, &ch.ChapterNumber, &title, &ch.PageCount, &ch.IsLocked, &ch.IsFinalized, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch.Title = title.String
	return &ch, nil
}

// EnsureChapter returns the id of the draft chapter for (mangaID, number),
// creating it on first use.
func (s *Store) EnsureChapter(ctx context.Context, mangaID int64, number float64, title string, locked bool, queueItemID int64) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (manga_id, chapter_number, title, is_locked, queue_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(manga_id, chapter_number) DO NOTHING`,
		mangaID, number, nullString(title), locked, queueItemID, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("create chapter %v for manga %d: %w", number, mangaID, err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, "SELECT id FROM chapters WHERE manga_id = ? AND chapter_number = ?", mangaID, number).Scan(&id)
	return id, err
}

// FinalizeChapter attaches pages 1..N to the chapter, marks it finalized and
// completes the queue item in a single transaction. Staged uploads for the
// item are cleared. Pages must be numbered 1..N without gaps.
func (s *Store) FinalizeChapter(ctx context.Context, chapterID, queueItemID int64, pages []models.PageImage) error {
	if len(pages) == 0 {
		return fmt.Errorf("finalize chapter %d: no pages", chapterID)
	}
	for i, p := range pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("finalize chapter %d: page %d out of sequence at position %d", chapterID, p.PageNumber, i+1)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM page_images WHERE chapter_id = ?", chapterID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO page_images (chapter_id, page_number, image_path, image_url, public_id, width, height)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range pages {
			// A hosted URL wins over a local path.
			path := p.ImagePath
			if p.ImageURL != "" {
				path = ""
			}
			if _, err := stmt.ExecContext(ctx, chapterID, p.PageNumber, nullString(path), nullString(p.ImageURL),
				nullString(p.PublicID), p.Width, p.Height); err != nil {
				return fmt.Errorf("insert page %d: %w", p.PageNumber, err)
			}
		}

		res, err := tx.ExecContext(ctx, "UPDATE chapters SET page_count = ?, is_finalized = 1 WHERE id = ?", len(pages), chapterID)
		if err != nil {
			return err
		}
		if err := expectOne(res, "chapter", chapterID); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE scraping_queue
			SET status = 'completed', processed_at = ?, error_message = NULL, claimed_at = NULL, chapter_id = ?
			WHERE id = ? AND status = 'processing'`, nowUTC(), chapterID, queueItemID)
		if err != nil {
			return err
		}
		if err := expectOne(res, "processing queue item", queueItemID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM scraping_page_uploads WHERE queue_item_id = ?", queueItemID)
		return err
	})
}

func (s *Store) GetChapter(ctx context.Context, id int64) (*models.Chapter, error) {
	var ch models.Chapter
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, manga_id, chapter_number, title, page_count, is_locked, is_finalized, created_at
		FROM chapters WHERE id = ?`, id).Scan(
		&ch.ID, &ch.MangaID, &ch.ChapterNumber, &title, &ch.PageCount, &ch.IsLocked, &ch.IsFinalized, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chapter %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	ch.Title = title.String
	return &ch, nil
}

// ListPageImages returns a chapter's pages in page order.
func (s *Store) ListPageImages(ctx context.Context, chapterID int64) ([]models.PageImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_id, page_number, image_path, image_url, public_id, width, height
		FROM page_images WHERE chapter_id = ? ORDER BY page_number`, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []models.PageImage
	for rows.Next() {
		var p models.PageImage
		var path, url, publicID sql.NullString
		var width, height sql.NullInt64
		if err := rows.Scan(&p.ID, &p.ChapterID, &p.PageNumber, &path, &url, &publicID, &width, &height); err != nil {
			return nil, err
		}
		p.ImagePath = path.String
		p.ImageURL = url.String
		p.PublicID = publicID.String
		p.Width = int(width.Int64)
		p.Height = int(height.Int64)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// DeleteChapterPages clears the page rows of a chapter and resets it to a draft.
func (s *Store) DeleteChapterPages(ctx context.Context, chapterID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM page_images WHERE chapter_id = ?", chapterID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE chapters SET page_count = 0, is_finalized = 0 WHERE id = ?", chapterID)
		if err != nil {
			return err
		}
		return expectOne(res, "chapter", chapterID)
	})
}

// DeleteMangaPages resets every chapter of a manga to a draft and returns how
// many chapters were touched.
func (s *Store) DeleteMangaPages(ctx context.Context, mangaID int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM page_images WHERE chapter_id IN (SELECT id FROM chapters WHERE manga_id = ?)", mangaID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE chapters SET page_count = 0, is_finalized = 0 WHERE manga_id = ?", mangaID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
