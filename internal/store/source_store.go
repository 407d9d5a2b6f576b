package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

const sourceColumns = `id, manga_id, site_type, source_url, last_chapter_scraped, last_check,
	check_interval, is_active, auto_publish, quality_check, created_at, updated_at`

func scanSource(row rowScanner) (*models.ScrapeSource, error) {
	var src models.ScrapeSource
	var lastCheck sql.NullTime
	err := row.Scan(&src.ID, &src.MangaID, &src.SiteType, &src.SourceURL, &src.LastChapterScraped, &lastCheck,
		&src.CheckInterval, &src.IsActive, &src.AutoPublish, &src.QualityCheck, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	src.LastCheck = timePtr(lastCheck)
	return &src, nil
}

// CreateSource inserts a new scrape source and fills in its id and timestamps.
func (s *Store) CreateSource(ctx context.Context, src *models.ScrapeSource) error {
	now := nowUTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_sources (manga_id, site_type, source_url, last_chapter_scraped, check_interval,
			is_active, auto_publish, quality_check, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.MangaID, src.SiteType, src.SourceURL, src.LastChapterScraped, src.CheckInterval,
		src.IsActive, src.AutoPublish, src.QualityCheck, now, now)
	if err != nil {
		return conflict(err, "insert scrape source")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	src.ID = id
	src.CreatedAt = now
	src.UpdatedAt = now
	return nil
}

// UpdateSource writes the admin-editable fields of a source. The watermark is
// only moved through RecordCheck.
func (s *Store) UpdateSource(ctx context.Context, src *models.ScrapeSource) error {
	src.UpdatedAt = nowUTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE scrape_sources
		SET manga_id = ?, site_type = ?, source_url = ?, check_interval = ?, is_active = ?,
			auto_publish = ?, quality_check = ?, updated_at = ?
		WHERE id = ?`,
		src.MangaID, src.SiteType, src.SourceURL, src.CheckInterval, src.IsActive,
		src.AutoPublish, src.QualityCheck, src.UpdatedAt, src.ID)
	if err != nil {
		return conflict(err, "update scrape source")
	}
	return expectOne(res, "scrape source", src.ID)
}

func (s *Store) GetSource(ctx context.Context, id int64) (*models.ScrapeSource, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM scrape_sources WHERE id = ?", id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scrape source %d: %w", id, ErrNotFound)
	}
	return src, err
}

// ListSources returns sources ordered by id, optionally only the active ones.
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]*models.ScrapeSource, error) {
	query := "SELECT " + sourceColumns + " FROM scrape_sources"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*models.ScrapeSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SetSourceActive toggles the soft-delete flag of a source.
func (s *Store) SetSourceActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE scrape_sources SET is_active = ?, updated_at = ? WHERE id = ?", active, nowUTC(), id)
	if err != nil {
		return err
	}
	return expectOne(res, "scrape source", id)
}

// DeleteSource removes a source. Queue items and logs cascade.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scrape_sources WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res, "scrape source", id)
}

// RecordCheck appends a check log and updates the source's last check time in
// one transaction. The watermark only moves forward, and only for successful
// checks that found chapters.
func (s *Store) RecordCheck(ctx context.Context, sourceID int64, outcome models.CheckOutcome) (*models.CheckLog, error) {
	entry := &models.CheckLog{
		SourceID:        sourceID,
		RunID:           outcome.RunID,
		CheckTime:       outcome.CheckedAt.UTC(),
		Status:          outcome.Status,
		ChaptersFound:   outcome.ChaptersFound,
		ChaptersScraped: outcome.ChaptersScraped,
		ExecutionTime:   outcome.Duration.Seconds(),
	}
	if outcome.Err != nil {
		entry.ErrorMessage = outcome.Err.Error()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE scrape_sources SET last_check = ? WHERE id = ?", entry.CheckTime, sourceID)
		if err != nil {
			return err
		}
		if err := expectOne(res, "scrape source", sourceID); err != nil {
			return err
		}

		if outcome.Status == models.CheckSuccess && outcome.ChaptersFound > 0 {
			_, err = tx.ExecContext(ctx, `
				UPDATE scrape_sources
				SET last_chapter_scraped = MAX(last_chapter_scraped, ?), updated_at = ?
				WHERE id = ?`, outcome.MaxChapter, entry.CheckTime, sourceID)
			if err != nil {
				return err
			}
		}

		id, err := appendCheckLog(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record check for source %d: %w", sourceID, err)
	}
	return entry, nil
}
