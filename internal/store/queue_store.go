package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

// claimRaceRetries bounds how often ClaimNextQueueItem re-selects after losing
// a claim to another worker.
const claimRaceRetries = 5

const queueColumns = `id, source_id, chapter_number, chapter_url, chapter_title, priority, status, attempts,
	max_attempts, next_attempt_at, claimed_at, created_at, processed_at, error_message, chapter_id`

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var title, errMsg sql.NullString
	var nextAttempt, claimedAt, processedAt sql.NullTime
	var chapterID sql.NullInt64
	err := row.Scan(&item.ID, &item.SourceID, &item.ChapterNumber, &item.ChapterURL, &title, &item.Priority,
		&item.Status, &item.Attempts, &item.MaxAttempts, &nextAttempt, &claimedAt, &item.CreatedAt,
		&processedAt, &errMsg, &chapterID)
	if err != nil {
		return nil, err
	}
	item.ChapterTitle = title.String
	item.ErrorMessage = errMsg.String
	item.NextAttemptAt = timePtr(nextAttempt)
	item.ClaimedAt = timePtr(claimedAt)
	item.ProcessedAt = timePtr(processedAt)
	if chapterID.Valid {
		item.ChapterID = &chapterID.Int64
	}
	return &item, nil
}

// EnqueueChapter inserts a pending queue item. Enqueueing the same
// (source, chapter_number) twice is a no-op; inserted reports whether a row was created.
func (s *Store) EnqueueChapter(ctx context.Context, in models.NewQueueItem) (id int64, inserted bool, err error) {
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_queue (source_id, chapter_number, chapter_url, chapter_title, priority, status, attempts, max_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?)
		ON CONFLICT(source_id, chapter_number) DO NOTHING`,
		in.SourceID, in.ChapterNumber, in.ChapterURL, nullString(in.ChapterTitle), in.Priority, maxAttempts, nowUTC())
	if err != nil {
		return 0, false, fmt.Errorf("enqueue chapter %v of source %d: %w", in.ChapterNumber, in.SourceID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		err = s.db.QueryRowContext(ctx, "SELECT id FROM scraping_queue WHERE source_id = ? AND chapter_number = ?",
			in.SourceID, in.ChapterNumber).Scan(&id)
		return id, false, err
	}
	id, err = res.LastInsertId()
	return id, true, err
}

// ClaimQueueItem atomically moves one pending item to processing. It reports
// false when another worker got there first.
func (s *Store) ClaimQueueItem(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue SET status = 'processing', claimed_at = ?
		WHERE id = ? AND status = 'pending'`, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("claim queue item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ClaimNextQueueItem claims the highest-priority, oldest pending item whose
// retry delay has elapsed. It returns nil when no item is available.
func (s *Store) ClaimNextQueueItem(ctx context.Context, now time.Time) (*models.QueueItem, error) {
	now = now.UTC()
	for i := 0; i < claimRaceRetries; i++ {
		var id int64
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM scraping_queue
			WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1`, now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select next queue item: %w", err)
		}

		claimed, err := s.ClaimQueueItem(ctx, id, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			return s.GetQueueItem(ctx, id)
		}
	}
	return nil, nil
}

func (s *Store) GetQueueItem(ctx context.Context, id int64) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+queueColumns+" FROM scraping_queue WHERE id = ?", id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %d: %w", id, ErrNotFound)
	}
	return item, err
}

// ListQueueItems returns queue items newest first.
func (s *Store) ListQueueItems(ctx context.Context, filter models.QueueFilter) ([]*models.QueueItem, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SourceID > 0 {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}

	query := "SELECT " + queueColumns + " FROM scraping_queue"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*models.QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM scraping_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status models.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case models.QueuePending:
			stats.Pending = count
		case models.QueueProcessing:
			stats.Processing = count
		case models.QueueCompleted:
			stats.Completed = count
		case models.QueueFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// FailQueueItem records a failed processing attempt on a claimed item. The
// item returns to pending after backoff*attempts while attempts remain,
// otherwise it stays failed until an admin retries it.
func (s *Store) FailQueueItem(ctx context.Context, id int64, reason string, backoff time.Duration, now time.Time) (*models.QueueItem, error) {
	item, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.QueueProcessing {
		return nil, fmt.Errorf("queue item %d is %s, not processing: %w", id, item.Status, ErrNotFound)
	}

	now = now.UTC()
	attempts := min(item.Attempts+1, item.MaxAttempts)
	status := models.QueueFailed
	var nextAttempt sql.NullTime
	if attempts < item.MaxAttempts {
		status = models.QueuePending
		nextAttempt = sql.NullTime{Time: now.Add(backoff * time.Duration(attempts)), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue
		SET status = ?, attempts = ?, error_message = ?, next_attempt_at = ?, processed_at = ?, claimed_at = NULL
		WHERE id = ? AND status = 'processing'`,
		status, attempts, nullString(reason), nextAttempt, now, id)
	if err != nil {
		return nil, fmt.Errorf("fail queue item %d: %w", id, err)
	}
	if err := expectOne(res, "processing queue item", id); err != nil {
		return nil, err
	}

	item.Status = status
	item.Attempts = attempts
	item.ErrorMessage = reason
	item.NextAttemptAt = timePtr(nextAttempt)
	item.ProcessedAt = &now
	item.ClaimedAt = nil
	return item, nil
}

// CompleteQueueItem marks a claimed item completed without new pages, e.g.
// when the chapter was already finalized by an earlier item.
func (s *Store) CompleteQueueItem(ctx context.Context, id int64, chapterID *int64) error {
	var chapter sql.NullInt64
	if chapterID != nil {
		chapter = sql.NullInt64{Int64: *chapterID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue
		SET status = 'completed', processed_at = ?, error_message = NULL, claimed_at = NULL, chapter_id = ?
		WHERE id = ? AND status = 'processing'`, nowUTC(), chapter, id)
	if err != nil {
		return err
	}
	return expectOne(res, "processing queue item", id)
}

// RetryQueueItem resets a failed item to pending with a fresh attempt budget.
func (s *Store) RetryQueueItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue
		SET status = 'pending', attempts = 0, error_message = NULL, next_attempt_at = NULL, processed_at = NULL
		WHERE id = ? AND status = 'failed'`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "failed queue item", id)
}

// RetryAllFailed resets every failed item to pending and returns how many were reset.
func (s *Store) RetryAllFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue
		SET status = 'pending', attempts = 0, error_message = NULL, next_attempt_at = NULL, processed_at = NULL
		WHERE status = 'failed'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteQueueItem removes an item that is not currently being processed.
func (s *Store) DeleteQueueItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scraping_queue WHERE id = ? AND status != 'processing'", id)
	if err != nil {
		return err
	}
	return expectOne(res, "deletable queue item", id)
}

// ResetStaleQueueItems returns items stuck in processing since before claimedBefore
// to pending. A crashed worker does not consume an attempt.
func (s *Store) ResetStaleQueueItems(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_queue SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND (claimed_at IS NULL OR claimed_at < ?)`, claimedBefore.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupCompletedQueueItems deletes completed items processed before the cutoff.
func (s *Store) CleanupCompletedQueueItems(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scraping_queue WHERE status = 'completed' AND processed_at < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetStagedPages returns pages already uploaded for a queue item, keyed by page number.
func (s *Store) GetStagedPages(ctx context.Context, queueItemID int64) (map[int]models.StagedPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue_item_id, page_number, page_url, image_url, public_id, account_id, width, height, bytes
		FROM scraping_page_uploads WHERE queue_item_id = ?`, queueItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := make(map[int]models.StagedPage)
	for rows.Next() {
		var p models.StagedPage
		if err := rows.Scan(&p.QueueItemID, &p.PageNumber, &p.PageURL, &p.ImageURL, &p.PublicID,
			&p.AccountID, &p.Width, &p.Height, &p.Bytes); err != nil {
			return nil, err
		}
		pages[p.PageNumber] = p
	}
	return pages, rows.Err()
}

// SaveStagedPage records an uploaded page so a retry can reuse it.
func (s *Store) SaveStagedPage(ctx context.Context, p models.StagedPage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_page_uploads (queue_item_id, page_number, page_url, image_url, public_id, account_id, width, height, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(queue_item_id, page_number) DO UPDATE SET
			page_url = excluded.page_url, image_url = excluded.image_url, public_id = excluded.public_id,
			account_id = excluded.account_id, width = excluded.width, height = excluded.height,
			bytes = excluded.bytes, created_at = excluded.created_at`,
		p.QueueItemID, p.PageNumber, p.PageURL, p.ImageURL, p.PublicID, p.AccountID, p.Width, p.Height, p.Bytes, nowUTC())
	return err
}
