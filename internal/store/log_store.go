package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

// appendCheckLog is the only write path into scraping_logs. Rows are never updated.
func appendCheckLog(ctx context.Context, tx *sql.Tx, entry *models.CheckLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO scraping_logs (source_id, run_id, check_time, status, chapters_found, chapters_scraped, error_message, execution_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SourceID, nullString(entry.RunID), entry.CheckTime, entry.Status, entry.ChaptersFound,
		entry.ChaptersScraped, nullString(entry.ErrorMessage), entry.ExecutionTime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListCheckLogs returns check logs newest first.
func (s *Store) ListCheckLogs(ctx context.Context, filter models.LogFilter) ([]*models.CheckLog, error) {
	var where []string
	var args []any
	if filter.SourceID > 0 {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT id, source_id, run_id, check_time, status, chapters_found, chapters_scraped, error_message, execution_time
		FROM scraping_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_time DESC, id DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*models.CheckLog{}
	for rows.Next() {
		var entry models.CheckLog
		var runID, errMsg sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SourceID, &runID, &entry.CheckTime, &entry.Status,
			&entry.ChaptersFound, &entry.ChaptersScraped, &errMsg, &entry.ExecutionTime); err != nil {
			return nil, err
		}
		entry.RunID = runID.String
		entry.ErrorMessage = errMsg.String
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

// PruneCheckLogs deletes logs older than before. It belongs to the retention
// job, never to the check flow.
func (s *Store) PruneCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scraping_logs WHERE check_time < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
