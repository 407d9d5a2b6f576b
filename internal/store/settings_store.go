package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

// GetScrapingSettings reads the runtime switches. Missing or malformed rows fall back to defaults.
func (s *Store) GetScrapingSettings(ctx context.Context) (models.ScrapingSettings, error) {
	settings := models.DefaultScrapingSettings()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM scraping_settings")
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		switch key {
		case "scraping_enabled":
			if b, err := strconv.ParseBool(value); err == nil {
				settings.ScrapingEnabled = b
			}
		case "max_concurrent_scrapes":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				settings.MaxConcurrentScrapes = n
			}
		case "scraping_delay":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				settings.ScrapingDelay = n
			}
		case "quality_check_enabled":
			if b, err := strconv.ParseBool(value); err == nil {
				settings.QualityCheckEnabled = b
			}
		}
	}
	return settings, rows.Err()
}

func (s *Store) UpdateScrapingSettings(ctx context.Context, settings models.ScrapingSettings) error {
	values := map[string]string{
		"scraping_enabled":       strconv.FormatBool(settings.ScrapingEnabled),
		"max_concurrent_scrapes": strconv.Itoa(settings.MaxConcurrentScrapes),
		"scraping_delay":         strconv.Itoa(settings.ScrapingDelay),
		"quality_check_enabled":  strconv.FormatBool(settings.QualityCheckEnabled),
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO scraping_settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, nowUTC())
			if err != nil {
				return err
			}
		}
		return nil
	})
}
