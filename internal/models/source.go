package models

import "time"

// ScrapeSource is a configured watch on one external chapter list for one manga.
type ScrapeSource struct {
	ID                 int64      `json:"id"`
	MangaID            int64      `json:"manga_id"`
	SiteType           string     `json:"site_type"`
	SourceURL          string     `json:"source_url"`
	LastChapterScraped float64    `json:"last_chapter_scraped"`
	LastCheck          *time.Time `json:"last_check,omitempty"`
	CheckInterval      int        `json:"check_interval"` // seconds
	IsActive           bool       `json:"is_active"`
	AutoPublish        bool       `json:"auto_publish"`
	QualityCheck       bool       `json:"quality_check"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsDue reports whether the source should be checked at now.
func (s *ScrapeSource) IsDue(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastCheck == nil {
		return true
	}
	return now.Sub(*s.LastCheck) >= time.Duration(s.CheckInterval)*time.Second
}

// EnqueuePriority is the queue priority given to chapters discovered on this source.
func (s *ScrapeSource) EnqueuePriority() int {
	if s.AutoPublish {
		return 1
	}
	return 0
}
