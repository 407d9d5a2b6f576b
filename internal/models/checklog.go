package models

import "time"

type CheckStatus string

const (
	CheckSuccess       CheckStatus = "success"
	CheckFailed        CheckStatus = "failed"
	CheckNoNewChapters CheckStatus = "no_new_chapters"
)

// CheckLog is the audit record of one pass over one source. Rows are never updated.
type CheckLog struct {
	ID              int64       `json:"id"`
	SourceID        int64       `json:"source_id"`
	RunID           string      `json:"run_id,omitempty"`
	CheckTime       time.Time   `json:"check_time"`
	Status          CheckStatus `json:"status"`
	ChaptersFound   int         `json:"chapters_found"`
	ChaptersScraped int         `json:"chapters_scraped"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	ExecutionTime   float64     `json:"execution_time"` // seconds
}

// CheckOutcome is what the checker reports back for one source.
type CheckOutcome struct {
	RunID           string
	CheckedAt       time.Time
	Status          CheckStatus
	ChaptersFound   int
	ChaptersScraped int
	MaxChapter      float64
	Err             error
	Duration        time.Duration
}

type LogFilter struct {
	SourceID int64
	Status   CheckStatus
	Limit    int
	Offset   int
}
