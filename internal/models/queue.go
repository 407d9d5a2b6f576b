package models

import "time"

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// Valid reports whether s is one of the known queue states.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueuePending, QueueProcessing, QueueCompleted, QueueFailed:
		return true
	}
	return false
}

// QueueItem is one discovered chapter awaiting download.
type QueueItem struct {
	ID            int64       `json:"id"`
	SourceID      int64       `json:"source_id"`
	ChapterNumber float64     `json:"chapter_number"`
	ChapterURL    string      `json:"chapter_url"`
	ChapterTitle  string      `json:"chapter_title,omitempty"`
	Priority      int         `json:"priority"`
	Status        QueueStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	MaxAttempts   int         `json:"max_attempts"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty"`
	ClaimedAt     *time.Time  `json:"claimed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	ChapterID     *int64      `json:"chapter_id,omitempty"`
}

// Exhausted reports whether the item has used its whole attempt budget.
func (q *QueueItem) Exhausted() bool {
	return q.Status == QueueFailed && q.Attempts >= q.MaxAttempts
}

// NewQueueItem is the input for enqueueing a chapter.
type NewQueueItem struct {
	SourceID      int64
	ChapterNumber float64
	ChapterURL    string
	ChapterTitle  string
	Priority      int
	MaxAttempts   int
}

type QueueFilter struct {
	Status   QueueStatus
	SourceID int64
	Limit    int
	Offset   int
}

type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// StagedPage is a page already uploaded for an in-flight queue item.
// It is reused on retry when the adapter reports the same page URL.
type StagedPage struct {
	QueueItemID int64
	PageNumber  int
	PageURL     string
	ImageURL    string
	PublicID    string
	AccountID   int64
	Width       int
	Height      int
	Bytes       int64
}
