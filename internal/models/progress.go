package models

type ProgressUpdate struct {
	JobID    string  `json:"jobId"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
	ItemID   int64   `json:"item_id"`
	Status   string  `json:"status"`
	Done     bool    `json:"done"`
}

// Notification is pushed to admin clients when something needs attention.
type Notification struct {
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	SourceID int64     `json:"source_id,omitempty"`
	MangaID  int64     `json:"manga_id,omitempty"`
	Chapters []float64 `json:"chapters,omitempty"`
}
