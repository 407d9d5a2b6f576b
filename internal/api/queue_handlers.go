package api

import (
	"net/http"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.QueueFilter{
		Status: models.QueueStatus(q.Get("status")),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		RespondWithError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}
	if q.Get("source_id") != "" {
		filter.SourceID = int64(queryInt(r, "source_id", 0))
	}
	items, err := s.store.ListQueueItems(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.QueueStats(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"paused": s.app.Processor().IsPaused(),
	})
}

// EnqueuePayload queues a single chapter by hand. Priority overrides the
// source's default.
type EnqueuePayload struct {
	SourceID      int64   `json:"source_id"`
	ChapterNumber float64 `json:"chapter_number"`
	ChapterURL    string  `json:"chapter_url"`
	ChapterTitle  string  `json:"chapter_title"`
	Priority      *int    `json:"priority,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var payload EnqueuePayload
	if err := decodeJSON(r, &payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.ChapterURL == "" || payload.ChapterNumber < 0 {
		RespondWithError(w, http.StatusBadRequest, "chapter_url and a non-negative chapter_number are required")
		return
	}
	src, err := s.app.Sources().Get(r.Context(), payload.SourceID)
	if err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}

	priority := src.EnqueuePriority()
	if payload.Priority != nil {
		priority = *payload.Priority
	}
	id, inserted, err := s.store.EnqueueChapter(r.Context(), models.NewQueueItem{
		SourceID:      src.ID,
		ChapterNumber: payload.ChapterNumber,
		ChapterURL:    payload.ChapterURL,
		ChapterTitle:  payload.ChapterTitle,
		Priority:      priority,
		MaxAttempts:   s.app.Config().Queue.MaxAttempts,
	})
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	item, err := s.store.GetQueueItem(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Queue item not found")
		return
	}
	code := http.StatusCreated
	if !inserted {
		code = http.StatusOK
	}
	RespondWithJSON(w, code, item)
}

func (s *Server) handleRetryQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "itemID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}
	if err := s.store.RetryQueueItem(r.Context(), id); err != nil {
		respondStoreError(w, err, "No failed queue item with that ID")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryAllFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.RetryAllFailed(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int64{"retried": n})
}

func (s *Server) handleDeleteQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "itemID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}
	if err := s.store.DeleteQueueItem(r.Context(), id); err != nil {
		respondStoreError(w, err, "Queue item not found or still processing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseQueue(w http.ResponseWriter, r *http.Request) {
	s.app.Processor().Pause()
	RespondWithJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResumeQueue(w http.ResponseWriter, r *http.Request) {
	s.app.Processor().Resume()
	RespondWithJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
