package api

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/core"
	"github.com/vrsandeep/mango-scraper/internal/ingest"
	"github.com/vrsandeep/mango-scraper/internal/models"
)

// maxUploadBytes bounds a single chapter upload.
const maxUploadBytes = 512 << 20

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": core.Version})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetScrapingSettings(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings applies a partial update; omitted keys keep their value.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ScrapingEnabled      *bool `json:"scraping_enabled"`
		MaxConcurrentScrapes *int  `json:"max_concurrent_scrapes"`
		ScrapingDelay        *int  `json:"scraping_delay"`
		QualityCheckEnabled  *bool `json:"quality_check_enabled"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	settings, err := s.store.GetScrapingSettings(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	if payload.ScrapingEnabled != nil {
		settings.ScrapingEnabled = *payload.ScrapingEnabled
	}
	if payload.MaxConcurrentScrapes != nil {
		if *payload.MaxConcurrentScrapes < 1 {
			RespondWithError(w, http.StatusBadRequest, "max_concurrent_scrapes must be at least 1")
			return
		}
		settings.MaxConcurrentScrapes = *payload.MaxConcurrentScrapes
	}
	if payload.ScrapingDelay != nil {
		if *payload.ScrapingDelay < 0 {
			RespondWithError(w, http.StatusBadRequest, "scraping_delay must not be negative")
			return
		}
		settings.ScrapingDelay = *payload.ScrapingDelay
	}
	if payload.QualityCheckEnabled != nil {
		settings.QualityCheckEnabled = *payload.QualityCheckEnabled
	}
	if err := s.store.UpdateScrapingSettings(r.Context(), settings); err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}

func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobName string `json:"job_name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if claims := getClaimsFromContext(r); claims != nil {
		log.Printf("API: %s requested job '%s'", claims.Subject, payload.JobName)
	}
	err := s.app.JobManager().RunJob(r.Context(), payload.JobName)
	if err != nil {
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a job is already running
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + payload.JobName + "' started successfully.",
	})
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.JobManager().GetStatus())
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, adapters.GetAll())
}

// handleUpload saves a chapter archive into the inbox and enqueues it. The
// form carries the file plus source_id, chapter_number and an optional
// chapter_title.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	inbox := s.app.Inbox()
	if inbox == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Uploads are disabled: no inbox path configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	sourceID, err := strconv.ParseInt(r.FormValue("source_id"), 10, 64)
	if err != nil || sourceID <= 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid source_id")
		return
	}
	number, err := strconv.ParseFloat(r.FormValue("chapter_number"), 64)
	if err != nil || number < 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid chapter_number")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	name := ingest.FileName{SourceID: sourceID, ChapterNumber: number, Title: r.FormValue("chapter_title")}
	item, inserted, err := inbox.Save(r.Context(), name, filepath.Ext(header.Filename), file)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFile):
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respondStoreError(w, err, "Source not found")
		return
	}

	code := http.StatusCreated
	if !inserted {
		code = http.StatusOK
	}
	RespondWithJSON(w, code, struct {
		*models.QueueItem
		Inserted bool `json:"inserted"`
	}{item, inserted})
}
