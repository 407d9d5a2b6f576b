package api

import (
	"errors"
	"net/http"

	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/sources"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := s.app.Sources().List(r.Context(), activeOnly)
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var in sources.Input
	if err := decodeJSON(r, &in); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	src, err := s.app.Sources().Create(r.Context(), in)
	if err != nil {
		respondSourceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, src)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	src, err := s.app.Sources().Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	var in sources.Input
	if err := decodeJSON(r, &in); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	src, err := s.app.Sources().Update(r.Context(), id, in)
	if err != nil {
		respondSourceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeactivateSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	if err := s.app.Sources().Deactivate(r.Context(), id); err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	if err := s.app.Sources().Delete(r.Context(), id); err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckSource runs a check now and returns its result. A failing adapter
// still yields 200; the result carries the failure.
func (s *Server) handleCheckSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	res, err := s.app.Checker().CheckSourceByID(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}
	if res.Skipped {
		RespondWithJSON(w, http.StatusConflict, res)
		return
	}
	RespondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSourceLogs(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sourceID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	logs, err := s.app.Sources().History(r.Context(), id, queryInt(r, "limit", 50))
	if err != nil {
		respondStoreError(w, err, "Source not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, logs)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.LogFilter{
		Status: models.CheckStatus(q.Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if q.Get("source_id") != "" {
		filter.SourceID = int64(queryInt(r, "source_id", 0))
	}
	logs, err := s.store.ListCheckLogs(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, logs)
}

func respondSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sources.ErrInvalidSource), errors.Is(err, sources.ErrUnknownSiteType):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		respondStoreError(w, err, "Source not found")
	}
}
