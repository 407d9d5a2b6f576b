package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
)

func (s *Server) handleListStorageAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListStorageAccounts(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, accounts)
}

func validateAccount(in models.StorageAccountInput, creating bool) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if in.StorageLimitMB < 0 {
		return fmt.Errorf("storage_limit_mb must not be negative")
	}
	if in.PriorityOrder < 0 {
		return fmt.Errorf("priority_order must not be negative")
	}
	switch in.Provider {
	case "":
		if creating {
			return fmt.Errorf("provider is required")
		}
	case models.ProviderLocal:
	case models.ProviderCloudinary:
		if creating && in.CloudName == "" {
			return fmt.Errorf("cloud_name is required for cloudinary accounts")
		}
		if creating && (in.APIKey == "" || in.APISecret == "") {
			return fmt.Errorf("api_key and api_secret are required for cloudinary accounts")
		}
	default:
		return fmt.Errorf("unknown provider %q", in.Provider)
	}
	return nil
}

func (s *Server) handleCreateStorageAccount(w http.ResponseWriter, r *http.Request) {
	var in models.StorageAccountInput
	if err := decodeJSON(r, &in); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validateAccount(in, true); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := s.store.CreateStorageAccount(r.Context(), in)
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusCreated, account)
}

func (s *Server) handleUpdateStorageAccount(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "accountID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var in models.StorageAccountInput
	if err := decodeJSON(r, &in); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validateAccount(in, false); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := s.store.UpdateStorageAccount(r.Context(), id, in)
	if err != nil {
		respondStoreError(w, err, "Storage account not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, account)
}

func (s *Server) handleToggleStorageAccount(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "accountID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	active, err := s.store.ToggleStorageAccount(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "Storage account not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

func (s *Server) handleSetPrimaryStorageAccount(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "accountID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if err := s.store.SetPrimaryStorageAccount(r.Context(), id); err != nil {
		respondStoreError(w, err, "Storage account not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStorageAccountStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "accountID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	stats, err := s.store.GetStorageAccountStats(r.Context(), id, time.Now().AddDate(0, 0, -30))
	if err != nil {
		respondStoreError(w, err, "Storage account not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReconcileStorage(w http.ResponseWriter, r *http.Request) {
	results, err := s.app.StorageBackend().Reconcile(r.Context())
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, results)
}

// handleDeleteChapterImages removes a chapter's images from every account and
// resets the chapter to a draft.
func (s *Server) handleDeleteChapterImages(w http.ResponseWriter, r *http.Request) {
	mangaID, err := idParam(r, "mangaID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid manga ID")
		return
	}
	chapterID, err := idParam(r, "chapterID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid chapter ID")
		return
	}
	deleted, err := s.app.StorageBackend().DeleteChapterImages(r.Context(), mangaID, chapterID)
	if err != nil {
		RespondWithJSON(w, http.StatusBadGateway, map[string]any{"deleted": deleted, "error": err.Error()})
		return
	}
	// Images of a chapter that is no longer tracked can still be purged.
	if err := s.store.DeleteChapterPages(r.Context(), chapterID); err != nil && !errors.Is(err, store.ErrNotFound) {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleDeleteMangaImages removes every chapter image of a manga from all
// accounts and resets its chapters to drafts.
func (s *Server) handleDeleteMangaImages(w http.ResponseWriter, r *http.Request) {
	mangaID, err := idParam(r, "mangaID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid manga ID")
		return
	}
	deleted, err := s.app.StorageBackend().DeleteMangaImages(r.Context(), mangaID)
	if err != nil {
		RespondWithJSON(w, http.StatusBadGateway, map[string]any{"deleted": deleted, "error": err.Error()})
		return
	}
	chapters, err := s.store.DeleteMangaPages(r.Context(), mangaID)
	if err != nil {
		respondStoreError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int64{"deleted": int64(deleted), "chapters_reset": chapters})
}
