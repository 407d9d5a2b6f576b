package api_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth(t *testing.T) {
	ts := setupTestServer(t)

	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{"No token", "", http.StatusUnauthorized},
		{"Wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"Invalid token", "Bearer not-a-token", http.StatusUnauthorized},
		{"Non-admin role", "Bearer " + tokenFor(t, "viewer"), http.StatusForbidden},
		{"Admin", "Bearer " + ts.token, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/admin/sources", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestPublicRoutes(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[map[string]any](t, rr)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, false, body["queue_paused"])
	})

	t.Run("Version", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/version", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "version")
	})

	t.Run("Media", func(t *testing.T) {
		dir := filepath.Join(ts.app.Config().Storage.LocalPath, "manga_1")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "page_001.jpg"), []byte("jpeg"), 0o644))

		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, httptest.NewRequest("GET", "/media/manga_1/page_001.jpg", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "jpeg", rr.Body.String())

		rr = httptest.NewRecorder()
		ts.router.ServeHTTP(rr, httptest.NewRequest("GET", "/media/manga_1/", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, "directories are not listed")
	})
}
