package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/adapters/mockadex"
	"github.com/vrsandeep/mango-scraper/internal/api"
	"github.com/vrsandeep/mango-scraper/internal/auth"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/core"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

const testSecret = "test-secret"

type testServer struct {
	app    *core.App
	router http.Handler
	token  string
}

// setupTestServer wires a full app around an in-memory database with the
// mock adapter registered.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Ingest.InboxPath = t.TempDir()

	app := core.NewWithDB(cfg, testutil.SetupTestDB(t), nil)
	t.Cleanup(func() {
		app.JobManager().Wait()
		app.WsHub().Stop()
		adapters.UnregisterAll()
	})
	adapters.UnregisterAll()
	adapters.Register(mockadex.New())

	return &testServer{
		app:    app,
		router: api.NewServer(app).Router(),
		token:  tokenFor(t, auth.RoleAdmin),
	}
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, "tester", role, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends an authenticated JSON request. A nil body sends no payload.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
