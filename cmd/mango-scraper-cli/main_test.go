package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-scraper/internal/config"
	"github.com/vrsandeep/mango-scraper/internal/core"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/testutil"
)

func testApp(t *testing.T) *core.App {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "cli-secret"
	cfg.Storage.LocalPath = t.TempDir()
	app := core.NewWithDB(cfg, testutil.SetupTestDB(t), nil)
	t.Cleanup(app.WsHub().Stop)
	return app
}

func TestArgID(t *testing.T) {
	id, err := argID([]string{"retry", "42"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, args := range [][]string{{"retry"}, {"retry", "x"}, {"retry", "-1"}} {
		_, err := argID(args)
		assert.Error(t, err, args)
	}
}

func TestRun(t *testing.T) {
	app := testApp(t)
	ctx := context.Background()

	t.Run("token", func(t *testing.T) {
		assert.NoError(t, run(ctx, app, []string{"token", "ops"}, time.Minute))
	})

	t.Run("retry unknown item", func(t *testing.T) {
		err := run(ctx, app, []string{"retry", "7"}, 0)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("check unknown source", func(t *testing.T) {
		err := run(ctx, app, []string{"check", "7"}, 0)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("check-due with nothing due", func(t *testing.T) {
		assert.NoError(t, run(ctx, app, []string{"check-due"}, 0))
	})

	t.Run("unknown command", func(t *testing.T) {
		assert.Error(t, run(ctx, app, []string{"frobnicate"}, 0))
	})
}
