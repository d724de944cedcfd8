package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./medsearch.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Search.HistoryLimit)
	assert.Equal(t, "generic", cfg.Ads.FallbackCategory)
	assert.Equal(t, "gpt-4-turbo-preview", cfg.LLM.Model)
	assert.Equal(t, "gpt-4", cfg.LLM.KeywordModel)
	assert.False(t, cfg.LLM.Enabled)
	assert.Len(t, cfg.Discovery.Feeds, 3)
	assert.Equal(t, time.Hour, cfg.Schedule.ParseIngestInterval())
	assert.Equal(t, 24*time.Hour, cfg.Schedule.ParseDigestInterval())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/custom.db
server:
  port: 9090
search:
  history_limit: 10
schedule:
  ingest_interval: 15m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Search.HistoryLimit)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.ParseIngestInterval())
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Ads.MaxMatches)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDSEARCH_DB_PATH", "/tmp/env.db")
	t.Setenv("SEARCH_HISTORY_LIMIT", "5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Search.HistoryLimit)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestEnvOverridesIgnoreInvalidLimit(t *testing.T) {
	t.Setenv("SEARCH_HISTORY_LIMIT", "zero")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Search.HistoryLimit)
}
