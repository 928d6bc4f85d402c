package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Crawler.Concurrency)
	assert.True(t, cfg.Crawler.Headless)
	assert.Equal(t, "cs-CZ", cfg.Browser.Locale)
	assert.Equal(t, "Europe/Prague", cfg.Browser.Timezone)
	assert.NotEmpty(t, cfg.ConsentPatterns.Accept)
	assert.NotEmpty(t, cfg.ConsentPatterns.Reject)
	assert.True(t, cfg.Fingerprinting.Enabled)
	assert.True(t, cfg.Ads.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawler:
  concurrency: 2
  headless: false
browser:
  locale: sk-SK
unknown_key: ignored
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Crawler.Concurrency)
	assert.False(t, cfg.Crawler.Headless)
	assert.Equal(t, "sk-SK", cfg.Browser.Locale)

	// Untouched keys keep their defaults.
	assert.Equal(t, 45000, cfg.Crawler.PageTimeoutMs)
	assert.Equal(t, "Europe/Prague", cfg.Browser.Timezone)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Crawler, cfg.Crawler)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOOTPRINT_DB_PATH", "/tmp/other.db")
	t.Setenv("FOOTPRINT_CONCURRENCY", "3")
	t.Setenv("FOOTPRINT_HEADLESS", "false")
	t.Setenv("FOOTPRINT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Crawler.Concurrency)
	assert.False(t, cfg.Crawler.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  concurrency: 2\n"), 0o644))
	t.Setenv("FOOTPRINT_CONCURRENCY", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Crawler.Concurrency)
}

func TestValidate_Ranges(t *testing.T) {
	cfg := Default()
	cfg.Crawler.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Browser.Geolocation.Latitude = 123
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Browser.Viewport.Width = 100
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Crawler.MaxRetries = 0
	assert.NoError(t, cfg.Validate(), "retries may be disabled")
}
