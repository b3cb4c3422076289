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

	assert.Equal(t, "agency_data.db", cfg.DatabaseURL)
	assert.Equal(t, "scraped_data", cfg.ScrapeRoot)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "urls.csv", cfg.Harvest.URLsFile)
	assert.Equal(t, "progress.txt", cfg.Harvest.ProgressFile)
	assert.Equal(t, 30*time.Second, cfg.Harvest.Timeout)
	assert.Equal(t, 3, cfg.Harvest.MaxRetries)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://lpr@localhost/lpr")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://lpr@localhost/lpr", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.Harvest.Timeout)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lprwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: catalog.db
scrape_root: /data/scraped
log:
  level: debug
harvest:
  urls_file: portals.csv
  delay: 2s
server:
  port: "9000"
`), 0o644))

	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "catalog.db", cfg.DatabaseURL)
	assert.Equal(t, "/data/scraped", cfg.ScrapeRoot)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "portals.csv", cfg.Harvest.URLsFile)
	assert.Equal(t, 2*time.Second, cfg.Harvest.Delay)
	assert.Equal(t, "progress.txt", cfg.Harvest.ProgressFile)
	assert.Equal(t, "9100", cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("HTTP_MAX_RETRIES", "0")

	_, err := Load("")
	assert.ErrorContains(t, err, "max_retries")
}
