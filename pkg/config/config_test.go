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

	assert.Equal(t, 20*time.Second, cfg.Cache.TermIdleExpiry)
	assert.Equal(t, OccurrenceBackendMemory, cfg.Index.OccurrenceBackend)
	assert.Equal(t, "en", cfg.Analysis.DefaultLanguage)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  port: 9000
index:
  dataDir: /var/lib/argus
  occurrenceBackend: redis
cache:
  documentCacheSize: 42
  termIdleExpiry: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("ARGUS_SERVER_PORT", "9100")
	t.Setenv("ARGUS_CACHE_TERM_IDLE_EXPIRY", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/var/lib/argus", cfg.Index.DataDir)
	assert.Equal(t, OccurrenceBackendRedis, cfg.Index.OccurrenceBackend)
	assert.Equal(t, 42, cfg.Cache.DocumentCacheSize)
	assert.Equal(t, 45*time.Second, cfg.Cache.TermIdleExpiry)
	// untouched sections keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Index.IOTimeout)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("ARGUS_INDEX_OCCURRENCE_BACKEND", "cassandra")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Contains(t, dsn, "dbname=argus")
	assert.Contains(t, dsn, "sslmode=disable")
}
