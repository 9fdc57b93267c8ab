// Package integration runs the occurrence backends and the index pipeline
// against real PostgreSQL and Redis servers. Tests skip when a server is
// unreachable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index/store"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/occurrence"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/redis"
)

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "argus_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "argus"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func postgresBackend(t *testing.T) *occurrence.Postgres {
	t.Helper()
	client, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	pg := occurrence.NewPostgres(client)
	require.NoError(t, pg.Migrate(context.Background()))
	t.Cleanup(func() { pg.Close() })
	return pg
}

func redisBackend(t *testing.T) *occurrence.Redis {
	t.Helper()
	client, err := pkgredis.NewClient(config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		PoolSize: 2,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	r := occurrence.NewRedis(client, fmt.Sprintf("argus:test:%d:", time.Now().UnixNano()))
	t.Cleanup(func() { r.Close() })
	return r
}

// uniqueID keeps reruns against a shared database from seeing old rows.
func uniqueID() index.DocumentID {
	return index.DocumentID(time.Now().UnixNano()%1_000_000_000 + 1)
}

func exerciseBackend(t *testing.T, b occurrence.Backend, cleanup func(index.DocumentID) error) {
	ctx := context.Background()
	id := uniqueID()
	t.Cleanup(func() { cleanup(id) })

	first := []index.Occurrence{
		{Text: "cat", WordIndex: 1, CharStart: 4, CharEnd: 7},
		{Text: "sat", WordIndex: 2, CharStart: 8, CharEnd: 11},
	}
	second := []index.Occurrence{{Text: "mat", WordIndex: 5, CharStart: 19, CharEnd: 22}}

	require.NoError(t, b.Append(ctx, id, first))
	require.NoError(t, b.Append(ctx, id, second))
	require.NoError(t, b.Append(ctx, id, nil))

	got, err := b.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), got)

	none, err := b.Load(ctx, id+1_000_000_001)
	require.NoError(t, err)
	assert.Empty(t, none)
	require.NoError(t, b.Ping(ctx))
}

func TestPostgresOccurrences(t *testing.T) {
	pg := postgresBackend(t)
	exerciseBackend(t, pg, func(id index.DocumentID) error { return pg.Delete(context.Background(), id) })
}

func TestRedisOccurrences(t *testing.T) {
	r := redisBackend(t)
	exerciseBackend(t, r, func(id index.DocumentID) error { return r.Delete(context.Background(), id) })
}

// TestIndexWithRemoteOccurrences indexes through a guarded Postgres
// backend and reads occurrences back through a read-only store.
func TestIndexWithRemoteOccurrences(t *testing.T) {
	ctx := context.Background()
	pg := postgresBackend(t)
	// A fresh catalog starts at id 1, which earlier runs also used.
	require.NoError(t, pg.Delete(ctx, 1))
	t.Cleanup(func() { pg.Delete(context.Background(), 1) })
	guarded := occurrence.Guard("occurrences-test", pg, nil)
	dir := t.TempDir()

	w, err := store.Open(store.Options{Dir: dir, Occurrences: guarded})
	require.NoError(t, err)
	defer w.Close()

	a := analysis.New(analysis.DefaultRegistry(), config.Default().Analysis)
	engine := indexer.NewEngine(w, a, config.IndexConfig{}, nil)
	url := fmt.Sprintf("https://integration/%d", time.Now().UnixNano())
	doc, err := engine.IndexDocument(ctx, indexer.IndexRequest{URL: url, Content: "the cat sat on the mat"})
	require.NoError(t, err)
	require.Equal(t, index.DocumentID(1), doc.ID)
	require.NoError(t, engine.Close(ctx))

	r, err := store.Open(store.Options{Dir: dir, ReadOnly: true, Occurrences: guarded})
	require.NoError(t, err)
	defer r.Close()

	loaded, err := r.LoadDocument(ctx, doc.ID)
	require.NoError(t, err)
	occs, err := loaded.Occurrences(ctx)
	require.NoError(t, err)
	assert.Len(t, occs, 3)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
