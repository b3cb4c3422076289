package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN
func startPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "lprwatch",
				"POSTGRES_USER":     "lpr",
				"POSTGRES_PASSWORD": "test_password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://lpr:test_password@%s:%s/lprwatch?sslmode=disable", host, port.Port())
}

func TestPostgresCatalog(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	db, err := NewDB(dsn)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, DialectPostgres, db.Dialect)

	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.EnsureSchema(ctx))

	catalog := NewCatalogStore(db)
	first, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)

	catalog.SetSkipExisting(true)
	second, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	assert.Equal(t, first.ScrapeID, second.ScrapeID)
	assert.Zero(t, second.FilesInserted)
	assert.Zero(t, second.AuditsLogged)
	require.NoError(t, db.CreateIndexes(ctx))

	agencies := NewAgencyStore(db)
	all, err := agencies.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].ScrapeCount)

	deleted, err := agencies.DeleteAgency(ctx, first.AgencyID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, countRows(t, db, "search_audits"))

	size, err := db.Size(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, db.Reset(ctx))
	exists, err := db.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}
