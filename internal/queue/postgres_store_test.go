package queue_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"catalogcron/internal/queue"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	if os.Getenv("CATALOGCRON_INTEGRATION") != "1" {
		t.Skip("set CATALOGCRON_INTEGRATION=1 to run container-backed tests")
	}
	ctx := context.Background()
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "catalogcron",
				"POSTGRES_PASSWORD": "catalogcron",
				"POSTGRES_DB":       "catalogcron",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://catalogcron:catalogcron@%s:%s/catalogcron?sslmode=disable", host, port.Port())

	store, err := queue.OpenPostgresStore(ctx, dsn, "parseQueue")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "sub:S1", `{"process_rdf":true}`))
	require.NoError(t, store.Put(ctx, "sub:S1", `{"diff":true}`))
	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sub:S1": `{"diff":true}`}, snapshot)

	require.NoError(t, store.Delete(ctx, "sub:S1"))
	snapshot, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}
