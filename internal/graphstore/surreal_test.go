package graphstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"catalogcron/internal/config"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
)

func TestSurrealStoreContract(t *testing.T) {
	if os.Getenv("CATALOGCRON_INTEGRATION") != "1" {
		t.Skip("set CATALOGCRON_INTEGRATION=1 to run container-backed tests")
	}
	ctx := context.Background()
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	require.NoError(t, err)

	store, err := graphstore.OpenSurreal(ctx, config.Surreal{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "catalogcron",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}
