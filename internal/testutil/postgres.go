//go:build integration
// +build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "songgrid"
	postgresPassword = "songgrid"
	postgresDB       = "songgrid"
)

var postgresPort = nat.Port("5432/tcp")

// PostgresEnvironment is a throwaway PostgreSQL container for integration tests
type PostgresEnvironment struct {
	T         *testing.T
	Ctx       context.Context
	Container testcontainers.Container
	DSN       string
}

// SetupPostgres starts a PostgreSQL container and registers its termination
// with t.Cleanup. Requires a reachable Docker daemon.
func SetupPostgres(t *testing.T) *PostgresEnvironment {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		// Postgres logs readiness twice: once for the init run, once for the real server
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start postgres container")

	env := &PostgresEnvironment{T: t, Ctx: ctx, Container: container}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to resolve container host")
	port, err := container.MappedPort(ctx, postgresPort)
	require.NoError(t, err, "Failed to resolve mapped postgres port")

	env.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDB)
	t.Logf("✓ Postgres container ready at %s:%s", host, port.Port())

	return env
}
