package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreIdempotentCreateStatements(t *testing.T) {
	entries, err := migrationsFS.ReadDir("sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "at least one migration must be embedded")

	for _, e := range entries {
		require.False(t, e.IsDir())

		body, err := migrationsFS.ReadFile("sql/" + e.Name())
		require.NoError(t, err)

		upper := strings.ToUpper(string(body))
		require.Contains(t, upper, "CREATE TABLE IF NOT EXISTS",
			"%s must guard its table creation so re-applying it is a no-op", e.Name())
	}
}

func TestEmbeddedMigrationsDeclareInfraAndDomainSchemas(t *testing.T) {
	body, err := migrationsFS.ReadFile("sql/0001_init.sql")
	require.NoError(t, err)

	upper := strings.ToUpper(string(body))
	require.Contains(t, upper, "CREATE SCHEMA IF NOT EXISTS INFRA")
	require.Contains(t, upper, "CREATE SCHEMA IF NOT EXISTS DOMAIN")
}
