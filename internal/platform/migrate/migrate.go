// Package migrate applies the repo's embedded SQL migrations in filename order.
// No migration framework is wired in — none of the corpus's example repos import
// one (see DESIGN.md); this is a direct, idempotent statement runner instead.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Apply runs every embedded *.sql file against pool, in lexical filename order.
// Migrations must be idempotent (CREATE ... IF NOT EXISTS); there is no tracking
// table, matching the spec's explicit Non-goal of SQL migration orchestration.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
