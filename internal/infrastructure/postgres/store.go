// Package postgres is the durable store behind the cursor/ingest/outbox/inbox/
// domain-outbox tables. It follows the teacher repository's idiom throughout:
// pgxpool, hand-written SQL, explicit transactions, and ON CONFLICT / WHERE-guard
// based concurrency instead of advisory locks.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool shared by the scanner, publisher, dispatcher,
// and executor. Each component only calls the methods relevant to it, through a
// narrow Store interface declared in its own package (ingest, outbox,
// dispatcher, executor, and the rest status handler).
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers (such as the integration tests)
// that need raw access without going through a Store method.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Connect builds a pool and verifies connectivity with a bounded ping, mirroring
// join-service's cmd/main.go startup sequence.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }
