//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/infrastructure/postgres"
	"github.com/onchainlabs/logindexer/internal/platform/migrate"
)

// setupStore mirrors the teacher's integration-test shape: skip unless a real
// database is available, truncate every table this package touches, and hand
// back both the Store and the raw pool for assertions the Store doesn't expose.
func setupStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("skipping integration test: TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	require.NoError(t, migrate.Apply(ctx, pool))

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE infra.cursors, infra.ingest_events, infra.ingest_outbox,
			infra.inbox, domain.domain_outbox RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)

	return postgres.New(pool), pool
}

func TestAppendChunkIsIdempotentAcrossOverlappingRanges(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	event := domain.IngestEvent{
		EventID:      "0xblock:16:1:2",
		BlockNumber:  16,
		BlockHash:    "0xblock",
		Address:      "0xtoken",
		Topic0:       "0xtopic",
		PartitionKey: "abc123",
		Payload:      json.RawMessage(`{"foo":"bar"}`),
	}

	require.NoError(t, store.AppendChunk(ctx, "shard-0", []domain.IngestEvent{event}, 16))
	require.NoError(t, store.AppendChunk(ctx, "shard-0", []domain.IngestEvent{event}, 16))

	pending, err := store.SelectUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "overlapping append must not duplicate the outbox row")

	hwm, ok, err := store.GetCursor(ctx, "shard-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(16), hwm)
}

func TestPublisherFlowMarksPublishedAndDispatcherClaimsOnce(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	event := domain.IngestEvent{
		EventID:      "0xblock:17:0:0",
		BlockNumber:  17,
		BlockHash:    "0xblock",
		Address:      "0xtoken",
		Topic0:       "0xtransfer",
		PartitionKey: "deadbeef",
		Payload:      json.RawMessage(`{}`),
	}
	require.NoError(t, store.AppendChunk(ctx, "shard-0", []domain.IngestEvent{event}, 17))
	require.NoError(t, store.MarkPublished(ctx, event.EventID))

	const handlerKind = "test.handler"
	candidates, err := store.SelectCandidates(ctx, handlerKind, "", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	claimed, err := store.ClaimBatch(ctx, tx, handlerKind, candidates)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.SettleAck(ctx, tx, handlerKind, []string{event.EventID}))
	require.NoError(t, tx.Commit(ctx))

	stillCandidates, err := store.SelectCandidates(ctx, handlerKind, "", 10)
	require.NoError(t, err)
	require.Empty(t, stillCandidates, "an acked event must not be re-offered to the same handler")
}

func TestMarkCommandPublishedGuardsConcurrentExecutors(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	commandKey := "rebalance:" + uuid.NewString()
	_, err := store.SelectPendingCommands(ctx, 1)
	require.NoError(t, err)

	_, execErr := store.Pool().Exec(ctx, `
		INSERT INTO domain.domain_outbox (command_key, kind, payload) VALUES ($1, 'rebalance', '{}')
	`, commandKey)
	require.NoError(t, execErr)

	firstUpdated, err := store.MarkCommandPublished(ctx, commandKey, "0xfirsthash")
	require.NoError(t, err)
	require.True(t, firstUpdated)

	secondUpdated, err := store.MarkCommandPublished(ctx, commandKey, "0xsecondhash")
	require.NoError(t, err)
	require.False(t, secondUpdated, "a command already published must not be claimed twice")
}
