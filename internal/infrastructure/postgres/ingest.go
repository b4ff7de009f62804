package postgres

import (
	"context"

	"github.com/onchainlabs/logindexer/internal/domain"
)

// AppendChunk is the scanner's step-6 transaction: upsert every event
// (conflict on event_id -> ignore), insert a paired outbox row for every event
// (same conflict policy), then advance the shard cursor to toBlock. All three
// writes commit together or not at all — a crash before commit replays the same
// range for free; a crash after commit never replays it.
func (s *Store) AppendChunk(ctx context.Context, shardID string, events []domain.IngestEvent, toBlock uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range events {
		tag, err := tx.Exec(ctx, `
			INSERT INTO infra.ingest_events
				(event_id, block_number, block_hash, address, topic0, partition_key, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (event_id) DO NOTHING
		`, e.EventID, e.BlockNumber, e.BlockHash, e.Address, e.Topic0, e.PartitionKey, e.Payload)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			// duplicate event from an overlapping scan range (Q1) — the outbox
			// row already exists too, nothing further to do for this event.
			continue
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO infra.ingest_outbox (event_id, published_at)
			VALUES ($1, NULL)
			ON CONFLICT (event_id) DO NOTHING
		`, e.EventID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO infra.cursors (id, last_processed_block)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_processed_block = GREATEST(infra.cursors.last_processed_block, EXCLUDED.last_processed_block)
	`, shardID, toBlock); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
