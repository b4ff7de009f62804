package postgres

import (
	"context"
)

// PendingOutboxEvent is one ingest_outbox row joined to its event, the unit the
// Ingest Publisher hands to the transport sink.
type PendingOutboxEvent struct {
	EventID string
}

// SelectUnpublished returns up to batchSize ingest_outbox rows with
// published_at IS NULL, ordered by event_id ASC. event_id begins with the block
// hash and carries block_number in unpadded decimal (see ingest.BuildEventID),
// so this is a lexical order that does not follow block order; the dispatcher
// orders its own selection by block_number.
func (s *Store) SelectUnpublished(ctx context.Context, batchSize int) ([]PendingOutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id
		FROM infra.ingest_outbox
		WHERE published_at IS NULL
		ORDER BY event_id ASC
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingOutboxEvent
	for rows.Next() {
		var e PendingOutboxEvent
		if err := rows.Scan(&e.EventID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps published_at regardless of the transport outcome —
// "attempted to publish" is the outbox contract; the dispatcher's own inbox is
// what provides exactly-once delivery downstream. Retrying publish here would
// duplicate transport delivery without adding safety.
func (s *Store) MarkPublished(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE infra.ingest_outbox SET published_at = NOW() WHERE event_id = $1
	`, eventID)
	return err
}
