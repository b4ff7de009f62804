package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/onchainlabs/logindexer/internal/domain"
)

// SelectCandidates is the partition-ordered consumption primitive: published
// events matching partitionSelector (a prefix match; empty matches everything)
// for which no InboxEntry exists yet under handlerKind, ordered by block_number
// ASC and capped at batchSize.
func (s *Store) SelectCandidates(ctx context.Context, handlerKind, partitionSelector string, batchSize int) ([]domain.DispatchEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.event_id, e.block_number, e.partition_key, e.address, e.topic0, e.payload
		FROM infra.ingest_events e
		JOIN infra.ingest_outbox o ON o.event_id = e.event_id
		WHERE o.published_at IS NOT NULL
		  AND e.partition_key LIKE $1
		  AND NOT EXISTS (
		      SELECT 1 FROM infra.inbox i
		      WHERE i.event_id = e.event_id AND i.handler_kind = $2
		  )
		ORDER BY e.block_number ASC
		LIMIT $3
	`, partitionSelector+"%", handlerKind, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DispatchEvent
	for rows.Next() {
		var d domain.DispatchEvent
		if err := rows.Scan(&d.EventID, &d.BlockNumber, &d.PartitionKey, &d.Address, &d.Topic0, &d.Payload); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BeginTx starts the per-batch dispatcher transaction.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// ClaimBatch inserts one PENDING InboxEntry per candidate, one INSERT per row,
// conflict on (event_id, handler_kind) -> do nothing, and returns only the
// candidates whose INSERT affected a row, preserving the candidates' order. An
// empty result means another worker already claimed this batch.
func (s *Store) ClaimBatch(ctx context.Context, tx pgx.Tx, handlerKind string, candidates []domain.DispatchEvent) ([]domain.DispatchEvent, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	claimed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		tag, err := tx.Exec(ctx, `
			INSERT INTO infra.inbox (event_id, handler_kind, status, attempts, block_number, partition_key, first_seen_at)
			VALUES ($1, $2, 'PENDING', 0, $3, $4, NOW())
			ON CONFLICT (event_id, handler_kind) DO NOTHING
		`, c.EventID, handlerKind, c.BlockNumber, c.PartitionKey)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			claimed[c.EventID] = true
		}
	}

	out := make([]domain.DispatchEvent, 0, len(claimed))
	for _, c := range candidates {
		if claimed[c.EventID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// SettleAck marks every claimed event ACK with attempts incremented and
// last_error cleared.
func (s *Store) SettleAck(ctx context.Context, tx pgx.Tx, handlerKind string, eventIDs []string) error {
	_, err := tx.Exec(ctx, `
		UPDATE infra.inbox
		SET status = 'ACK', attempts = attempts + 1, last_attempt_at = NOW(), last_error = NULL
		WHERE handler_kind = $1 AND event_id = ANY($2)
	`, handlerKind, eventIDs)
	return err
}

// SettleFail increments attempts and records the truncated error, moving the
// entry to DLQ once attempts reaches maxAttempts, else leaving it FAIL for a
// manual operator reset. dlqCount reports how many of eventIDs landed in DLQ
// on this call, so the caller can feed dlq_total{handler_kind}.
func (s *Store) SettleFail(ctx context.Context, tx pgx.Tx, handlerKind string, eventIDs []string, handlerErr string, maxAttempts int) (dlqCount int64, err error) {
	const maxErrorLen = 500
	if len(handlerErr) > maxErrorLen {
		handlerErr = handlerErr[:maxErrorLen]
	}
	handlerErr = strings.TrimSpace(handlerErr)

	rows, err := tx.Query(ctx, `
		UPDATE infra.inbox
		SET attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    last_error = $3,
		    status = CASE WHEN attempts + 1 >= $4 THEN 'DLQ' ELSE 'FAIL' END
		WHERE handler_kind = $1 AND event_id = ANY($2)
		RETURNING status
	`, handlerKind, eventIDs, handlerErr, maxAttempts)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if status == "DLQ" {
			dlqCount++
		}
	}
	return dlqCount, rows.Err()
}

// ResetToPending flips FAIL/DLQ rows for handlerKind back to PENDING, clearing
// last_error. Used by the operator-facing DLQ/FAIL reset tool.
func (s *Store) ResetToPending(ctx context.Context, handlerKind string, eventIDs []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE infra.inbox
		SET status = 'PENDING', last_error = NULL
		WHERE handler_kind = $1 AND event_id = ANY($2) AND status IN ('FAIL', 'DLQ')
	`, handlerKind, eventIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplayRange upserts PENDING inbox rows for every published event in
// [from, to] under handlerKind: inserted counts brand-new rows, reset counts
// rows that already existed and were moved back to PENDING.
func (s *Store) ReplayRange(ctx context.Context, handlerKind string, from, to uint64) (inserted, reset int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insTag, err := tx.Exec(ctx, `
		INSERT INTO infra.inbox (event_id, handler_kind, status, attempts, block_number, partition_key, first_seen_at)
		SELECT e.event_id, $3, 'PENDING', 0, e.block_number, e.partition_key, NOW()
		FROM infra.ingest_events e
		JOIN infra.ingest_outbox o ON o.event_id = e.event_id
		WHERE o.published_at IS NOT NULL
		  AND e.block_number BETWEEN $1 AND $2
		ON CONFLICT (event_id, handler_kind) DO NOTHING
	`, from, to, handlerKind)
	if err != nil {
		return 0, 0, err
	}

	resetTag, err := tx.Exec(ctx, `
		UPDATE infra.inbox i
		SET status = 'PENDING', last_error = NULL
		FROM infra.ingest_events e
		WHERE i.event_id = e.event_id
		  AND i.handler_kind = $3
		  AND e.block_number BETWEEN $1 AND $2
	`, from, to, handlerKind)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	// the UPDATE also touched the rows inserted above; only the others were reset
	return insTag.RowsAffected(), resetTag.RowsAffected() - insTag.RowsAffected(), nil
}

// InboxStatusCounts reports how many inbox rows sit in each status, for the
// status-dump control surface command.
func (s *Store) InboxStatusCounts(ctx context.Context, handlerKind string) (map[domain.InboxStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM infra.inbox WHERE handler_kind = $1 GROUP BY status
	`, handlerKind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.InboxStatus]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[domain.InboxStatus(status)] = count
	}
	return out, rows.Err()
}
