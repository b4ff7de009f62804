package postgres

import "context"

// CursorRow is one shard's high-water mark, for the status-dump command.
type CursorRow struct {
	ID                 string
	LastProcessedBlock uint64
}

// AllCursors lists every known shard cursor.
func (s *Store) AllCursors(ctx context.Context) ([]CursorRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, last_processed_block FROM infra.cursors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CursorRow
	for rows.Next() {
		var c CursorRow
		if err := rows.Scan(&c.ID, &c.LastProcessedBlock); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PendingOutboxCount backs the status dump's "pending ingest outbox" field.
func (s *Store) PendingOutboxCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM infra.ingest_outbox WHERE published_at IS NULL`).Scan(&count)
	return count, err
}
