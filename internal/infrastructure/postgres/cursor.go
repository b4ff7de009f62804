package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// GetCursor reads the shard's high-water mark. A missing row (first poll ever)
// reports ok=false and hwm=0; the scanner's append transaction lazily creates the
// row on its first successful commit.
func (s *Store) GetCursor(ctx context.Context, shardID string) (hwm uint64, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT last_processed_block FROM infra.cursors WHERE id = $1
	`, shardID).Scan(&hwm)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return hwm, true, nil
}
