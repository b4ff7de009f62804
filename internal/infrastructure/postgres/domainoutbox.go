package postgres

import (
	"context"

	"github.com/onchainlabs/logindexer/internal/domain"
)

// SelectPendingCommands returns the first limit domain_outbox rows with
// published_at IS NULL, ordered by command_key ASC.
func (s *Store) SelectPendingCommands(ctx context.Context, limit int) ([]domain.DomainOutboxRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT command_key, kind, payload, published_at, tx_hash
		FROM domain.domain_outbox
		WHERE published_at IS NULL
		ORDER BY command_key ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DomainOutboxRow
	for rows.Next() {
		var r domain.DomainOutboxRow
		if err := rows.Scan(&r.CommandKey, &r.Kind, &r.Payload, &r.PublishedAt, &r.TxHash); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkCommandPublished records the tx_hash under the WHERE published_at IS NULL
// guard: if another executor already finished this command_key, the update
// affects zero rows and this call reports that via the returned bool.
func (s *Store) MarkCommandPublished(ctx context.Context, commandKey, txHash string) (updated bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE domain.domain_outbox
		SET published_at = NOW(), tx_hash = $2
		WHERE command_key = $1 AND published_at IS NULL
	`, commandKey, txHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PendingCommandCount backs the domain_outbox_unpublished gauge.
func (s *Store) PendingCommandCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM domain.domain_outbox WHERE published_at IS NULL
	`).Scan(&count)
	return count, err
}
