// Package dispatcher implements the central pipeline component: it delivers
// every published event to a registered handler exactly once and records
// terminal inbox state in the same transaction as the handler's own effects.
package dispatcher

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/pkg/metrics"
)

const (
	defaultBatchSize   = 200
	defaultMaxAttempts = 3
	idleSleep          = 200 * time.Millisecond
)

// Handler processes one claimed batch inside the dispatcher's transaction. Side
// effects are only permitted through tx; a non-nil error fails the whole batch.
type Handler func(ctx context.Context, events []domain.DispatchEvent, tx pgx.Tx) error

// Store is the persistence surface the dispatcher needs.
type Store interface {
	SelectCandidates(ctx context.Context, handlerKind, partitionSelector string, batchSize int) ([]domain.DispatchEvent, error)
	BeginTx(ctx context.Context) (pgx.Tx, error)
	ClaimBatch(ctx context.Context, tx pgx.Tx, handlerKind string, candidates []domain.DispatchEvent) ([]domain.DispatchEvent, error)
	SettleAck(ctx context.Context, tx pgx.Tx, handlerKind string, eventIDs []string) error
	SettleFail(ctx context.Context, tx pgx.Tx, handlerKind string, eventIDs []string, handlerErr string, maxAttempts int) (dlqCount int64, err error)
}

// Dispatcher runs one worker over one (handler_kind, partition_selector) pair.
// Strict per-partition serialization across multiple workers sharing a
// selector prefix is left to deployment convention, not enforced here.
type Dispatcher struct {
	HandlerKind       string
	PartitionSelector string
	Handler           Handler
	Store             Store
	BatchSize         int
	MaxAttempts       int

	log zerolog.Logger
}

func New(handlerKind, partitionSelector string, handler Handler, store Store, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		HandlerKind:       handlerKind,
		PartitionSelector: partitionSelector,
		Handler:           handler,
		Store:             store,
		BatchSize:         defaultBatchSize,
		MaxAttempts:       defaultMaxAttempts,
		log:               log,
	}
}

// Run loops until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := d.runOnce(ctx)
		if err != nil {
			d.log.Warn().Err(err).Str("handler_kind", d.HandlerKind).Msg("dispatcher batch failed")
		}
		if processed == 0 {
			if !sleepCtx(ctx, idleSleep) {
				return ctx.Err()
			}
		}
	}
}

// runOnce is one pass of the selection -> claim -> handler -> settle
// transaction described in spec.md §4.4. It returns the number of events
// claimed (zero means either nothing eligible or another worker won the race).
func (d *Dispatcher) runOnce(ctx context.Context) (int, error) {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	candidates, err := d.Store.SelectCandidates(ctx, d.HandlerKind, d.PartitionSelector, batchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := d.Store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	claimed, err := d.Store.ClaimBatch(ctx, tx, d.HandlerKind, candidates)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		// another worker claimed this batch first; nothing more to do.
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		committed = true
		return 0, nil
	}

	eventIDs := make([]string, len(claimed))
	for i, e := range claimed {
		eventIDs[i] = e.EventID
	}

	if handlerErr := d.Handler(ctx, claimed, tx); handlerErr != nil {
		dlqCount, err := d.Store.SettleFail(ctx, tx, d.HandlerKind, eventIDs, handlerErr.Error(), maxAttempts)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		committed = true
		metrics.InboxAttemptsTotal.WithLabelValues(d.HandlerKind, "fail").Add(float64(len(claimed)))
		if dlqCount > 0 {
			metrics.DLQTotal.WithLabelValues(d.HandlerKind).Add(float64(dlqCount))
		}
		d.log.Warn().Err(handlerErr).Int("count", len(claimed)).Int64("dlq", dlqCount).Str("handler_kind", d.HandlerKind).Msg("handler failed, settled FAIL/DLQ")
		return len(claimed), nil
	}

	if err := d.Store.SettleAck(ctx, tx, d.HandlerKind, eventIDs); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true

	metrics.InboxAttemptsTotal.WithLabelValues(d.HandlerKind, "ack").Add(float64(len(claimed)))
	d.log.Info().Int("count", len(claimed)).Str("handler_kind", d.HandlerKind).Msg("batch acked")
	return len(claimed), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
