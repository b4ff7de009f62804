// Package outbox implements the Ingest Publisher: it drains published=NULL
// ingest_outbox rows in event_id order and hands each to a transport sink,
// stamping published_at regardless of the sink's outcome.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/onchainlabs/logindexer/internal/infrastructure/postgres"
)

// Sink is the transport boundary the publisher pushes event_ids across. A
// RabbitMQ-backed implementation lives in rabbitmq.go; tests use a fake.
type Sink interface {
	Publish(ctx context.Context, eventID string) error
}

// Store is the persistence surface the publisher needs.
type Store interface {
	SelectUnpublished(ctx context.Context, batchSize int) ([]postgres.PendingOutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
}

const (
	defaultBatchSize = 500
	idleSleep        = 250 * time.Millisecond
)

type Publisher struct {
	Store     Store
	Sink      Sink
	BatchSize int
	log       zerolog.Logger
}

func New(store Store, sink Sink, log zerolog.Logger) *Publisher {
	return &Publisher{Store: store, Sink: sink, BatchSize: defaultBatchSize, log: log}
}

// Run loops until ctx is cancelled, publishing one batch per pass.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := p.runOnce(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("publisher batch failed")
		}
		if n == 0 {
			if !sleepCtx(ctx, idleSleep) {
				return ctx.Err()
			}
		}
	}
}

// runOnce selects up to BatchSize unpublished rows and attempts delivery for
// each. published_at is stamped whether or not the sink call succeeds — the
// dispatcher's own inbox is the system's exactly-once boundary, not this one.
func (p *Publisher) runOnce(ctx context.Context) (int, error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	pending, err := p.Store.SelectUnpublished(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	for _, row := range pending {
		if err := p.Sink.Publish(ctx, row.EventID); err != nil {
			p.log.Warn().Err(err).Str("event_id", row.EventID).Msg("publish attempt failed; stamping published_at anyway")
		}
		if err := p.Store.MarkPublished(ctx, row.EventID); err != nil {
			return len(pending), err
		}
	}

	return len(pending), nil
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
