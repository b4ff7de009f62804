// Package executor implements the Domain Executor: it submits pending domain
// commands as on-chain transactions exactly once per command_key, guarded by
// an UPDATE ... WHERE published_at IS NULL idempotency check rather than a
// pre-submission lock.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/pkg/metrics"
)

const (
	defaultLimit = 100
	idleSleep    = 300 * time.Millisecond
)

// TxBuilder turns a pending domain command into a pre-signed raw transaction.
// Nonce, gas, and signing all live behind this boundary, out of the executor's
// concern.
type TxBuilder func(ctx context.Context, row domain.DomainOutboxRow) ([]byte, error)

// Store is the persistence surface the executor needs.
type Store interface {
	SelectPendingCommands(ctx context.Context, limit int) ([]domain.DomainOutboxRow, error)
	MarkCommandPublished(ctx context.Context, commandKey, txHash string) (bool, error)
	PendingCommandCount(ctx context.Context) (int64, error)
}

// Executor runs the submission loop over one domain_outbox table.
type Executor struct {
	Store   Store
	Write   domain.WriteClient
	Build   TxBuilder
	Limit   int
	Enabled bool

	log zerolog.Logger
}

func New(store Store, write domain.WriteClient, build TxBuilder, enabled bool, log zerolog.Logger) *Executor {
	return &Executor{Store: store, Write: write, Build: build, Limit: defaultLimit, Enabled: enabled, log: log}
}

// Run loops until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := e.runOnce(ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("executor iteration failed")
		}
		if n == 0 {
			if !sleepCtx(ctx, idleSleep) {
				return ctx.Err()
			}
		}
	}
}

// runOnce reports the pending-command gauge, then submits up to Limit
// commands. When the executor is administratively disabled it still reports
// the gauge but submits nothing, letting handlers keep enqueueing commands
// while the operator drains for maintenance.
func (e *Executor) runOnce(ctx context.Context) (int, error) {
	count, err := e.Store.PendingCommandCount(ctx)
	if err != nil {
		return 0, err
	}
	metrics.DomainOutboxUnpublished.Set(float64(count))

	if !e.Enabled {
		e.log.Debug().Err(domain.ErrExecutorDisabled).Msg("skipping submission pass")
		return 0, nil
	}

	limit := e.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := e.Store.SelectPendingCommands(ctx, limit)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, row := range rows {
		raw, err := e.Build(ctx, row)
		if err != nil {
			e.log.Warn().Err(err).Str("command_key", row.CommandKey).Msg("build transaction failed")
			continue
		}

		txHash, err := e.Write.SendRawTransaction(ctx, raw)
		if err != nil {
			e.log.Warn().Err(err).Str("command_key", row.CommandKey).Msg("submit transaction failed")
			continue
		}

		updated, err := e.Store.MarkCommandPublished(ctx, row.CommandKey, txHash)
		if err != nil {
			return submitted, fmt.Errorf("mark command published: %w", err)
		}
		if !updated {
			e.log.Info().Str("command_key", row.CommandKey).Msg("command already published by another executor")
			continue
		}
		submitted++
		e.log.Info().Str("command_key", row.CommandKey).Str("tx_hash", txHash).Msg("command submitted")
	}

	return submitted, nil
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
