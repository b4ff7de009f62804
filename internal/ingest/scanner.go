package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/onchainlabs/logindexer/internal/config"
	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/pkg/metrics"
)

// Store is the persistence surface the scanner needs. Satisfied by
// *postgres.Store; narrowed here so tests can fake it without a database.
type Store interface {
	GetCursor(ctx context.Context, shardID string) (hwm uint64, ok bool, err error)
	AppendChunk(ctx context.Context, shardID string, events []domain.IngestEvent, toBlock uint64) error
}

// Scanner runs the adaptive log-range poll loop for one shard, described in
// spec.md §4.2: head fetch, range compute, fan-out getLogs, atomic append,
// step widen/narrow.
type Scanner struct {
	ShardID       string
	Read          domain.ReadClient
	Store         Store
	Subscriptions []config.Subscription
	ShardCount    int

	PollInterval time.Duration
	StepInit     uint64
	StepMin      uint64
	StepMax      uint64

	log zerolog.Logger

	step uint64
}

func New(shardID string, read domain.ReadClient, store Store, subs []config.Subscription, shardCount int, cfg *config.Config, log zerolog.Logger) *Scanner {
	return &Scanner{
		ShardID:       shardID,
		Read:          read,
		Store:         store,
		Subscriptions: subs,
		ShardCount:    shardCount,
		PollInterval:  cfg.PollInterval(),
		StepInit:      cfg.StepInit,
		StepMin:       cfg.StepMin,
		StepMax:       cfg.StepMax,
		log:           log,
		step:          cfg.StepInit,
	}
}

// Run loops until ctx is cancelled. Each iteration is one pass of the state
// machine in spec.md §4.2; suspension points are the head fetch, the log
// fetches, and the commit.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := s.iterate(ctx)
		if err != nil {
			s.narrow()
			if domain.IsRetriable(err) {
				s.log.Warn().Err(err).Uint64("step", s.step).Msg("scanner iteration failed, narrowing step")
			} else {
				s.log.Error().Err(err).Uint64("step", s.step).Msg("scanner iteration failed unexpectedly, narrowing step")
			}
			if !sleepCtx(ctx, s.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if !advanced {
			if !sleepCtx(ctx, s.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		s.widen()
	}
}

// iterate runs steps 1-6 of the state machine once. advanced is false when
// head <= hwm (nothing to do this pass) and true otherwise, including when
// the fetched range contained zero logs — the cursor still advances.
func (s *Scanner) iterate(ctx context.Context) (advanced bool, err error) {
	head, err := s.Read.GetHeadBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("get head block: %w", err)
	}

	hwm, _, err := s.Store.GetCursor(ctx, s.ShardID)
	if err != nil {
		return false, fmt.Errorf("get cursor: %w", err)
	}

	if head <= hwm {
		return false, nil
	}

	from := hwm + 1
	to := head
	if stepTo := from + s.step - 1; stepTo < to {
		to = stepTo
	}

	filters := s.buildFilters(from, to)

	logs, err := s.fetchAll(ctx, filters)
	if err != nil {
		return false, fmt.Errorf("fetch logs: %w", err)
	}

	events := make([]domain.IngestEvent, 0, len(logs))
	for _, l := range logs {
		payload, marshalErr := json.Marshal(l)
		if marshalErr != nil {
			return false, fmt.Errorf("marshal log payload: %w", marshalErr)
		}
		topic0 := ""
		if len(l.Topics) > 0 {
			topic0 = l.Topics[0]
		}
		events = append(events, domain.IngestEvent{
			EventID:      BuildEventID(l.BlockHash, l.BlockNumber, l.TransactionIndex, l.LogIndex),
			BlockNumber:  l.BlockNumber,
			BlockHash:    l.BlockHash,
			Address:      l.Address,
			Topic0:       topic0,
			PartitionKey: PartitionKey(l.Address, s.ShardCount),
			Payload:      payload,
		})
	}

	if err := s.Store.AppendChunk(ctx, s.ShardID, events, to); err != nil {
		return false, fmt.Errorf("append chunk: %w", err)
	}

	metrics.IndexerBacklog.WithLabelValues(s.ShardID).Set(float64(head - to))
	s.log.Info().Uint64("from", from).Uint64("to", to).Int("events", len(events)).Msg("scanner appended chunk")
	return true, nil
}

func (s *Scanner) buildFilters(from, to uint64) []domain.LogFilter {
	if len(s.Subscriptions) == 0 {
		return []domain.LogFilter{{FromBlock: from, ToBlock: to}}
	}
	filters := make([]domain.LogFilter, 0, len(s.Subscriptions))
	for _, sub := range s.Subscriptions {
		filters = append(filters, domain.LogFilter{
			FromBlock: from,
			ToBlock:   to,
			Address:   sub.Address,
			Topic0:    sub.Topic0,
		})
	}
	return filters
}

// fetchAll fans out step 5's getLogs calls concurrently across filters and
// flattens the results, matching the "concurrent gather" substitution called
// for in the design notes.
func (s *Scanner) fetchAll(ctx context.Context, filters []domain.LogFilter) ([]domain.Log, error) {
	type result struct {
		logs []domain.Log
		err  error
	}
	results := make([]result, len(filters))

	var wg sync.WaitGroup
	for i, f := range filters {
		wg.Add(1)
		go func(i int, f domain.LogFilter) {
			defer wg.Done()
			logs, err := s.Read.GetLogs(ctx, f)
			results[i] = result{logs: logs, err: err}
		}(i, f)
	}
	wg.Wait()

	var all []domain.Log
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.logs...)
	}
	return all, nil
}

func (s *Scanner) widen() {
	next := s.step * 2
	if next > s.StepMax || next < s.step {
		next = s.StepMax
	}
	s.step = next
}

func (s *Scanner) narrow() {
	next := s.step / 2
	if next < s.StepMin {
		next = s.StepMin
	}
	s.step = next
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
