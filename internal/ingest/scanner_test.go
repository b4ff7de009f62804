package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/onchainlabs/logindexer/internal/config"
	"github.com/onchainlabs/logindexer/internal/domain"
)

type fakeRead struct {
	head uint64
	logs []domain.Log
	err  error
}

func (f *fakeRead) GetHeadBlock(ctx context.Context) (uint64, error) { return f.head, nil }
func (f *fakeRead) GetLogs(ctx context.Context, filter domain.LogFilter) ([]domain.Log, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Log
	for _, l := range f.logs {
		if l.BlockNumber >= filter.FromBlock && l.BlockNumber <= filter.ToBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeStore struct {
	mu     sync.Mutex
	hwm    uint64
	events []domain.IngestEvent
}

func (f *fakeStore) GetCursor(ctx context.Context, shardID string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hwm, f.hwm > 0, nil
}

func (f *fakeStore) AppendChunk(ctx context.Context, shardID string, events []domain.IngestEvent, toBlock uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	for _, e := range f.events {
		seen[e.EventID] = true
	}
	for _, e := range events {
		if !seen[e.EventID] {
			f.events = append(f.events, e)
			seen[e.EventID] = true
		}
	}
	if toBlock > f.hwm {
		f.hwm = toBlock
	}
	return nil
}

func newTestScanner(read domain.ReadClient, store Store) *Scanner {
	cfg := &config.Config{PollIntervalMS: 1, StepInit: 10, StepMin: 1, StepMax: 20}
	return New("shard-0", read, store, nil, 1, cfg, zerolog.Nop())
}

func TestScannerBasicIngest(t *testing.T) {
	read := &fakeRead{head: 100}
	store := &fakeStore{}
	s := newTestScanner(read, store)

	advanced, err := s.iterate(context.Background())
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, uint64(10), store.hwm)
	require.Empty(t, store.events)

	s.widen()
	require.Equal(t, uint64(20), s.step)
}

func TestScannerEmptyRangeNoOp(t *testing.T) {
	read := &fakeRead{head: 10}
	store := &fakeStore{hwm: 10}
	s := newTestScanner(read, store)

	advanced, err := s.iterate(context.Background())
	require.NoError(t, err)
	require.False(t, advanced)
	require.Equal(t, uint64(10), store.hwm)
}

func TestScannerDuplicateLogsIgnored(t *testing.T) {
	log := domain.Log{
		Address:          "0xaaa",
		BlockHash:         "0xdead",
		BlockNumber:       16,
		LogIndex:          2,
		TransactionIndex:  1,
		Topics:            []string{"0xtopic"},
	}
	read := &fakeRead{head: 20, logs: []domain.Log{log}}
	store := &fakeStore{hwm: 10}
	s := newTestScanner(read, store)

	_, err := s.iterate(context.Background())
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	// rewind the cursor so the second pass re-covers blocks 11-20
	store.hwm = 10
	_, err = s.iterate(context.Background())
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	require.Equal(t, "0xdead:16:1:2", store.events[0].EventID)
}

func TestScannerNarrowOnFailure(t *testing.T) {
	s := newTestScanner(&fakeRead{}, &fakeStore{})
	s.step = 10
	s.narrow()
	require.Equal(t, uint64(5), s.step)
	s.narrow()
	require.Equal(t, uint64(2), s.step)
	s.narrow()
	require.Equal(t, uint64(1), s.step)
	s.narrow()
	require.Equal(t, uint64(1), s.step, "must saturate at step_min")
}

func TestScannerWidenSaturatesAtMax(t *testing.T) {
	s := newTestScanner(&fakeRead{}, &fakeStore{})
	s.step = 15
	s.widen()
	require.Equal(t, uint64(20), s.step, "must saturate at step_max")
}
