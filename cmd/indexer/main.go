package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/onchainlabs/logindexer/internal/config"
	"github.com/onchainlabs/logindexer/internal/dispatcher"
	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/executor"
	"github.com/onchainlabs/logindexer/internal/infrastructure/postgres"
	"github.com/onchainlabs/logindexer/internal/ingest"
	"github.com/onchainlabs/logindexer/internal/outbox"
	"github.com/onchainlabs/logindexer/internal/pkg/logger"
	"github.com/onchainlabs/logindexer/internal/pkg/metrics"
	"github.com/onchainlabs/logindexer/internal/platform/migrate"
	"github.com/onchainlabs/logindexer/internal/rpc"
	"github.com/onchainlabs/logindexer/internal/transport/rest"

	"github.com/onchainlabs/logindexer/examples/erc20balances"
)

// wireRPCMetrics feeds rpc_requests_total, rpc_errors_total, the per-method
// latency histograms, and cb_open_seconds{pool} from pool's own call hook and
// breaker, the same gauge published symmetrically for both the read and
// write pools.
func wireRPCMetrics(pool *rpc.Pool, poolName string) {
	pool.OnCall(func(method string, callErr error, d time.Duration) {
		var latency prometheus.Histogram
		switch method {
		case "blockNumber":
			latency = metrics.HeadFetchLatency
		case "getLogs":
			latency = metrics.LogFetchLatency
		}
		metrics.RecordRPCCall(method, callErr, d, latency)
		metrics.CircuitOpenSeconds.WithLabelValues(poolName).Set(pool.Breaker().OpenSeconds())
	})
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: indexer <ingest|publisher|dispatch|executor|serve|replay|reset-dlq|status|migrate> [flags]")
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}
	logger.Init()
	log := logger.Logger.With().Str("component", cmd).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exitCode int
	switch cmd {
	case "migrate":
		exitCode = runMigrate(rootCtx, cfg)
	case "ingest":
		exitCode = runIngest(rootCtx, cfg, args)
	case "publisher":
		exitCode = runPublisher(rootCtx, cfg, log)
	case "dispatch":
		exitCode = runDispatch(rootCtx, cfg, args)
	case "executor":
		exitCode = runExecutor(rootCtx, cfg, log)
	case "serve":
		exitCode = runServe(rootCtx, cfg, log)
	case "replay":
		exitCode = runReplay(rootCtx, cfg, args)
	case "reset-dlq":
		exitCode = runResetDLQ(rootCtx, cfg, args)
	case "status":
		exitCode = runStatus(rootCtx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		exitCode = 2
	}

	os.Exit(exitCode)
}

func connect(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	return postgres.Connect(ctx, cfg.DBDSN)
}

func runMigrate(ctx context.Context, cfg *config.Config) int {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer pool.Close()
	if err := migrate.Apply(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	return 0
}

func runIngest(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	shard := fs.String("shard", "default:shard-0", "cursor shard id")
	_ = fs.Parse(args)

	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	readPool := rpc.NewReadPool(rpc.DefaultPoolConfig(cfg.RPCReadURL))
	wireRPCMetrics(readPool.Pool, "read")
	scanner := ingest.New(*shard, readPool, store, cfg.Subscriptions, cfg.AddressShardCount, cfg, logger.WithShard(*shard))

	if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "scanner: %v\n", err)
		return 1
	}
	return 0
}

func runPublisher(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	sink, err := outbox.NewRabbitMQSink(os.Getenv("RABBITMQ_URL"), "logindexer.ingest", "ingest.event")
	if err != nil {
		fmt.Fprintf(os.Stderr, "rabbitmq sink: %v\n", err)
		return 1
	}
	defer sink.Close()

	pub := outbox.New(store, sink, log)
	if err := pub.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "publisher: %v\n", err)
		return 1
	}
	return 0
}

func runDispatch(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	handlerKind := fs.String("handler", erc20balances.HandlerKind, "handler kind to run")
	selector := fs.String("selector", "", "partition selector prefix")
	_ = fs.Parse(args)

	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	handler := resolveHandler(*handlerKind)
	if handler == nil {
		fmt.Fprintf(os.Stderr, "%v: %q\n", domain.ErrUnknownHandlerKind, *handlerKind)
		return 2
	}

	d := dispatcher.New(*handlerKind, *selector, handler, store, logger.WithHandlerKind(*handlerKind))
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "dispatcher: %v\n", err)
		return 1
	}
	return 0
}

func resolveHandler(kind string) dispatcher.Handler {
	switch kind {
	case erc20balances.HandlerKind:
		return erc20balances.Handler
	default:
		return nil
	}
}

func runExecutor(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	writePool := rpc.NewWritePool(rpc.DefaultPoolConfig(cfg.RPCWriteURL))
	wireRPCMetrics(writePool.Pool, "write")

	// Signing and gas/nonce assignment belong to the business context that
	// enqueued the command; the core only ever sees the pre-signed raw
	// transaction it already stored as the command's payload.
	build := func(_ context.Context, row domain.DomainOutboxRow) ([]byte, error) {
		var body struct {
			RawTx string `json:"raw_tx"`
		}
		if err := json.Unmarshal(row.Payload, &body); err != nil {
			return nil, fmt.Errorf("decode domain outbox payload for %s: %w", row.CommandKey, err)
		}
		return []byte(strings.TrimPrefix(body.RawTx, "0x")), nil
	}

	exec := executor.New(store, writePool, build, cfg.ExecutorEnabled, log)
	if err := exec.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "executor: %v\n", err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	readPool := rpc.NewReadPool(rpc.DefaultPoolConfig(cfg.RPCReadURL))
	wireRPCMetrics(readPool.Pool, "read")

	handlerKinds := []string{erc20balances.HandlerKind}
	router := rest.NewRouter(store, readPool, handlerKinds)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return 0
}

func runReplay(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	handlerKind := fs.String("handler", "", "handler kind")
	from := fs.Uint64("from", 0, "from block, inclusive")
	to := fs.Uint64("to", 0, "to block, inclusive")
	_ = fs.Parse(args)

	if *handlerKind == "" || *to < *from {
		fmt.Fprintln(os.Stderr, "usage: indexer replay --handler=H --from=N --to=M")
		return 2
	}

	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	inserted, reset, err := store.ReplayRange(ctx, *handlerKind, *from, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}
	fmt.Printf("inserted=%d reset=%d\n", inserted, reset)
	return 0
}

func runResetDLQ(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("reset-dlq", flag.ExitOnError)
	handlerKind := fs.String("handler", "", "handler kind")
	eventsCSV := fs.String("events", "", "comma-separated event ids")
	_ = fs.Parse(args)

	if *handlerKind == "" || *eventsCSV == "" {
		fmt.Fprintln(os.Stderr, "usage: indexer reset-dlq --handler=H --events=e1,e2,...")
		return 2
	}

	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	eventIDs := strings.Split(*eventsCSV, ",")
	n, err := store.ResetToPending(ctx, *handlerKind, eventIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reset-dlq: %v\n", err)
		return 1
	}
	fmt.Printf("reset=%d\n", n)
	return 0
}

// statusDump is the CLI's status-dump payload, encoded the same shape as the
// /status HTTP route's statusResponse so both surfaces agree on field names.
type statusDump struct {
	Head            *uint64                     `json:"head,omitempty"`
	HeadError       string                      `json:"head_error,omitempty"`
	Cursors         []postgres.CursorRow        `json:"cursors"`
	PendingOutbox   int64                       `json:"pending_outbox"`
	PendingCommands int64                       `json:"pending_domain_commands"`
	InboxByHandler  map[string]map[string]int64 `json:"inbox_by_handler,omitempty"`
}

func runStatus(ctx context.Context, cfg *config.Config) int {
	store, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer store.Close()

	dump := statusDump{}

	headCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	readPool := rpc.NewReadPool(rpc.DefaultPoolConfig(cfg.RPCReadURL))
	if head, headErr := readPool.GetHeadBlock(headCtx); headErr != nil {
		dump.HeadError = headErr.Error()
	} else {
		dump.Head = &head
	}
	cancel()

	dump.Cursors, err = store.AllCursors(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	dump.PendingOutbox, err = store.PendingOutboxCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	dump.PendingCommands, err = store.PendingCommandCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	counts, err := store.InboxStatusCounts(ctx, erc20balances.HandlerKind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	byStatus := make(map[string]int64, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	dump.InboxByHandler = map[string]map[string]int64{erc20balances.HandlerKind: byStatus}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		fmt.Fprintf(os.Stderr, "status: encode: %v\n", err)
		return 1
	}
	return 0
}
