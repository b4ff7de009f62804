package domain

import "context"

// ReadClient is the capability interface the Ingest Scanner depends on. Concrete
// implementations wrap rate limiting, circuit breaking, and per-call deadlines;
// callers never see those policies directly.
type ReadClient interface {
	GetHeadBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)
}

// WriteClient is the capability interface the Domain Executor depends on. Nonce,
// gas, and signing are entirely the implementation's concern; the core only ever
// sees a tx_hash or an error.
type WriteClient interface {
	SendRawTransaction(ctx context.Context, raw []byte) (txHash string, err error)
}
