// Package rpc implements the chain RPC adapter: a minimal JSON-RPC-over-HTTP
// client fronted by a token-bucket rate limiter, a failure-count circuit breaker,
// per-method deadlines, and one jittered retry for transport-level failures.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onchainlabs/logindexer/internal/domain"
)

// PoolConfig configures one Pool (read or write).
type PoolConfig struct {
	URL string

	RPSMax int
	Burst  int

	FailureThreshold int
	OpenDuration     time.Duration

	HeadTimeout    time.Duration // deadline for blockNumber
	GetLogsTimeout time.Duration // deadline for getLogs
	SendTxTimeout  time.Duration // deadline for sendRawTransaction
}

// DefaultPoolConfig matches the spec's suggested defaults (head poll <= 1s,
// get_logs <= 15s, generous deadline for raw tx submission).
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:              url,
		RPSMax:           20,
		Burst:            20,
		FailureThreshold: 5,
		OpenDuration:     5 * time.Second,
		HeadTimeout:      1 * time.Second,
		GetLogsTimeout:   15 * time.Second,
		SendTxTimeout:    10 * time.Second,
	}
}

// Pool is a JSON-RPC client wrapped by the layered RPC-adapter policies: rate
// limit, circuit breaker, per-call deadline, with one jittered retry on a
// transport-level failure.
type Pool struct {
	cfg     PoolConfig
	http    *http.Client
	limiter *TokenBucket
	breaker *CircuitBreaker

	onCall func(method string, err error, d time.Duration) // metrics hook, optional
}

// NewPool builds a Pool from cfg. Both the read pool and the write pool in the
// adapter are instances of this same type, configured independently per spec §4.1.
func NewPool(cfg PoolConfig) *Pool {
	return &Pool{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: NewTokenBucket(float64(cfg.RPSMax), cfg.Burst),
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.OpenDuration),
	}
}

// OnCall registers a callback invoked once per call, after any retry, and also
// when the circuit breaker rejects a call; it feeds rpc_requests_total /
// rpc_errors_total and the latency histograms.
func (p *Pool) OnCall(fn func(method string, err error, d time.Duration)) {
	p.onCall = fn
}

// Breaker exposes the pool's breaker for the cb_open_seconds{pool} gauge.
func (p *Pool) Breaker() *CircuitBreaker { return p.breaker }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call runs one JSON-RPC method through rate limit -> circuit breaker -> deadline,
// with a single jittered retry when the transport itself fails (connection reset,
// DNS failure, etc). A circuit-open rejection, a protocol error, or a context
// deadline are all surfaced verbatim and are never retried here; the scanner's
// outer loop decides what to do about them.
func (p *Pool) call(ctx context.Context, method string, timeout time.Duration, params []any) (json.RawMessage, error) {
	if err := p.limiter.Take(ctx); err != nil {
		return nil, err
	}

	if !p.breaker.Allow() {
		p.recordCall(method, domain.ErrCircuitOpen, 0)
		return nil, domain.ErrCircuitOpen
	}

	start := time.Now()
	result, err := p.doCallWithRetry(ctx, method, timeout, params)
	d := time.Since(start)

	if err != nil {
		p.breaker.RecordFailure()
	} else {
		p.breaker.RecordSuccess()
	}
	p.recordCall(method, err, d)
	return result, err
}

func (p *Pool) doCallWithRetry(ctx context.Context, method string, timeout time.Duration, params []any) (json.RawMessage, error) {
	result, err := p.doCall(ctx, method, timeout, params)
	if err == nil || !isTransportErr(err) {
		return result, err
	}

	// one jittered retry for transport-level failures only
	jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return nil, domain.ErrTimeout
	}
	return p.doCall(ctx, method, timeout, params)
}

func (p *Pool) doCall(ctx context.Context, method string, timeout time.Duration, params []any) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, domain.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	if rpcResp.Error != nil {
		return nil, &domain.RpcError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	return rpcResp.Result, nil
}

func (p *Pool) recordCall(method string, err error, d time.Duration) {
	if p.onCall != nil {
		p.onCall(method, err, d)
	}
}

func isTransportErr(err error) bool {
	return errors.Is(err, domain.ErrTransport)
}

// ReadPool implements domain.ReadClient over a Pool.
type ReadPool struct{ *Pool }

// NewReadPool builds the read-side RPC adapter.
func NewReadPool(cfg PoolConfig) *ReadPool {
	return &ReadPool{Pool: NewPool(cfg)}
}

// GetHeadBlock calls eth-style blockNumber, decoding the hex-encoded height.
func (r *ReadPool) GetHeadBlock(ctx context.Context) (uint64, error) {
	raw, err := r.call(ctx, "blockNumber", r.cfg.HeadTimeout, nil)
	if err != nil {
		return 0, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return parseHexUint(hex)
}

// GetLogs calls getLogs with the filter's bounds (and address/topic0 if set),
// decoding every field the spec lists as bit-exact.
func (r *ReadPool) GetLogs(ctx context.Context, filter domain.LogFilter) ([]domain.Log, error) {
	params := map[string]any{
		"fromBlock": toHex(filter.FromBlock),
		"toBlock":   toHex(filter.ToBlock),
	}
	if filter.Address != "" {
		params["address"] = strings.ToLower(filter.Address)
	}
	if filter.Topic0 != "" {
		params["topics"] = []string{strings.ToLower(filter.Topic0)}
	}

	raw, err := r.call(ctx, "getLogs", r.cfg.GetLogsTimeout, []any{params})
	if err != nil {
		return nil, err
	}

	var wire []wireLog
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	logs := make([]domain.Log, 0, len(wire))
	for _, w := range wire {
		l, err := w.decode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

type wireLog struct {
	Address          string   `json:"address"`
	BlockHash        string   `json:"blockHash"`
	BlockNumber      string   `json:"blockNumber"`
	Data             string   `json:"data"`
	LogIndex         string   `json:"logIndex"`
	Topics           []string `json:"topics"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex string   `json:"transactionIndex"`
}

func (w wireLog) decode() (domain.Log, error) {
	blockNumber, err := parseHexUint(w.BlockNumber)
	if err != nil {
		return domain.Log{}, err
	}
	logIndex, err := parseHexUint(w.LogIndex)
	if err != nil {
		return domain.Log{}, err
	}
	txIndex, err := parseHexUint(w.TransactionIndex)
	if err != nil {
		return domain.Log{}, err
	}

	return domain.Log{
		Address:          strings.ToLower(w.Address),
		BlockHash:        strings.ToLower(w.BlockHash),
		BlockNumber:      blockNumber,
		Data:             w.Data,
		LogIndex:         logIndex,
		Topics:           lowerAll(w.Topics),
		TransactionHash:  strings.ToLower(w.TransactionHash),
		TransactionIndex: txIndex,
	}, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func toHex(v uint64) string {
	if v == 0 {
		return "0x0"
	}
	return "0x" + strconv.FormatUint(v, 16)
}

// WritePool implements domain.WriteClient over a Pool.
type WritePool struct{ *Pool }

// NewWritePool builds the write-side RPC adapter.
func NewWritePool(cfg PoolConfig) *WritePool {
	return &WritePool{Pool: NewPool(cfg)}
}

// SendRawTransaction submits a pre-signed transaction and returns its hash. Nonce,
// gas, and signing are the caller's concern; this method treats raw as opaque.
func (w *WritePool) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	hexRaw := "0x" + hex.EncodeToString(raw)
	result, err := w.call(ctx, "sendRawTransaction", w.cfg.SendTxTimeout, []any{hexRaw})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return strings.ToLower(txHash), nil
}
