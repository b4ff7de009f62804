package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the RPC adapter. All are retriable at the caller's
// outer loop; none of them should crash a component.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrTimeout     = errors.New("rpc call deadline exceeded")
	ErrTransport   = errors.New("rpc transport failure")

	// ErrIdempotencyKeyMismatch signals a replayed command_key whose payload no
	// longer matches what was first recorded for it.
	ErrIdempotencyKeyMismatch = errors.New("idempotency key mismatch")

	// ErrUnknownHandlerKind is raised at startup when the dispatcher is asked to
	// run a handler_kind it has no registration for.
	ErrUnknownHandlerKind = errors.New("unknown handler kind")

	// ErrExecutorDisabled signals that on-chain submission attempts are
	// administratively disabled (draining for maintenance).
	ErrExecutorDisabled = errors.New("domain executor submission disabled")
)

// RpcError is a protocol-level error returned by the remote JSON-RPC endpoint
// itself, as opposed to a transport or timeout failure.
type RpcError struct {
	Code    int
	Message string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRetriable reports whether err belongs to the "transient remote" taxonomy from
// the error handling design: timeouts, circuit-open, transport failures, and
// protocol-level RPC errors are all retried by the caller on its next iteration.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) {
		return true
	}
	var rpcErr *RpcError
	return errors.As(err, &rpcErr)
}
