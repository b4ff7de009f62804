package rpc

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucket rate-limits outbound RPC calls per method pool. Tokens refill at
// rpsMax tokens/second up to burst capacity; Take blocks cooperatively until a
// token is available or the context is cancelled.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket configures a bucket refilling at rpsMax tokens/second. burst
// defaults to rpsMax when <= 0, matching the spec's "burst (default = rps_max)".
func NewTokenBucket(rpsMax float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = int(rpsMax)
		if burst <= 0 {
			burst = 1
		}
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rpsMax), burst)}
}

// Take blocks until one token is available, then decrements the bucket. Rate-limit
// waits are cooperative and are never surfaced to callers as an error taxonomy
// member — only context cancellation can interrupt a Take.
func (b *TokenBucket) Take(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}
