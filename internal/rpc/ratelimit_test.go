package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsBurst(t *testing.T) {
	tb := NewTokenBucket(10, 5)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, tb.Take(ctx))
	}
}

func TestTokenBucketDefaultsBurstToRPSMax(t *testing.T) {
	tb := NewTokenBucket(3, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Take(ctx))
	}
}

func TestTokenBucketBlocksPastContextDeadline(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tb.Take(ctx))

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer shortCancel()
	err := tb.Take(shortCtx)
	require.Error(t, err, "bucket should still be empty and the short deadline should expire first")
}
