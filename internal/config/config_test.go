package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/indexer")
	t.Setenv("RPC_READ_URL", "http://localhost:8545")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, uint64(1000), cfg.StepInit)
	require.Equal(t, uint64(1), cfg.StepMin)
	require.Equal(t, uint64(20000), cfg.StepMax)
	require.True(t, cfg.ExecutorEnabled)
}

func TestLoadMissingDatabaseURLFails(t *testing.T) {
	t.Setenv("RPC_READ_URL", "http://localhost:8545")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadMissingRPCReadURLFails(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/indexer")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsStepMaxBelowStepMin(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STEP_MIN", "100")
	t.Setenv("STEP_MAX", "10")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsZeroStepMin(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STEP_MIN", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesSubscriptionsJSON(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUBSCRIPTIONS_JSON", `[{"address":"0xabc","topic0":"0xdead"}]`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Subscriptions, 1)
	require.Equal(t, "0xabc", cfg.Subscriptions[0].Address)
}

func TestLoadRejectsMalformedSubscriptionsJSON(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUBSCRIPTIONS_JSON", `not-json`)

	_, err := Load()
	require.Error(t, err)
}

func TestPollIntervalConvertsMillisToDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL_MS", "500")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, int64(500), cfg.PollInterval().Milliseconds())
}
