// Package config loads every environment input spec.md §6 enumerates, following
// join-service's fail-fast, typed-getter style rather than a reflection-based
// config library.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Subscription mirrors domain.Subscription for env-file decoding without the
// config package importing domain (config is the lowest-level package).
type Subscription struct {
	Address string `json:"address,omitempty"`
	Topic0  string `json:"topic0,omitempty"`
}

type Config struct {
	AppEnv string
	Port   int

	DBDSN string

	RPCReadURL  string
	RPCWriteURL string

	PollIntervalMS int
	StepInit       uint64
	StepMin        uint64
	StepMax        uint64

	RPSReadMax  int
	RPSWriteMax int

	AddressShardCount int
	Subscriptions     []Subscription

	ExecutorEnabled bool

	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.Port = getInt("PORT", 9090)

	cfg.DBDSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.RPCReadURL = getEnv("RPC_READ_URL", "")
	cfg.RPCWriteURL = getEnv("RPC_WRITE_URL", "")

	cfg.PollIntervalMS = getInt("POLL_INTERVAL_MS", 300)
	cfg.StepInit = getUint("STEP_INIT", 1000)
	cfg.StepMin = getUint("STEP_MIN", 1)
	cfg.StepMax = getUint("STEP_MAX", 20000)

	cfg.RPSReadMax = getInt("RPC_RPS_READ_MAX", 20)
	cfg.RPSWriteMax = getInt("RPC_RPS_WRITE_MAX", 5)

	cfg.AddressShardCount = getInt("ADDRESS_SHARD_COUNT", 1)

	subsRaw := strings.TrimSpace(os.Getenv("SUBSCRIPTIONS_JSON"))
	if subsRaw != "" {
		if err := json.Unmarshal([]byte(subsRaw), &cfg.Subscriptions); err != nil {
			return nil, fmt.Errorf("invalid SUBSCRIPTIONS_JSON: %w", err)
		}
	}

	cfg.ExecutorEnabled = getBool("EXECUTOR_ENABLED", true)
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.RPCReadURL == "" {
		return nil, fmt.Errorf("missing RPC_READ_URL")
	}
	if cfg.StepMin == 0 {
		return nil, fmt.Errorf("STEP_MIN must be >= 1")
	}
	if cfg.StepMax < cfg.StepMin {
		return nil, fmt.Errorf("STEP_MAX must be >= STEP_MIN")
	}

	return cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getUint(k string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		panic(fmt.Errorf("invalid boolean env %s=%q", k, v))
	}
}
