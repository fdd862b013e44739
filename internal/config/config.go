// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New; Load layers an optional YAML file and env vars.
// - External errors are wrapped via this package's sentinel kinds.
package config

import (
	"runtime"

	"github.com/patinalabs/patina/internal/domain/elo"
	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory vote queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of vote workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the vote-event idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the rating store.
	ShardCount int `koanf:"shard_count"`

	// EloK is the Elo K-factor applied to comparison outcomes.
	EloK float64 `koanf:"elo_k"`

	// BaselineElo is the rating assigned to newly created items.
	BaselineElo float64 `koanf:"baseline_elo"`

	// Weights sets the composite score component weights.
	Weights scoring.Weights `koanf:"weights"`

	// ScoringMode is bootstrap or full; bootstrap relaxes confidence and
	// leaderboard eligibility for young deployments.
	ScoringMode string `koanf:"scoring_mode"`

	// MinActivity is the total-signal threshold for backfill eligibility.
	MinActivity int `koanf:"min_activity"`

	// Backfill run defaults.
	BackfillBatchSize   int `koanf:"backfill_batch_size"`
	BackfillMaxAttempts int `koanf:"backfill_max_attempts"`
	BackfillWorkers     int `koanf:"backfill_workers"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9090",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          500_000,
		ShardCount:          8,
		EloK:                elo.DefaultK,
		BaselineElo:         elo.DefaultBaseline,
		Weights:             scoring.DefaultWeights(),
		ScoringMode:         string(types.ModeFull),
		MinActivity:         1,
		BackfillBatchSize:   100,
		BackfillMaxAttempts: 3,
		BackfillWorkers:     4,
		MaxLeaderboardLimit: 100,
	}
}

// Mode returns the configured scoring mode as its typed form.
func (c *Config) Mode() types.ScoringMode {
	return types.ScoringMode(c.ScoringMode)
}
