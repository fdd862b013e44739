package repository

import "time"

// storeConfig collects construction-time settings for MemStore.
type storeConfig struct {
	shardCount  int
	baselineElo float64
	now         func() time.Time
}

// Option applies a configuration option to the MemStore.
type Option func(*storeConfig)

// WithShardCount sets the number of shards in the store.
func WithShardCount(count int) Option {
	return func(c *storeConfig) {
		if count > 0 {
			c.shardCount = count
		}
	}
}

// WithBaselineElo sets the Elo rating assigned to newly created items.
func WithBaselineElo(elo float64) Option {
	return func(c *storeConfig) {
		if elo > 0 {
			c.baselineElo = elo
		}
	}
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}
