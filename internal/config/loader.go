package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. file (YAML) if PATINA_CONFIG is set
//  3. env (prefix PATINA_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PATINA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: PATINA_ADDR, PATINA_QUEUE_SIZE, ...
	// Map env keys like PATINA_QUEUE_SIZE -> queue_size, matching the
	// koanf tags on the struct.
	envProvider := env.Provider("PATINA_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "patina_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EloK <= 0:
		return fmt.Errorf("%w: elo_k must be positive", ErrInvalidConfig)
	case c.BaselineElo <= 0:
		return fmt.Errorf("%w: baseline_elo must be positive", ErrInvalidConfig)
	case c.Weights.Elo <= 0 || c.Weights.Slider <= 0 || c.Weights.Endorsement <= 0:
		return fmt.Errorf("%w: component weights must be positive", ErrInvalidConfig)
	case !c.Mode().Valid():
		return fmt.Errorf("%w: scoring_mode must be bootstrap or full", ErrInvalidConfig)
	case c.MinActivity < 0:
		return fmt.Errorf("%w: min_activity must not be negative", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
