package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/ruleback/internal/stats"
)

// Config is the explicit engine configuration, passed at construction.
// Nothing in the engine reads process-wide state.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital"`
	MaxPositions   int     `yaml:"max_positions"`
	// MaxPositionPct caps one entry at this percentage of current equity,
	// on top of the even equity/max_positions split.
	MaxPositionPct float64 `yaml:"max_position_pct"`

	Guard GuardConfig  `yaml:"guard"`
	Stats stats.Config `yaml:"stats"`
}

// GuardConfig tunes the signal-explosion guard. The warmup check runs for
// each of the first WarmupDays dates; the periodic re-check runs every
// RecheckEvery dates over a trailing window with a tighter limit.
type GuardConfig struct {
	WarmupDays    int     `yaml:"warmup_days"`
	WarmupAvgMax  float64 `yaml:"warmup_avg_max"`
	RecheckEvery  int     `yaml:"recheck_every"`
	RecheckAvgMax float64 `yaml:"recheck_avg_max"`
}

// DefaultConfig returns the standard single-pool setup.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100_000,
		MaxPositions:   10,
		MaxPositionPct: 30,
		Guard: GuardConfig{
			WarmupDays:    10,
			WarmupAvgMax:  500,
			RecheckEvery:  30,
			RecheckAvgMax: 300,
		},
		Stats: stats.DefaultConfig(),
	}
}

// LoadConfig reads a Config from a YAML file, layered over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	return cfg, nil
}
