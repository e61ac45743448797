package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game GameConfig `yaml:"game"`
}

// GameConfig tunes the session engine. Zero values fall back to the defaults
// below at wiring time.
type GameConfig struct {
	DefaultTimeLimit string `yaml:"defaultTimeLimit"` // per-question limit when the quiz sets none
	TickInterval     string `yaml:"tickInterval"`     // countdown broadcast granularity
	IdleWindow       string `yaml:"idleWindow"`       // auto-cancel after this long with zero connected players
	EvictionGrace    string `yaml:"evictionGrace"`    // join code kept resolvable after a terminal state
	MaxPlayers       int    `yaml:"maxPlayers"`
	StreakBonus      int    `yaml:"streakBonusPermille"` // multiplier increment per streak level, in 1/1000
	StreakCap        int    `yaml:"streakCap"`
}

// Engine defaults applied when the YAML leaves a knob unset.
const (
	DefaultTimeLimit     = 20 * time.Second
	DefaultTickInterval  = time.Second
	DefaultIdleWindow    = 5 * time.Minute
	DefaultEvictionGrace = 2 * time.Minute
	DefaultMaxPlayers    = 100
	DefaultStreakBonus   = 100 // +0.1x per level
	DefaultStreakCap     = 10
)

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns n unless it is non-positive, in which case fallback wins.
func IntOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
