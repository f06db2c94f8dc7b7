package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBonusWindow      = 300 * time.Second
	DefaultBonusFactor      = 1.2
	DefaultLockTTL          = 5 * time.Second
	DefaultRecomputeWorkers = 8
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Challenges struct {
		TTL string `yaml:"ttl"`
	} `yaml:"challenges"`
	Ledger struct {
		BonusWindow      string  `yaml:"bonus_window"`
		BonusFactor      float64 `yaml:"bonus_factor" validate:"gte=1"`
		LockTTL          string  `yaml:"lock_ttl"`
		RecomputeWorkers int     `yaml:"recompute_workers" validate:"min=1,max=64"`
	} `yaml:"ledger"`
}

// Default returns a config with the ledger defaults filled in.
func Default() Config {
	cfg := Config{}
	cfg.Ledger.BonusFactor = DefaultBonusFactor
	cfg.Ledger.RecomputeWorkers = DefaultRecomputeWorkers
	return cfg
}

// Load reads YAML config from path on top of Default and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// BonusWindow is the elapsed-time threshold under which first solves earn the bonus.
func (c Config) BonusWindow() time.Duration {
	return TTLDuration(c.Ledger.BonusWindow, DefaultBonusWindow)
}

// LockTTL bounds how long a distributed pair lock may be held.
func (c Config) LockTTL() time.Duration {
	return TTLDuration(c.Ledger.LockTTL, DefaultLockTTL)
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
