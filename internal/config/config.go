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
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Store struct {
		Timeout       string `yaml:"timeout"`
		Retries       *int   `yaml:"retries"`
		RetryInterval string `yaml:"retry_interval"`
	} `yaml:"store"`
	Session struct {
		PresenterGrace string `yaml:"presenter_grace"`
		EndedRetention string `yaml:"ended_retention"`
		ReapInterval   string `yaml:"reap_interval"`
	} `yaml:"session"`
	Broadcast struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"broadcast"`
	Aggregate struct {
		OpenEndedMax int `yaml:"open_ended_max"`
	} `yaml:"aggregate"`
	Participant struct {
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"participant"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can start with defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
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

// IntOr returns v unless it is not positive.
func IntOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// IntPtrOr returns the configured value when it is set, so an explicit zero
// is kept. Negative values clamp to zero.
func IntPtrOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	if *v < 0 {
		return 0
	}
	return *v
}
