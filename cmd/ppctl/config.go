package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from PERFECTPIC_* variables; global flags override it.
type Config struct {
	BaseURL   string        `env:"PERFECTPIC_BASE_URL"`
	Token     string        `env:"PERFECTPIC_TOKEN"`
	TokenFile string        `env:"PERFECTPIC_TOKEN_FILE"`
	Locale    string        `env:"PERFECTPIC_LOCALE"     envDefault:"zh-CN"`
	Timeout   time.Duration `env:"PERFECTPIC_TIMEOUT"    envDefault:"30s"`
	LogLevel  string        `env:"PERFECTPIC_LOG_LEVEL"  envDefault:"warn"`
	LogJSON   bool          `env:"PERFECTPIC_LOG_JSON"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}
