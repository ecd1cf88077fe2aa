// internal/config/config.go
//
// Process configuration. A .env file (if present) is loaded first, then the
// environment is parsed into Config. Command-line flags override these values
// in main.go.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/robalobadob/tickantoe/internal/kv"
)

// Config holds every environment-driven setting.
type Config struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	Port         string `env:"PORT" envDefault:"3135"`
	ClientOrigin string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`

	// DefaultMaxGen is the ceiling advertised by /api/latest_metadata (0 = all).
	DefaultMaxGen int    `env:"DEFAULT_MAX_GEN" envDefault:"0"`
	DexFile       string `env:"DEX_FILE"`

	APIRoot  string `env:"API_ROOT" envDefault:"http://localhost:3135"`
	RelayURL string `env:"RELAY_URL" envDefault:"ws://localhost:3135/ws"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"./data/tickantoe.db"`
	BadgerPath   string `env:"BADGER_PATH" envDefault:"./data/badger"`
	HistoryLimit int    `env:"HISTORY_LIMIT" envDefault:"90"`
	LinkFile     string `env:"LINK_FILE" envDefault:"./data/link"`

	RelayQueue int     `env:"RELAY_QUEUE" envDefault:"20"`
	RelayRate  float64 `env:"RELAY_RATE" envDefault:"20"`
}

// KV returns the durable store selection.
func (c Config) KV() kv.Config {
	return kv.Config{Backend: c.StoreBackend, SQLitePath: c.SQLitePath, BadgerPath: c.BadgerPath}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads files (default ".env"; missing files are ignored) and parses the
// environment.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	var c Config
	if err := ParseEnv(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
