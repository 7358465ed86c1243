/*
Package config loads server and CLI configuration.

SOURCES (highest precedence first):
  1. Flags bound by cmd/server (viper.BindPFlag)
  2. Environment variables, prefix COSTING_, "." replaced by "_"
     (server.port -> COSTING_SERVER_PORT)
  3. Optional YAML config file
  4. Defaults below

A .env file in the working directory is loaded best-effort before the
environment is read. Existing variables are not overwritten.

KEYS:
  server.port            HTTP port (8080)
  server.cors_origins    allowed origins (["*"])
  store.sqlite_path      SQLite file, ":memory:" allowed (costing.db)
  prices.driver          sqlite | postgres (sqlite)
  prices.database_url    Postgres DSN, required for the postgres driver
  formula.max_length     formula source bytes
  formula.max_depth      formula nesting
  formula.max_steps      evaluation steps per formula run
  suggest.default_top_n  alternatives when a request omits top_n (3)
  logging.level          debug | info | warn | error (info)
  logging.format         console | json (console)
*/
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/warp/recipe-costing/formula"
	"github.com/warp/recipe-costing/generic"
)

const EnvPrefix = "COSTING"

const (
	PriceDriverSQLite   = "sqlite"
	PriceDriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Prices  PricesConfig
	Formula formula.Limits
	Suggest SuggestConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

type StoreConfig struct {
	SQLitePath string
}

type PricesConfig struct {
	Driver      string
	DatabaseURL string
}

type SuggestConfig struct {
	DefaultTopN int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	d := formula.DefaultLimits()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.sqlite_path", "costing.db")
	v.SetDefault("prices.driver", PriceDriverSQLite)
	v.SetDefault("prices.database_url", "")
	v.SetDefault("formula.max_length", d.MaxLength)
	v.SetDefault("formula.max_depth", d.MaxDepth)
	v.SetDefault("formula.max_steps", d.MaxSteps)
	v.SetDefault("suggest.default_top_n", 3)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, the optional config file at path and the environment.
func Load(path string) (*Config, error) {
	LoadDotEnv()
	return Read(New(), path)
}

// LoadDotEnv loads ./.env if present. Missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Read decodes and validates the configuration held by v. An empty path
// means no config file.
func Read(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("server.port"),
			CORSOrigins: splitList(v.GetStringSlice("server.cors_origins")),
		},
		Store: StoreConfig{SQLitePath: v.GetString("store.sqlite_path")},
		Prices: PricesConfig{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("prices.driver"))),
			DatabaseURL: v.GetString("prices.database_url"),
		},
		Formula: formula.Limits{
			MaxLength: v.GetInt("formula.max_length"),
			MaxDepth:  v.GetInt("formula.max_depth"),
			MaxSteps:  v.GetInt("formula.max_steps"),
		},
		Suggest: SuggestConfig{DefaultTopN: v.GetInt("suggest.default_top_n")},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return &generic.ValidationError{Field: field, Message: msg}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port", fmt.Sprintf("out of range: %d", c.Server.Port))
	}
	if c.Store.SQLitePath == "" {
		return invalid("store.sqlite_path", "required")
	}
	switch c.Prices.Driver {
	case PriceDriverSQLite:
	case PriceDriverPostgres:
		if c.Prices.DatabaseURL == "" {
			return invalid("prices.database_url", "required for the postgres driver")
		}
	default:
		return invalid("prices.driver", fmt.Sprintf("unknown driver %q", c.Prices.Driver))
	}
	if c.Formula.MaxLength <= 0 || c.Formula.MaxDepth <= 0 || c.Formula.MaxSteps <= 0 {
		return invalid("formula", "limits must be positive")
	}
	if c.Suggest.DefaultTopN < 0 {
		return invalid("suggest.default_top_n", "must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		return invalid("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return invalid("logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format))
	}
	return nil
}

// =============================================================================
// LOGGING
// =============================================================================

// NewLogger builds the process logger. Console output is human readable;
// json is one event per line.
func NewLogger(c LoggingConfig) (zerolog.Logger, error) {
	return newLogger(c, os.Stderr)
}

func newLogger(c LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch strings.ToLower(c.Format) {
	case "console", "":
		out = zerolog.ConsoleWriter{Out: out}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %s", c.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// splitList accepts both a YAML list and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
