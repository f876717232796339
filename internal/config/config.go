// Package config loads authledger settings. Later sources win:
// built-in defaults, then an optional YAML file, then AUTHLEDGER_*
// environment variables, then command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"xdao.co/authledger/internal/logging"
	"xdao.co/authledger/storage/backends"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTHLEDGER_"

type Config struct {
	Backend    string `yaml:"backend" env:"BACKEND"`
	Ledger     string `yaml:"ledger" env:"LEDGER"`
	KeysDir    string `yaml:"keys_dir" env:"KEYS_DIR"`
	ArchiveDir string `yaml:"archive_dir" env:"ARCHIVE_DIR"`

	// MetricsFile, when set, receives the CLI's counters in Prometheus text
	// format after each command.
	MetricsFile string `yaml:"metrics_file" env:"METRICS_FILE"`

	GRPC   GRPCConfig   `yaml:"grpc" envPrefix:"GRPC_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Daemon DaemonConfig `yaml:"daemon" envPrefix:"DAEMON_"`
}

type GRPCConfig struct {
	Target      string        `yaml:"target" env:"TARGET"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxMsgBytes int           `yaml:"max_msg_bytes" env:"MAX_MSG_BYTES"`
}

// LogConfig leaves Level empty by default so each binary can pick its own.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DaemonConfig only applies to ledgerd.
type DaemonConfig struct {
	Listen        string  `yaml:"listen" env:"LISTEN"`
	MetricsListen string  `yaml:"metrics_listen" env:"METRICS_LISTEN"`
	RateLimit     float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst     int     `yaml:"rate_burst" env:"RATE_BURST"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend: "jsonfile",
		Ledger:  "ledger_data.json",
		KeysDir: "keys",
		GRPC: GRPCConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Format: "text",
		},
		Daemon: DaemonConfig{
			Listen:        "127.0.0.1:7443",
			MetricsListen: "127.0.0.1:9464",
			RateLimit:     50,
			RateBurst:     100,
		},
	}
}

// Load applies the YAML file at path (skipped when path is empty) and then
// environment overrides to the defaults. environ replaces the process
// environment when non-nil.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks cfg for a program that accepts backends matching usage.
func (c Config) Validate(usage backends.Usage) error {
	var errs []error
	names := backends.Names(usage)
	if !slices.Contains(names, c.Backend) {
		errs = append(errs, fmt.Errorf("backend %q is not available (have %s)", c.Backend, strings.Join(names, ", ")))
	}
	switch c.Backend {
	case "jsonfile", "sqlite":
		if strings.TrimSpace(c.Ledger) == "" {
			errs = append(errs, errors.New("ledger path is required"))
		}
	case "grpc":
		if strings.TrimSpace(c.GRPC.Target) == "" {
			errs = append(errs, errors.New("grpc target is required for the grpc backend"))
		}
	}
	if c.GRPC.Timeout < 0 {
		errs = append(errs, errors.New("grpc timeout must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Daemon.RateLimit < 0 || c.Daemon.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	return errors.Join(errs...)
}

// BackendSettings returns the options handed to backends.Open.
func (c Config) BackendSettings() backends.Settings {
	s := backends.Settings{
		"path":   c.Ledger,
		"target": c.GRPC.Target,
	}
	if c.GRPC.Timeout > 0 {
		s["timeout"] = c.GRPC.Timeout.String()
	}
	if c.GRPC.MaxMsgBytes > 0 {
		s["max_msg_bytes"] = fmt.Sprint(c.GRPC.MaxMsgBytes)
	}
	return s
}
