package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. WPP_HTTP_ADDR.
const EnvPrefix = "WPP"

// Config represents <data_dir>/config.toml.
type Config struct {
	DataDir  string        `toml:"data_dir" envconfig:"data_dir"`
	LogLevel string        `toml:"log_level" envconfig:"log_level"`
	HTTP     HTTPConfig    `toml:"http"`
	Client   ClientConfig  `toml:"client"`
	Timings  TimingsConfig `toml:"timings"`
	Tokens   TokensConfig  `toml:"tokens"`
	Sync     SyncConfig    `toml:"sync"`
	Reaper   ReaperConfig  `toml:"reaper"`
}

type HTTPConfig struct {
	Addr            string        `toml:"addr" envconfig:"addr"`
	AllowedOrigins  []string      `toml:"allowed_origins" envconfig:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

type ClientConfig struct {
	ClientID   string `toml:"client_id" envconfig:"client_id"`
	DeviceName string `toml:"device_name" envconfig:"device_name"`
}

// TimingsConfig holds the supervisor's delays. All must be positive.
type TimingsConfig struct {
	Settle              time.Duration `toml:"settle" envconfig:"settle"`
	InitTimeout         time.Duration `toml:"init_timeout" envconfig:"init_timeout"`
	ReadySyncDelay      time.Duration `toml:"ready_sync_delay" envconfig:"ready_sync_delay"`
	AuthFailureCooldown time.Duration `toml:"auth_failure_cooldown" envconfig:"auth_failure_cooldown"`
	RestartDelay        time.Duration `toml:"restart_delay" envconfig:"restart_delay"`
	DisconnectDelay     time.Duration `toml:"disconnect_delay" envconfig:"disconnect_delay"`
	ReconnectDelay      time.Duration `toml:"reconnect_delay" envconfig:"reconnect_delay"`
	ErrorRetryBase      time.Duration `toml:"error_retry_base" envconfig:"error_retry_base"`
	ErrorRetryMax       time.Duration `toml:"error_retry_max" envconfig:"error_retry_max"`
	ResetDelay          time.Duration `toml:"reset_delay" envconfig:"reset_delay"`
}

type TokensConfig struct {
	TTL         time.Duration `toml:"ttl" envconfig:"ttl"`
	AutoRefresh time.Duration `toml:"auto_refresh" envconfig:"auto_refresh"`
}

type SyncConfig struct {
	// Locale drives the collation used to sort contacts by name.
	Locale string `toml:"locale" envconfig:"locale"`
}

// ReaperConfig names what the shutdown and restart reap pass cleans up.
// Both lists are empty by default: patterns match any process on the host
// whose command line contains them, so set them only for helpers this
// daemon's deployment owns.
type ReaperConfig struct {
	ProcessPatterns []string `toml:"process_patterns" envconfig:"process_patterns"`
	TempGlobs       []string `toml:"temp_globs" envconfig:"temp_globs"`
}

// Default returns the configuration used when no file or env override
// says otherwise.
func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:            "0.0.0.0:3333",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Client: ClientConfig{
			ClientID:   "whatsapp",
			DeviceName: "WPP-Bridge",
		},
		Timings: TimingsConfig{
			Settle:              3 * time.Second,
			InitTimeout:         5 * time.Minute,
			ReadySyncDelay:      5 * time.Second,
			AuthFailureCooldown: 10 * time.Second,
			RestartDelay:        5 * time.Second,
			DisconnectDelay:     15 * time.Second,
			ReconnectDelay:      5 * time.Second,
			ErrorRetryBase:      30 * time.Second,
			ErrorRetryMax:       5 * time.Minute,
			ResetDelay:          5 * time.Second,
		},
		Tokens: TokensConfig{
			TTL:         time.Hour,
			AutoRefresh: time.Hour,
		},
		Sync: SyncConfig{Locale: "es"},
	}
}

// DefaultDataDir returns ~/.wpp.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpp")
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path if it exists, then WPP_* environment overrides.
func Resolve(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.Client.ClientID == "" {
		return errors.New("client.client_id must not be empty")
	}
	durations := map[string]time.Duration{
		"timings.settle":                c.Timings.Settle,
		"timings.init_timeout":          c.Timings.InitTimeout,
		"timings.ready_sync_delay":      c.Timings.ReadySyncDelay,
		"timings.auth_failure_cooldown": c.Timings.AuthFailureCooldown,
		"timings.restart_delay":         c.Timings.RestartDelay,
		"timings.disconnect_delay":      c.Timings.DisconnectDelay,
		"timings.reconnect_delay":       c.Timings.ReconnectDelay,
		"timings.error_retry_base":      c.Timings.ErrorRetryBase,
		"timings.error_retry_max":       c.Timings.ErrorRetryMax,
		"timings.reset_delay":           c.Timings.ResetDelay,
		"tokens.ttl":                    c.Tokens.TTL,
		"tokens.auto_refresh":           c.Tokens.AutoRefresh,
		"http.shutdown_timeout":         c.HTTP.ShutdownTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Timings.ErrorRetryMax < c.Timings.ErrorRetryBase {
		return fmt.Errorf("timings.error_retry_max (%s) is below error_retry_base (%s)",
			c.Timings.ErrorRetryMax, c.Timings.ErrorRetryBase)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
