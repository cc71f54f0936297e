package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Retry policies applied when a session handle fails to initialize.
const (
	RetryDiscard = "discard"
	RetryReuse   = "reuse"
)

// Duration is a time.Duration that reads and writes as "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.wpp/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Listen         string   `toml:"listen"`
	CORSOrigin     string   `toml:"cors_origin"`
	DeviceName     string   `toml:"device_name"`
	TickInterval   Duration `toml:"tick_interval"`
	SendTimeout    Duration `toml:"send_timeout"`
	RetryPolicy    string   `toml:"retry_policy"`
	RetryBackoff   Duration `toml:"retry_backoff"`
	// AutoStart boots the session when the daemon starts instead of
	// waiting for the first status poll.
	AutoStart      bool     `toml:"auto_start"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Listen:         "127.0.0.1:3001",
		CORSOrigin:     "http://localhost:3000",
		DeviceName:     "WPP+",
		TickInterval:   Duration{time.Minute},
		SendTimeout:    Duration{30 * time.Second},
		RetryPolicy:    RetryDiscard,
		RetryBackoff:   Duration{30 * time.Second},
		AutoStart:      true,
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing or invalid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads path when it exists, then applies .env files and WPP_*
// environment overrides.
func Resolve(path string, envFiles ...string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := loadDotenv(envFiles); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func loadDotenv(files []string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	// godotenv.Load never overrides variables already set in the environment.
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"WPP_SESSION":      &c.DefaultSession,
		"WPP_LISTEN":       &c.Listen,
		"WPP_CORS_ORIGIN":  &c.CORSOrigin,
		"WPP_DEVICE_NAME":  &c.DeviceName,
		"WPP_RETRY_POLICY": &c.RetryPolicy,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	durs := map[string]*Duration{
		"WPP_TICK_INTERVAL": &c.TickInterval,
		"WPP_SEND_TIMEOUT":  &c.SendTimeout,
		"WPP_RETRY_BACKOFF": &c.RetryBackoff,
	}
	for key, dst := range durs {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if v, ok := lookup("WPP_AUTO_START"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WPP_AUTO_START: %w", err)
		}
		c.AutoStart = b
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.RetryPolicy) {
	case RetryDiscard, RetryReuse:
		c.RetryPolicy = strings.ToLower(c.RetryPolicy)
	default:
		return fmt.Errorf("retry_policy must be %q or %q, got %q", RetryDiscard, RetryReuse, c.RetryPolicy)
	}
	if c.TickInterval.Duration < time.Second {
		return fmt.Errorf("tick_interval must be at least 1s, got %s", c.TickInterval)
	}
	if c.SendTimeout.Duration <= 0 {
		return fmt.Errorf("send_timeout must be positive, got %s", c.SendTimeout)
	}
	if c.RetryBackoff.Duration < 0 {
		return fmt.Errorf("retry_backoff must not be negative, got %s", c.RetryBackoff)
	}
	if c.Listen == "" {
		return errors.New("listen address is empty")
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
