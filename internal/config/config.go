// Package config loads Talk2Me server configuration from a TOML file,
// overridable by CLI flags and the TALK2ME_LOG environment variable.
// Grounded on clawplaza-clawwork-cli/internal/config's validated-struct
// pattern (spec §9, SPEC_FULL.md "Domain stack").
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"talk2me/internal/cryptoenv"
)

// Role distinguishes a front server (owns the account/chat directory and
// federates) from a chat server (owns delegated chat state only).
type Role string

const (
	RoleFront Role = "front"
	RoleChat  Role = "chat"
)

// Config is a server process's full configuration.
type Config struct {
	Role string `toml:"role"`

	Port           int      `toml:"port"`
	MaxThreads     int      `toml:"max_threads"`      // soft cap on live connection handlers
	AcceptTimeout  int      `toml:"accept_timeout"`   // seconds; listener accept deadline
	SnapshotPath   string   `toml:"snapshot_path"`
	SnapshotWorkers int     `toml:"snapshot_workers"`
	BaseKey        string   `toml:"base_encryption_key"`
	ChatServers    []string `toml:"chat_servers"` // front only
}

// Default returns a Config with the spec's default values (port 9999, soft
// cap 10, 1s accept timeout, etc). BaseKey is left empty; Load generates and
// persists one on first run.
func Default() Config {
	return Config{
		Role:            string(RoleFront),
		Port:            9999,
		MaxThreads:      10,
		AcceptTimeout:   1,
		SnapshotPath:    "backup.json",
		SnapshotWorkers: 2,
		ChatServers:     nil,
	}
}

// Load reads path (if it exists) over the defaults, generating and writing
// back a base encryption key if one isn't already present. A missing file
// is not an error — Load falls back to Default() and writes it to path so
// subsequent runs (and operators inspecting the file) see the generated key.
func Load(path string) (Config, error) {
	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if cfg.BaseKey == "" {
		key, err := cryptoenv.GenerateKey()
		if err != nil {
			return Config{}, fmt.Errorf("config: generate base key: %w", err)
		}
		cfg.BaseKey = key
		if err := cfg.save(path); err != nil {
			return Config{}, fmt.Errorf("config: persist generated key: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// Validate checks that the config describes a runnable server process.
func (c Config) Validate() error {
	switch Role(c.Role) {
	case RoleFront, RoleChat:
	default:
		return fmt.Errorf("config: role must be %q or %q, got %q", RoleFront, RoleChat, c.Role)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Port)
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("config: max_threads must be >= 1")
	}
	if c.AcceptTimeout < 1 {
		return fmt.Errorf("config: accept_timeout must be >= 1 second")
	}
	if _, err := cryptoenv.ParseKey(c.BaseKey); err != nil {
		return fmt.Errorf("config: base_encryption_key: %w", err)
	}
	return nil
}

// Redact returns a copy of c with the base key masked, for safe logging.
func (c Config) Redact() Config {
	redacted := c
	if len(c.BaseKey) > 8 {
		redacted.BaseKey = c.BaseKey[:4] + "..." + c.BaseKey[len(c.BaseKey)-4:]
	} else {
		redacted.BaseKey = "****"
	}
	return redacted
}

// LoggingEnabled reports whether TALK2ME_LOG=on is set (spec §6).
func LoggingEnabled() bool {
	return os.Getenv("TALK2ME_LOG") == "on"
}
