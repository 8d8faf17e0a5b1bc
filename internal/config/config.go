// Package config loads process-level configuration for the todomcp server.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the todomcp server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
}

// DatabaseConfig holds Postgres connection details for the Task Repository.
type DatabaseConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// AuthConfig holds identity-gate verification settings (spec.md §4.1).
type AuthConfig struct {
	// Issuer is the expected "iss" claim of verified tokens.
	Issuer string `toml:"issuer"`
	// JWKSURL, when set, is polled periodically for the verification keyset.
	JWKSURL string `toml:"jwks_url"`
	// StaticPublicKey is a PEM-encoded public key used when JWKSURL is empty,
	// e.g. for single-key deployments or stdio mode.
	StaticPublicKey string `toml:"static_public_key"`
	// ClockSkew bounds how far exp/nbf may diverge from server time (spec.md §4.1: ≤60s).
	ClockSkew time.Duration `toml:"clock_skew"`
	// JWKSRefreshInterval controls how often the JWKS cache is refreshed.
	JWKSRefreshInterval time.Duration `toml:"jwks_refresh_interval"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port. Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address. Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
	// CallDeadline bounds a single tool call end-to-end (spec.md §5, default 2s).
	CallDeadline time.Duration `toml:"call_deadline"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from -config flag)
//  2. TODOMCP_CONFIG environment variable
//  3. ./todomcp.toml (current directory)
//  4. ~/.config/todomcp/todomcp.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:          "postgres://localhost:5432/todomcp?sslmode=disable",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			ClockSkew:           60 * time.Second,
			JWKSRefreshInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Name:    "todomcp",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:         "stdio",
			Port:         "8787",
			Host:         "0.0.0.0",
			CORSOrigins:  "*",
			CallDeadline: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil // no config file found; rely on defaults + env
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit // caller wants this file; let DecodeFile report if missing
	}

	if p := os.Getenv("TODOMCP_CONFIG"); p != "" {
		return p
	}

	if _, err := os.Stat("todomcp.toml"); err == nil {
		return "todomcp.toml"
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/todomcp/todomcp.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("TODOMCP_DATABASE_DSN", &c.Database.DSN)
	envOverride("TODOMCP_AUTH_ISSUER", &c.Auth.Issuer)
	envOverride("TODOMCP_AUTH_JWKS_URL", &c.Auth.JWKSURL)
	envOverride("TODOMCP_AUTH_STATIC_PUBLIC_KEY", &c.Auth.StaticPublicKey)

	envOverride("TODOMCP_TRANSPORT", &c.Transport.Mode)
	envOverride("TODOMCP_PORT", &c.Transport.Port)
	envOverride("TODOMCP_HOST", &c.Transport.Host)
	envOverride("TODOMCP_CORS_ORIGINS", &c.Transport.CORSOrigins)

	envOverride("TODOMCP_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("TODOMCP_CALL_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Transport.CallDeadline = d
		}
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Auth.JWKSURL == "" && c.Auth.StaticPublicKey == "" {
		return fmt.Errorf("auth requires either jwks_url or static_public_key")
	}

	if c.Transport.CallDeadline <= 0 {
		return fmt.Errorf("transport.call_deadline must be positive")
	}

	return nil
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
