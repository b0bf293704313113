// Package config handles configuration loading from YAML, CLI flags, and environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	Notarization  NotarizationConfig  `yaml:"notarization"`
	Reveal        RevealConfig        `yaml:"reveal"`
	Store         StoreConfig         `yaml:"store"`
	Retention     RetentionConfig     `yaml:"retention"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ListenConfig configures the notary's own local HTTPS API listener.
type ListenConfig struct {
	Listen string `yaml:"listen"` // e.g., "localhost:8443"
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
}

// NotarizationConfig bounds how much work one notarization session may do.
type NotarizationConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
	SessionTimeoutS       int `yaml:"session_timeout_s"`
	MaxTranscriptBytes    int `yaml:"max_transcript_bytes"`
}

// RevealConfig sets defaults for selective-disclosure commitment padding.
type RevealConfig struct {
	DefaultPadToBytes int  `yaml:"default_pad_to_bytes"`
	HashAlgorithm     string `yaml:"hash_algorithm"`
}

// StoreConfig configures SQLite persistence of session/verification state.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// RetentionConfig configures data retention TTLs for completed sessions.
type RetentionConfig struct {
	SessionsTTLDays int `yaml:"sessions_ttl_days"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	Token string `yaml:"token"` // Bearer token for API access
}

// DefaultConfig returns a Config with secure defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Listen: "localhost:8443",
		},
		Notarization: NotarizationConfig{
			MaxConcurrentSessions: 8,
			SessionTimeoutS:       60,
			MaxTranscriptBytes:    4 * 1024 * 1024,
		},
		Reveal: RevealConfig{
			DefaultPadToBytes: 64,
			HashAlgorithm:     "blake3",
		},
		Store: StoreConfig{
			DBPath: "", // Set in Load based on platform
		},
		Retention: RetentionConfig{
			SessionsTTLDays: 30,
		},
		Auth: AuthConfig{
			Token: "", // Generated on first run if empty
		},
	}
}

// ConfigDir returns the platform-specific config directory.
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "notaryd"), nil
	default: // linux, darwin, etc.
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, ".config", "notaryd"), nil
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "notaryd.db"), nil
}

// Load loads configuration from file, with environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dbPath, err := DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("getting default db path: %w", err)
	}
	cfg.Store.DBPath = dbPath

	if path == "" {
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("getting default config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if cfg.Auth.Token == "" {
				cfg.Auth.Token, err = generateToken()
				if err != nil {
					return nil, fmt.Errorf("generating auth token: %w", err)
				}
				if err := cfg.Save(path); err != nil {
					return nil, fmt.Errorf("saving config: %w", err)
				}
			}
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.Auth.Token == "" {
		cfg.Auth.Token, err = generateToken()
		if err != nil {
			return nil, fmt.Errorf("generating auth token: %w", err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("saving config: %w", err)
		}
	}

	return cfg, nil
}

// Save writes the config to the specified path with secure permissions.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTARYD_LISTEN"); v != "" {
		c.Listen.Listen = v
	}
	if v := os.Getenv("NOTARYD_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("NOTARYD_AUTH_TOKEN"); v != "" {
		c.Auth.Token = v
	}
}

// generateToken generates a cryptographically random auth token.
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "notaryd_" + hex.EncodeToString(bytes), nil
}

// ListenAddr returns the listen address, handling host:port vs listen field.
func (c *ListenConfig) ListenAddr() string {
	if c.Listen != "" {
		return c.Listen
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 8443
	}
	return fmt.Sprintf("%s:%d", host, port)
}
