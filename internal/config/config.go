// Package config loads and validates the handlink runtime configuration:
// the gateway endpoint and credentials, the saved BLE peer, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Auth modes for the gateway handshake. A device token, when present, is
// always tried first; the configured mode selects the shared credential.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
)

// Config holds all application configuration.
type Config struct {
	Gateway  GatewayConfig `yaml:"gateway"`
	BLE      BLEConfig     `yaml:"ble"`
	LogLevel string        `yaml:"log_level"`
}

// GatewayConfig holds the gateway endpoint and credentials.
type GatewayConfig struct {
	URL         string `yaml:"url"`
	AuthMode    string `yaml:"auth_mode"` // "token" or "password"
	Token       string `yaml:"token"`
	Password    string `yaml:"password"`
	DeviceID    string `yaml:"device_id"`
	DeviceToken string `yaml:"device_token"`
}

// BLEConfig holds the saved BLE peer.
type BLEConfig struct {
	DeviceAddress string `yaml:"device_address"`
	DeviceName    string `yaml:"device_name"`
	AutoConnect   bool   `yaml:"auto_connect"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "handlink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			AuthMode: AuthModeToken,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values. A missing gateway URL is
// allowed (the gateway stays idle); a URL without any credential is not.
func (c *Config) Validate() error {
	switch c.Gateway.AuthMode {
	case AuthModeToken, AuthModePassword:
	default:
		return fmt.Errorf("gateway.auth_mode must be %q or %q, got %q",
			AuthModeToken, AuthModePassword, c.Gateway.AuthMode)
	}

	if c.Gateway.URL != "" {
		if !hasURLScheme(c.Gateway.URL) && !isHostPortShorthand(c.Gateway.URL) {
			return fmt.Errorf("gateway.url %q must be ws://, wss:// or host:port", c.Gateway.URL)
		}
		if !c.Gateway.HasCredentials() {
			return fmt.Errorf("gateway.url is set but no credential is configured")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// HasCredentials reports whether any credential form is present: a device
// token, or the shared credential selected by the auth mode.
func (g GatewayConfig) HasCredentials() bool {
	if g.DeviceToken != "" {
		return true
	}
	if g.AuthMode == AuthModePassword {
		return g.Password != ""
	}
	return g.Token != ""
}

// HasDeviceIdentity reports whether device-token auth is possible.
func (g GatewayConfig) HasDeviceIdentity() bool {
	return g.DeviceID != "" && g.DeviceToken != ""
}

func hasURLScheme(raw string) bool {
	for _, scheme := range []string{"ws://", "wss://", "http://", "https://"} {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

// isHostPortShorthand mirrors the endpoint parser's scheme-less rule: one
// colon outside brackets, or a bracketed IPv6 literal.
func isHostPortShorthand(raw string) bool {
	if strings.HasPrefix(raw, "[") {
		return true
	}
	depth := 0
	colons := 0
	for _, r := range raw {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				colons++
			}
		}
	}
	return colons == 1
}
