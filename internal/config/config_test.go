package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.AuthMode != AuthModeToken {
		t.Errorf("default auth mode = %q, want %q", cfg.Gateway.AuthMode, AuthModeToken)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: ws://gw.local:9000/path
  auth_mode: token
  token: shared-secret
  device_id: dev-1
  device_token: dev-token
ble:
  device_address: AA:BB:CC:DD:EE:FF
  device_name: MyKbd
  auto_connect: true
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.URL != "ws://gw.local:9000/path" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if !cfg.BLE.AutoConnect {
		t.Error("ble.auto_connect should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file should fail")
	}
}

func TestValidateRejectsURLWithoutCredentials(t *testing.T) {
	cfg := Default()
	cfg.Gateway.URL = "ws://gw.local:9000"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "credential") {
		t.Errorf("Validate() = %v, want credential error", err)
	}
}

func TestValidateRejectsBadAuthMode(t *testing.T) {
	cfg := Default()
	cfg.Gateway.AuthMode = "certificate"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject unknown auth mode")
	}
}

func TestValidateAcceptsHostPortShorthand(t *testing.T) {
	for _, url := range []string{"gw.local:9000", "[::1]:9000", "[fe80::1]:8080"} {
		cfg := Default()
		cfg.Gateway.URL = url
		cfg.Gateway.Token = "shared-secret"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with url %q: %v", url, err)
		}
	}
}

func TestValidateRejectsUnbracketedIPv6(t *testing.T) {
	cfg := Default()
	cfg.Gateway.URL = "fe80::1:9000"
	cfg.Gateway.Token = "shared-secret"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an unbracketed IPv6 shorthand")
	}
}

func TestHasCredentials(t *testing.T) {
	cases := []struct {
		name string
		g    GatewayConfig
		want bool
	}{
		{"empty", GatewayConfig{AuthMode: AuthModeToken}, false},
		{"device token only", GatewayConfig{AuthMode: AuthModeToken, DeviceToken: "x"}, true},
		{"shared token", GatewayConfig{AuthMode: AuthModeToken, Token: "x"}, true},
		{"password mode with password", GatewayConfig{AuthMode: AuthModePassword, Password: "x"}, true},
		{"password mode with token only", GatewayConfig{AuthMode: AuthModePassword, Token: "x"}, false},
	}
	for _, tc := range cases {
		if got := tc.g.HasCredentials(); got != tc.want {
			t.Errorf("%s: HasCredentials() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHasDeviceIdentity(t *testing.T) {
	g := GatewayConfig{DeviceID: "dev-1"}
	if g.HasDeviceIdentity() {
		t.Error("device id without token should not count as identity")
	}
	g.DeviceToken = "tok"
	if !g.HasDeviceIdentity() {
		t.Error("device id + token should count as identity")
	}
}
