// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML/TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"

store:
  backend: etcd
  endpoints:
    - "etcd-0:2379"
    - "etcd-1:2379"
  key_prefix: "/vpn/"
  dial_timeout: "2s"
  request_timeout: "750ms"
  scan_page_size: 100

allocator:
  max_attempts: 10

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  token_ttl: "15m"
  bcrypt_cost: 10

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Store.Backend != BackendEtcd {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendEtcd)
	}
	if len(cfg.Store.Endpoints) != 2 {
		t.Errorf("Store.Endpoints len = %d, want 2", len(cfg.Store.Endpoints))
	}
	if cfg.Store.KeyPrefix != "/vpn/" {
		t.Errorf("Store.KeyPrefix = %q, want %q", cfg.Store.KeyPrefix, "/vpn/")
	}
	if cfg.Store.DialTimeout != 2*time.Second {
		t.Errorf("Store.DialTimeout = %v, want %v", cfg.Store.DialTimeout, 2*time.Second)
	}
	if cfg.Store.RequestTimeout != 750*time.Millisecond {
		t.Errorf("Store.RequestTimeout = %v, want %v", cfg.Store.RequestTimeout, 750*time.Millisecond)
	}
	if cfg.Store.ScanPageSize != 100 {
		t.Errorf("Store.ScanPageSize = %d, want 100", cfg.Store.ScanPageSize)
	}
	if cfg.Allocator.MaxAttempts != 10 {
		t.Errorf("Allocator.MaxAttempts = %d, want 10", cfg.Allocator.MaxAttempts)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 15*time.Minute)
	}
	if cfg.Auth.BcryptCost != 10 {
		t.Errorf("Auth.BcryptCost = %d, want 10", cfg.Auth.BcryptCost)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_TOMLConfig(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9000"

[store]
backend = "bolt"
path = "/var/lib/vpn-gateway/registry.db"
request_timeout = "3s"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Store.Backend != BackendBolt {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendBolt)
	}
	if cfg.Store.Path != "/var/lib/vpn-gateway/registry.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Store.RequestTimeout != 3*time.Second {
		t.Errorf("Store.RequestTimeout = %v, want %v", cfg.Store.RequestTimeout, 3*time.Second)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", "store:\n  backend: memory\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Store.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Store.RequestTimeout = %v, want %v", cfg.Store.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Store.ScanPageSize != DefaultScanPageSize {
		t.Errorf("Store.ScanPageSize = %d, want %d", cfg.Store.ScanPageSize, DefaultScanPageSize)
	}
	if cfg.Allocator.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Allocator.MaxAttempts = %d, want %d", cfg.Allocator.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, DefaultTokenTTL)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_EtcdIsDefaultBackend(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", "server:\n  http_addr: \":8000\"\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != BackendEtcd {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendEtcd)
	}
	if len(cfg.Store.Endpoints) != 1 || cfg.Store.Endpoints[0] != "localhost:2379" {
		t.Errorf("Store.Endpoints = %v, want [localhost:2379]", cfg.Store.Endpoints)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "super-secret-key-that-is-long-enough")
	t.Setenv("TEST_ETCD_PASSWORD", "hunter2")

	configPath := writeConfig(t, "gateway.yaml", `
store:
  backend: etcd
  username: "root"
  password: "${TEST_ETCD_PASSWORD}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "super-secret-key-that-is-long-enough" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Store.Password != "hunter2" {
		t.Errorf("Store.Password = %q, want %q", cfg.Store.Password, "hunter2")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
store:
  backend: memory
  request_timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "store.request_timeout") {
		t.Errorf("error = %q, want it to name store.request_timeout", err.Error())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Store: StoreConfig{Backend: BackendMemory}}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		wantErrSubstr string
	}{
		{
			name:   "memory backend with defaults",
			mutate: func(c *Config) {},
		},
		{
			name:          "unknown backend",
			mutate:        func(c *Config) { c.Store.Backend = "redis" },
			wantErrSubstr: "store.backend",
		},
		{
			name:          "bolt requires path",
			mutate:        func(c *Config) { c.Store.Backend = BackendBolt },
			wantErrSubstr: "store.path is required for the bolt backend",
		},
		{
			name:          "sqlite requires path",
			mutate:        func(c *Config) { c.Store.Backend = BackendSQLite },
			wantErrSubstr: "store.path is required for the sqlite backend",
		},
		{
			name: "etcd requires endpoints",
			mutate: func(c *Config) {
				c.Store.Backend = BackendEtcd
				c.Store.Endpoints = nil
			},
			wantErrSubstr: "store.endpoints",
		},
		{
			name:          "short jwt secret",
			mutate:        func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErrSubstr: "at least 32 bytes",
		},
		{
			name:          "config auth without secret",
			mutate:        func(c *Config) { c.Auth.RequireAuthForConfigs = true },
			wantErrSubstr: "needs auth.jwt_secret",
		},
		{
			name:          "bcrypt cost out of range",
			mutate:        func(c *Config) { c.Auth.BcryptCost = 40 },
			wantErrSubstr: "auth.bcrypt_cost",
		},
		{
			name:          "bad log level",
			mutate:        func(c *Config) { c.Logging.Level = "trace" },
			wantErrSubstr: "logging.level",
		},
		{
			name: "tailscale enabled allows empty http addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "vpn-gateway"}
			},
		},
		{
			name:          "tailscale disabled requires http addr",
			mutate:        func(c *Config) { c.Server.HTTPAddr = "" },
			wantErrSubstr: "server.http_addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestLoad_EmbeddedBackendDefaultPath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	for _, backend := range []string{BackendBolt, BackendSQLite} {
		path := writeConfig(t, "gateway.yaml", "store:\n  backend: "+backend+"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", backend, err)
		}
		if want := filepath.Join(dataHome, "vpn-gateway", "registry.db"); cfg.Store.Path != want {
			t.Errorf("%s store.path = %q, want %q", backend, cfg.Store.Path, want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/srv/gw.toml")
	if got := DefaultPath(); got != "/srv/gw.toml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	if got, want := DefaultPath(), filepath.Join("/cfg", "vpn-gateway", "gateway.yaml"); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}
