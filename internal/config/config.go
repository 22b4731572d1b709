// ABOUTME: Configuration loading and parsing for vpn-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendEtcd   = "etcd"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Defaults applied by ApplyDefaults when a field is left empty.
const (
	DefaultHTTPAddr          = "0.0.0.0:8000"
	DefaultDialTimeout       = 5 * time.Second
	DefaultRequestTimeout    = 5 * time.Second
	DefaultScanPageSize      = 256
	DefaultMaxAttempts       = 64
	DefaultTokenTTL          = 30 * time.Minute
	DefaultMetricsPath       = "/metrics"
	DefaultTailscaleHostname = "vpn-gateway"
)

// Config represents the complete vpn-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Allocator AllocatorConfig `yaml:"allocator" toml:"allocator"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // Serve HTTPS on :443 with Tailscale certs
}

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Backend   string   `yaml:"backend" toml:"backend"`     // etcd, bolt, sqlite, memory
	Endpoints []string `yaml:"endpoints" toml:"endpoints"` // etcd only
	Username  string   `yaml:"username" toml:"username"`   // etcd only
	Password  string   `yaml:"password" toml:"password"`   // etcd only
	Path      string   `yaml:"path" toml:"path"`           // bolt and sqlite only
	KeyPrefix string   `yaml:"key_prefix" toml:"key_prefix"`

	// ScanPageSize bounds how many keys one prefix-scan round trip returns.
	ScanPageSize int `yaml:"scan_page_size" toml:"scan_page_size"`

	DialTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DialTimeoutRaw    string `yaml:"dial_timeout" toml:"dial_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// AllocatorConfig tunes the configuration ID allocator
type AllocatorConfig struct {
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret             string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL              time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw           string        `yaml:"token_ttl" toml:"token_ttl"`
	BcryptCost            int           `yaml:"bcrypt_cost" toml:"bcrypt_cost"`
	RequireAuthForConfigs bool          `yaml:"require_auth_for_configs" toml:"require_auth_for_configs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// EnvConfigPath names the environment variable that overrides the config file location.
const EnvConfigPath = "VPN_GATEWAY_CONFIG"

// DefaultPath returns the config file location shared by vpn-gateway and vpn-admin.
// Priority: VPN_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/vpn-gateway/gateway.yaml > ~/.config/vpn-gateway/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "vpn-gateway", "gateway.yaml")
}

// DefaultDataDir returns the directory for embedded store files.
// Priority: XDG_DATA_HOME/vpn-gateway > ~/.local/share/vpn-gateway
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "vpn-gateway")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes, applies defaults, and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills empty fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultTailscaleHostname
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendEtcd
	}
	if c.Store.Backend == BackendEtcd && len(c.Store.Endpoints) == 0 {
		c.Store.Endpoints = []string{"localhost:2379"}
	}
	if (c.Store.Backend == BackendBolt || c.Store.Backend == BackendSQLite) && c.Store.Path == "" {
		c.Store.Path = filepath.Join(DefaultDataDir(), "registry.db")
	}
	if c.Store.DialTimeout == 0 {
		c.Store.DialTimeout = DefaultDialTimeout
	}
	if c.Store.RequestTimeout == 0 {
		c.Store.RequestTimeout = DefaultRequestTimeout
	}
	if c.Store.ScanPageSize == 0 {
		c.Store.ScanPageSize = DefaultScanPageSize
	}
	if c.Allocator.MaxAttempts == 0 {
		c.Allocator.MaxAttempts = DefaultMaxAttempts
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	switch c.Store.Backend {
	case BackendEtcd:
		if len(c.Store.Endpoints) == 0 {
			return fmt.Errorf("store.endpoints is required for the etcd backend")
		}
	case BackendBolt, BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q is not one of etcd, bolt, sqlite, memory", c.Store.Backend)
	}

	if c.Store.RequestTimeout < 0 || c.Store.DialTimeout < 0 {
		return fmt.Errorf("store timeouts must not be negative")
	}
	if c.Store.ScanPageSize < 0 {
		return fmt.Errorf("store.scan_page_size must not be negative")
	}
	if c.Allocator.MaxAttempts < 0 {
		return fmt.Errorf("allocator.max_attempts must not be negative")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.RequireAuthForConfigs && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.require_auth_for_configs needs auth.jwt_secret")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"store.dial_timeout", cfg.Store.DialTimeoutRaw, &cfg.Store.DialTimeout},
		{"store.request_timeout", cfg.Store.RequestTimeoutRaw, &cfg.Store.RequestTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
