// Package config handles configuration loading for vpn-gateway.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, for files ending in .toml) with
// environment variable expansion. The package provides validation and defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VPN_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vpn-gateway/gateway.yaml
//  3. ~/.config/vpn-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${VPN_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
// Key-value store:
//
//	store:
//	  backend: "etcd"             # etcd, bolt, sqlite, memory
//	  endpoints: ["localhost:2379"]
//	  key_prefix: ""              # "/vpn/" matches the legacy layout
//	  dial_timeout: "5s"
//	  request_timeout: "5s"       # bound on every store round trip
//	  scan_page_size: 256
//
// Single-node deployments can use an embedded store instead:
//
//	store:
//	  backend: "bolt"
//	  path: "/var/lib/vpn-gateway/registry.db"
//
// ID allocation:
//
//	allocator:
//	  max_attempts: 64            # compare-and-swap attempts per ID
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${VPN_JWT_SECRET}"   # at least 32 bytes
//	  token_ttl: "30m"
//	  bcrypt_cost: 10
//	  require_auth_for_configs: false
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "vpn-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("/etc/vpn-gateway/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
