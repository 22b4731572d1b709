// ABOUTME: Interactive config file generation for vpn-gateway init
// ABOUTME: Prompts for listener, store backend, and auth settings and writes YAML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/vpn-gateway/internal/config"
)

// initAnswers collects the values written by runInit.
type initAnswers struct {
	HTTPAddr       string
	Backend        string
	Endpoints      []string
	StorePath      string
	KeyPrefix      string
	JWTSecret      string
	RequireAuth    bool
	TailscaleOn    bool
	TailscaleHost  string
	TailscaleKey   string
	MetricsEnabled bool
	LogLevel       string
	LogFormat      string
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("vpn-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Store Configuration ---")
	a.Backend = prompt(reader, "Backend (etcd/bolt/sqlite/memory)", config.BackendEtcd)
	switch a.Backend {
	case config.BackendEtcd:
		a.Endpoints = strings.Split(prompt(reader, "etcd endpoints (comma separated)", "localhost:2379"), ",")
		a.KeyPrefix = prompt(reader, "Key prefix (use /vpn/ to share keys with the legacy service)", "")
	case config.BackendBolt, config.BackendSQLite:
		a.StorePath = prompt(reader, "Database file", filepath.Join(getDataPath(), "registry.db"))
	}

	fmt.Println("\n--- Auth Configuration ---")
	secret, err := randomSecret()
	if err != nil {
		return err
	}
	a.JWTSecret = secret
	a.RequireAuth = yes(prompt(reader, "Require bearer tokens for config routes?", "no"))

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleOn = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleOn {
		a.TailscaleHost = prompt(reader, "Tailscale hostname", config.DefaultTailscaleHostname)
		a.TailscaleKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
	}

	fmt.Println("\n--- Observability ---")
	a.MetricsEnabled = yes(prompt(reader, "Enable Prometheus metrics?", "yes"))
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if a.StorePath != "" {
		if err := os.MkdirAll(filepath.Dir(a.StorePath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  vpn-gateway serve\n")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// renderConfig produces the YAML written by runInit.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# vpn-gateway configuration\n")
	b.WriteString("# Generated by vpn-gateway init\n\n")

	if !a.TailscaleOn {
		b.WriteString("server:\n")
		fmt.Fprintf(&b, "  http_addr: %q\n\n", a.HTTPAddr)
	}

	b.WriteString("store:\n")
	fmt.Fprintf(&b, "  backend: %q\n", a.Backend)
	if len(a.Endpoints) > 0 {
		b.WriteString("  endpoints:\n")
		for _, ep := range a.Endpoints {
			fmt.Fprintf(&b, "    - %q\n", strings.TrimSpace(ep))
		}
	}
	if a.StorePath != "" {
		fmt.Fprintf(&b, "  path: %q\n", a.StorePath)
	}
	if a.KeyPrefix != "" {
		fmt.Fprintf(&b, "  key_prefix: %q\n", a.KeyPrefix)
	}
	b.WriteString("  request_timeout: \"5s\"\n\n")

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n", a.JWTSecret)
	b.WriteString("  token_ttl: \"30m\"\n")
	fmt.Fprintf(&b, "  require_auth_for_configs: %t\n\n", a.RequireAuth)

	b.WriteString("tailscale:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.TailscaleOn)
	if a.TailscaleOn {
		fmt.Fprintf(&b, "  hostname: %q\n", a.TailscaleHost)
		if a.TailscaleKey != "" {
			fmt.Fprintf(&b, "  auth_key: %q\n", a.TailscaleKey)
		}
	}
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", a.LogFormat)

	b.WriteString("metrics:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.MetricsEnabled)
	b.WriteString("  path: \"/metrics\"\n")
	return b.String()
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
