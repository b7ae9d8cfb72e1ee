// Package config loads the gateway daemon's own bootstrap settings:
// manager URL, bearer token, identity, watchdog cadence, logging, and
// custom forwarding pairs. It is deliberately small — the configuration
// format the control-plane delivers (GatewayConfig) is not a file format
// at all, it arrives over the control-plane session.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config holds the daemon's bootstrap settings, populated from
// environment variables and, optionally, an HCL override file.
type Config struct {
	ManagerURL       string
	Token            string
	Identity         string
	WatchdogInterval time.Duration
	LogLevel         string
	LogJSON          bool
	MetricsAddr      string
	CustomForwarding map[string]string
}

// hclConfig is the shape decoded directly from an HCL file; WatchdogInterval
// and CustomForwarding need conversions gohcl can't do natively (a Go
// duration and a "url=host:port" list), so they're parsed from string
// fields here and folded into Config afterward.
type hclConfig struct {
	ManagerURL        string   `hcl:"manager_url,optional"`
	Token             string   `hcl:"token,optional"`
	Identity          string   `hcl:"identity,optional"`
	WatchdogInterval  string   `hcl:"watchdog_interval,optional"`
	LogLevel          string   `hcl:"log_level,optional"`
	LogJSON           bool     `hcl:"log_json,optional"`
	MetricsAddr       string   `hcl:"metrics_addr,optional"`
	CustomForwarding  []string `hcl:"custom_forwarding,optional"`
}

// DefaultWatchdogInterval matches internal/watchdog's own default, kept in
// sync so an unset environment still produces a sensible cadence.
const DefaultWatchdogInterval = 10 * time.Second

// Load builds a Config from the GATEWAY_* environment variables, then, if
// GATEWAY_CONFIG_FILE is set, overlays values found in that HCL file for
// anything the environment left at its zero value. Environment variables
// take precedence over file values, matching the teacher's "explicit
// beats implicit" load order.
func Load() (*Config, error) {
	cfg := &Config{
		ManagerURL:       os.Getenv("GATEWAY_MANAGER"),
		Token:            os.Getenv("GATEWAY_TOKEN"),
		Identity:         os.Getenv("GATEWAY_IDENTITY"),
		WatchdogInterval: DefaultWatchdogInterval,
		LogLevel:         envOr("GATEWAY_LOG_LEVEL", "info"),
		LogJSON:          os.Getenv("GATEWAY_LOG_JSON") == "true",
		MetricsAddr:      os.Getenv("GATEWAY_METRICS_ADDR"),
		CustomForwarding: parseForwardingPairs(os.Getenv("GATEWAY_CUSTOM_FORWARDING")),
	}

	if v := os.Getenv("GATEWAY_WATCHDOG_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing GATEWAY_WATCHDOG_INTERVAL: %w", err)
		}
		cfg.WatchdogInterval = d
	}

	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// overlayFile decodes an HCL file and fills in any field still at its zero
// value; it never overwrites a setting the environment already supplied.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var parsed hclConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	if c.ManagerURL == "" {
		c.ManagerURL = parsed.ManagerURL
	}
	if c.Token == "" {
		c.Token = parsed.Token
	}
	if c.Identity == "" {
		c.Identity = parsed.Identity
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = parsed.MetricsAddr
	}
	if parsed.WatchdogInterval != "" && c.WatchdogInterval == DefaultWatchdogInterval {
		d, err := time.ParseDuration(parsed.WatchdogInterval)
		if err != nil {
			return fmt.Errorf("parsing watchdog_interval: %w", err)
		}
		c.WatchdogInterval = d
	}
	if os.Getenv("GATEWAY_LOG_LEVEL") == "" && parsed.LogLevel != "" {
		c.LogLevel = parsed.LogLevel
	}
	if os.Getenv("GATEWAY_LOG_JSON") == "" && parsed.LogJSON {
		c.LogJSON = true
	}
	if len(c.CustomForwarding) == 0 && len(parsed.CustomForwarding) > 0 {
		c.CustomForwarding = parseForwardingList(parsed.CustomForwarding)
	}

	return nil
}

// parseForwardingPairs parses GATEWAY_CUSTOM_FORWARDING, a comma-separated
// list of "url=host:port" pairs.
func parseForwardingPairs(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	return parseForwardingList(strings.Split(raw, ","))
}

func parseForwardingList(pairs []string) map[string]string {
	out := map[string]string{}
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		url, hostport, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[url] = hostport
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate reports the first missing required setting, so cmd/gatewayd can
// fail fast with a clear message rather than dialing with an empty URL.
func (c *Config) Validate() error {
	if c.ManagerURL == "" {
		return fmt.Errorf("GATEWAY_MANAGER (or manager_url) is required")
	}
	if c.Token == "" {
		return fmt.Errorf("GATEWAY_TOKEN (or token) is required")
	}
	if c.Identity == "" {
		return fmt.Errorf("GATEWAY_IDENTITY (or identity) is required")
	}
	return nil
}
