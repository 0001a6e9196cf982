// Package config loads Directord's flat YAML configuration, overlaid
// by an optional .env file and then by any CLI flag the operator set
// explicitly (flag > YAML > .env, spec.md §6).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is spec.md §6's documented default cache_ttl, in
// seconds.
const DefaultCacheTTL = 43200

// Config is the full set of fields spec.md §6's configuration table
// names, one field per row. HeartbeatInterval and CacheTTL are stored
// as plain seconds, matching the table's units and how they'd appear
// in a hand-written YAML file (yaml.v3 has no notion of time.Duration
// as "seconds"; it would otherwise read a bare integer as nanoseconds).
type Config struct {
	Driver            string `yaml:"driver"`
	ServerAddress     string `yaml:"server_address"`
	BindAddress       string `yaml:"bind_address"`
	HeartbeatInterval int    `yaml:"heartbeat_interval"`
	Debug             bool   `yaml:"debug"`
	SocketPath        string `yaml:"socket_path"`
	SharedKey         string `yaml:"shared_key"`
	CurveEncryption   bool   `yaml:"curve_encryption"`
	Datastore         string `yaml:"datastore"`
	CacheTTL          int    `yaml:"cache_ttl"`
	ComponentPath     string `yaml:"component_path"`
	MetricsAddress    string `yaml:"metrics_address"`
}

// HeartbeatIntervalDuration converts HeartbeatInterval to a time.Duration.
func (c Config) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// CacheTTLDuration converts CacheTTL to a time.Duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// Defaults returns a Config populated with spec.md's documented
// defaults, before any file or flag overlay.
func Defaults() Config {
	return Config{
		Driver:            "grpc",
		BindAddress:       ":7373",
		ServerAddress:     "127.0.0.1:7373",
		HeartbeatInterval: 60,
		SocketPath:        "/var/run/directord.sock",
		Datastore:         "memory",
		CacheTTL:          DefaultCacheTTL,
		MetricsAddress:    "127.0.0.1:9090",
	}
}

// Load builds a Config starting from Defaults, optionally reading a
// .env file (godotenv — values land in the process environment, not
// directly in Config; they matter only insofar as the YAML file or a
// flag default references os.Getenv), then the YAML file at path if
// it exists, then overlaying any flag cmd.Flags().Changed explicitly.
func Load(path string, cmd *cobra.Command) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cmd != nil {
		overlayFlags(&cfg, cmd)
	}
	return &cfg, nil
}

// overlayFlags applies every explicitly-set flag of the same
// hyphenated name spec.md §6 lists, taking priority over the YAML
// file (cobra's Flags().Changed distinguishes "set" from "default").
func overlayFlags(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver, _ = flags.GetString("driver")
	}
	if flags.Changed("server-address") {
		cfg.ServerAddress, _ = flags.GetString("server-address")
	}
	if flags.Changed("bind-address") {
		cfg.BindAddress, _ = flags.GetString("bind-address")
	}
	if flags.Changed("heartbeat-interval") {
		cfg.HeartbeatInterval, _ = flags.GetInt("heartbeat-interval")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("socket-path") {
		cfg.SocketPath, _ = flags.GetString("socket-path")
	}
	if flags.Changed("shared-key") {
		cfg.SharedKey, _ = flags.GetString("shared-key")
	}
	if flags.Changed("curve-encryption") {
		cfg.CurveEncryption, _ = flags.GetBool("curve-encryption")
	}
	if flags.Changed("datastore") {
		cfg.Datastore, _ = flags.GetString("datastore")
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL, _ = flags.GetInt("cache-ttl")
	}
	if flags.Changed("component-path") {
		cfg.ComponentPath, _ = flags.GetString("component-path")
	}
	if flags.Changed("metrics-address") {
		cfg.MetricsAddress, _ = flags.GetString("metrics-address")
	}
}

// RegisterFlags adds every spec.md §6 configuration field as a flag
// of the same hyphenated name to cmd, so overlayFlags has something
// to read Changed() against.
func RegisterFlags(cmd *cobra.Command) {
	d := Defaults()
	flags := cmd.PersistentFlags()
	flags.String("driver", d.Driver, "Transport driver (grpc, amqp)")
	flags.String("server-address", d.ServerAddress, "Host or IP the client connects to")
	flags.String("bind-address", d.BindAddress, "Server listen address")
	flags.Int("heartbeat-interval", d.HeartbeatInterval, "Seconds between heartbeats")
	flags.Bool("debug", d.Debug, "Verbose logging")
	flags.String("socket-path", d.SocketPath, "UNIX socket path for local RPC")
	flags.String("shared-key", d.SharedKey, "Plain-text authentication token for applicable drivers")
	flags.Bool("curve-encryption", d.CurveEncryption, "Enable asymmetric-key encryption for applicable drivers")
	flags.String("datastore", d.Datastore, "Backend URL (memory, file://..., redis://...)")
	flags.Int("cache-ttl", DefaultCacheTTL, "Default cache TTL in seconds")
	flags.String("component-path", d.ComponentPath, "Extra directory for user-defined components")
	flags.String("metrics-address", d.MetricsAddress, "Address the server's /metrics, /health, /ready, /live endpoints listen on")
}
