// Package config manages the CDS node's configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the defaults baked
// into DefaultConfig.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete cds-node configuration.
type Config struct {
	Radio   RadioConfig   `koanf:"radio"`
	Status  StatusConfig  `koanf:"status"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	CDS     CDSConfig     `koanf:"cds"`
}

// RadioConfig selects and configures the transport the engine sends and
// receives over.
type RadioConfig struct {
	// Transport is "udp" or "loopback". "loopback" is only meaningful
	// inside a test binary that constructs its own radio.LoopbackBus.
	Transport string `koanf:"transport"`

	// ListenAddr is the UDP listen address (e.g., ":7777").
	ListenAddr string `koanf:"listen_addr"`

	// BroadcastAddr is the UDP broadcast destination (e.g.,
	// "255.255.255.255:7777").
	BroadcastAddr string `koanf:"broadcast_addr"`

	// SimulatedRSSI is the RSSI value UDPRadio attributes to every
	// received frame, since plain UDP carries no real signal strength.
	SimulatedRSSI int `koanf:"simulated_rssi"`
}

// StatusConfig holds the status-JSON HTTP endpoint configuration.
type StatusConfig struct {
	// Addr is the HTTP listen address for the status endpoint (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CDSConfig holds the election-algorithm tunables that are safe to
// override without violating the protocol's fixed timing constants
// (§3 I5, §4.3). The core discovery/leaver/dominance windows themselves
// are protocol constants, not configuration — only the EWMA smoothing
// factor and an optional MAC override are exposed here.
type CDSConfig struct {
	// MAC overrides the randomly generated node identity, as a 12-hex-
	// char string (e.g. "AAAAAAAAAAAA"). Empty means generate randomly.
	MAC string `koanf:"mac"`

	// RSSIAlpha is an EWMA smoothing factor for received beacon RSSI.
	// Defaults to 0.30 per §3. It is loaded and validated but not passed
	// to the engine, which always smooths with its fixed factor of 0.30.
	RSSIAlpha float64 `koanf:"rssi_alpha"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Radio: RadioConfig{
			Transport:     "udp",
			ListenAddr:    ":7777",
			BroadcastAddr: "255.255.255.255:7777",
			SimulatedRSSI: -60,
		},
		Status: StatusConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CDS: CDSConfig{
			RSSIAlpha: 0.30,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for CDS node configuration.
// Variables are named CDSNODE_<section>_<key>, e.g., CDSNODE_RADIO_LISTEN_ADDR.
const envPrefix = "CDSNODE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CDSNODE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips
// the file layer (useful for tests and for a node running off defaults
// and env vars alone).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms CDSNODE_RADIO_LISTEN_ADDR -> radio.listen_addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"radio.transport":      defaults.Radio.Transport,
		"radio.listen_addr":    defaults.Radio.ListenAddr,
		"radio.broadcast_addr": defaults.Radio.BroadcastAddr,
		"radio.simulated_rssi": defaults.Radio.SimulatedRSSI,
		"status.addr":          defaults.Status.Addr,
		"metrics.addr":         defaults.Metrics.Addr,
		"metrics.path":         defaults.Metrics.Path,
		"log.level":            defaults.Log.Level,
		"log.format":           defaults.Log.Format,
		"cds.mac":              defaults.CDS.MAC,
		"cds.rssi_alpha":       defaults.CDS.RSSIAlpha,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyRadioListenAddr indicates the radio listen address is empty.
	ErrEmptyRadioListenAddr = errors.New("radio.listen_addr must not be empty")

	// ErrEmptyRadioBroadcastAddr indicates the broadcast address is empty.
	ErrEmptyRadioBroadcastAddr = errors.New("radio.broadcast_addr must not be empty")

	// ErrInvalidTransport indicates an unrecognized radio transport.
	ErrInvalidTransport = errors.New("radio.transport must be udp or loopback")

	// ErrInvalidRSSIAlpha indicates the EWMA factor is out of (0, 1].
	ErrInvalidRSSIAlpha = errors.New("cds.rssi_alpha must be in (0, 1]")
)

// validTransports lists the recognized radio.transport values.
var validTransports = map[string]bool{
	"udp":      true,
	"loopback": true,
}

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if !validTransports[cfg.Radio.Transport] {
		return ErrInvalidTransport
	}
	if cfg.Radio.Transport == "udp" {
		if cfg.Radio.ListenAddr == "" {
			return ErrEmptyRadioListenAddr
		}
		if cfg.Radio.BroadcastAddr == "" {
			return ErrEmptyRadioBroadcastAddr
		}
	}
	if cfg.CDS.RSSIAlpha <= 0 || cfg.CDS.RSSIAlpha > 1 {
		return ErrInvalidRSSIAlpha
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StatusPollInterval is the default interval cdsctl's monitor subcommand
// polls the status endpoint at.
const StatusPollInterval = 2 * time.Second
