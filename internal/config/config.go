// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/ipsniff/internal/core"
)

// envPrefix maps keys such as capture.interface to IPSNIFF_CAPTURE_INTERFACE.
const envPrefix = "IPSNIFF"

// Config represents the top-level configuration.
// Maps to the `ipsniff:` root key in YAML.
type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─── Capture ───

// CaptureConfig selects the capture endpoint.
type CaptureConfig struct {
	BindAddress string `mapstructure:"bind_address"` // Empty = resolve via probe
	Interface   string `mapstructure:"interface"`    // Empty = interface owning bind_address
	Promiscuous bool   `mapstructure:"promiscuous"`
	SnapLen     int    `mapstructure:"snap_len"`
}

// ResolverConfig configures local address discovery.
type ResolverConfig struct {
	ProbeAddress string `mapstructure:"probe_address"`
}

// ─── Output ───

// OutputConfig configures the record sinks.
type OutputConfig struct {
	Format string     `mapstructure:"format"` // text | json
	Pcap   PcapConfig `mapstructure:"pcap"`
	NATS   NATSConfig `mapstructure:"nats"`
}

// PcapConfig configures the pcap export sink.
type PcapConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NATSConfig configures publishing of records to NATS.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"` // prefix; records go to <subject>.packet / <subject>.failure
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`  // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"` // pattern / json
	Pattern    string           `mapstructure:"pattern"`
	TimeFormat string           `mapstructure:"time_format"`
	File       FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ipsniff: ...`.
type configRoot struct {
	IPSniff Config `mapstructure:"ipsniff"`
}

// Load loads configuration from path. An empty path yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// Settings returns the merged configuration tree (defaults, file, env) as
// nested maps, suitable for printing.
func Settings(path string) (map[string]any, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `ipsniff.` key prefix maps to IPSNIFF_ in env vars via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.IPSniff

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "ipsniff." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	p := strings.ToLower(envPrefix) + "."

	// Capture defaults
	v.SetDefault(p+"capture.bind_address", "")
	v.SetDefault(p+"capture.interface", "")
	v.SetDefault(p+"capture.promiscuous", true)
	v.SetDefault(p+"capture.snap_len", 65535)

	// Resolver defaults
	v.SetDefault(p+"resolver.probe_address", "8.8.8.8:80")

	// Output defaults
	v.SetDefault(p+"output.format", "text")
	v.SetDefault(p+"output.pcap.enabled", false)
	v.SetDefault(p+"output.pcap.path", "ipsniff.pcap")
	v.SetDefault(p+"output.nats.enabled", false)
	v.SetDefault(p+"output.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault(p+"output.nats.subject", "ipsniff")

	// Metrics defaults
	v.SetDefault(p+"metrics.enabled", false)
	v.SetDefault(p+"metrics.listen", ":9091")
	v.SetDefault(p+"metrics.path", "/metrics")

	// Log defaults
	v.SetDefault(p+"log.level", "info")
	v.SetDefault(p+"log.format", "pattern")
	v.SetDefault(p+"log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault(p+"log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault(p+"log.file.enabled", false)
	v.SetDefault(p+"log.file.path", "/var/log/ipsniff/ipsniff.log")
	v.SetDefault(p+"log.file.rotation.max_size_mb", 100)
	v.SetDefault(p+"log.file.rotation.max_age_days", 30)
	v.SetDefault(p+"log.file.rotation.max_backups", 5)
	v.SetDefault(p+"log.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and normalises values.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "pattern" && cfg.Log.Format != "json" {
		return fmt.Errorf("%w: log format %q (must be pattern/json)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when log.file.enabled=true", core.ErrConfigInvalid)
	}

	// ── Capture validation ──
	if cfg.Capture.SnapLen <= 0 || cfg.Capture.SnapLen > 65535 {
		return fmt.Errorf("%w: capture.snap_len %d out of range 1..65535", core.ErrConfigInvalid, cfg.Capture.SnapLen)
	}
	if cfg.Capture.BindAddress != "" {
		addr, err := netip.ParseAddr(cfg.Capture.BindAddress)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("%w: capture.bind_address %q is not an IPv4 address", core.ErrConfigInvalid, cfg.Capture.BindAddress)
		}
	}

	// ── Output validation ──
	if cfg.Output.Format != "text" && cfg.Output.Format != "json" {
		return fmt.Errorf("%w: output format %q (must be text/json)", core.ErrConfigInvalid, cfg.Output.Format)
	}
	if cfg.Output.Pcap.Enabled && cfg.Output.Pcap.Path == "" {
		return fmt.Errorf("%w: output.pcap.path is required when output.pcap.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Output.NATS.Enabled {
		if cfg.Output.NATS.URL == "" {
			return fmt.Errorf("%w: output.nats.url is required when output.nats.enabled=true", core.ErrConfigInvalid)
		}
		if cfg.Output.NATS.Subject == "" {
			return fmt.Errorf("%w: output.nats.subject is required when output.nats.enabled=true", core.ErrConfigInvalid)
		}
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

// BindAddr returns the configured bind address; ok is false when it must be resolved.
func (c CaptureConfig) BindAddr() (addr netip.Addr, ok bool) {
	if c.BindAddress == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(c.BindAddress)
	return addr, err == nil
}
