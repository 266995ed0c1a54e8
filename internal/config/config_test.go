package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ipsniff/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipsniff.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Capture.BindAddress)
	assert.True(t, cfg.Capture.Promiscuous)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, "8.8.8.8:80", cfg.Resolver.ProbeAddress)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.False(t, cfg.Output.Pcap.Enabled)
	assert.False(t, cfg.Output.NATS.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "pattern", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Log.File.Rotation.MaxSizeMB)

	_, ok := cfg.Capture.BindAddr()
	assert.False(t, ok)
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
ipsniff:
  capture:
    bind_address: "192.0.2.10"
    interface: "eth1"
    promiscuous: false
    snap_len: 1500
  resolver:
    probe_address: "1.1.1.1:53"
  output:
    format: json
    pcap:
      enabled: true
      path: /tmp/out.pcap
    nats:
      enabled: true
      url: nats://broker:4222
      subject: lab.sniff
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  log:
    level: DEBUG
    format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.10", cfg.Capture.BindAddress)
	assert.Equal(t, "eth1", cfg.Capture.Interface)
	assert.False(t, cfg.Capture.Promiscuous)
	assert.Equal(t, 1500, cfg.Capture.SnapLen)
	assert.Equal(t, "1.1.1.1:53", cfg.Resolver.ProbeAddress)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "/tmp/out.pcap", cfg.Output.Pcap.Path)
	assert.Equal(t, "lab.sniff", cfg.Output.NATS.Subject)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	addr, ok := cfg.Capture.BindAddr()
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", addr.String())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IPSNIFF_CAPTURE_INTERFACE", "wlan0")
	t.Setenv("IPSNIFF_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", cfg.Capture.Interface)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{
			name:    "log level",
			content: "ipsniff:\n  log:\n    level: loud\n",
			msg:     "log level",
		},
		{
			name:    "log format",
			content: "ipsniff:\n  log:\n    format: xml\n",
			msg:     "log format",
		},
		{
			name:    "snap len",
			content: "ipsniff:\n  capture:\n    snap_len: 70000\n",
			msg:     "snap_len",
		},
		{
			name:    "ipv6 bind address",
			content: "ipsniff:\n  capture:\n    bind_address: \"::1\"\n",
			msg:     "bind_address",
		},
		{
			name:    "output format",
			content: "ipsniff:\n  output:\n    format: csv\n",
			msg:     "output format",
		},
		{
			name:    "nats without subject",
			content: "ipsniff:\n  output:\n    nats:\n      enabled: true\n      subject: \"\"\n",
			msg:     "output.nats.subject",
		},
		{
			name:    "pcap without path",
			content: "ipsniff:\n  output:\n    pcap:\n      enabled: true\n      path: \"\"\n",
			msg:     "output.pcap.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfigInvalid), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSettingsIncludesDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, "ipsniff:\n  capture:\n    interface: eth9\n")

	settings, err := Settings(path)
	require.NoError(t, err)

	root, ok := settings["ipsniff"].(map[string]any)
	require.True(t, ok)
	capture, ok := root["capture"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eth9", capture["interface"])
	assert.Equal(t, 65535, capture["snap_len"])
}
