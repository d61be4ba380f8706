package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Worker.Count)
	assert.Equal(t, 10, cfg.Resolver.MaxItems)
	assert.Equal(t, 30*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Delivery.TransferTimeout)
	assert.Equal(t, 30*time.Second, cfg.Conversion.Timeout)
	assert.Equal(t, 120*time.Second, cfg.Telegram.SendTimeout)
	assert.Equal(t, GiB, cfg.Delivery.MaxSize)
	assert.Equal(t, 20*MiB, cfg.Delivery.MemoryThreshold)
	assert.Equal(t, 3*time.Second, cfg.Progress.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Descriptions.TTL)
	assert.Equal(t, []string{"direct", "conversion", "reupload"}, cfg.Delivery.Order)
	assert.True(t, cfg.Admission.Enabled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[worker]
count = 5

[delivery]
order = ["direct", "reupload"]
max_size = "512MiB"
memory_threshold = "8MiB"

[conversion]
endpoints = ["https://convert.example.com/"]
timeout = "10s"

[progress]
interval = "2s"

[credentials]
instagram = "# Netscape HTTP Cookie File"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Worker.Count)
	assert.Equal(t, []string{"direct", "reupload"}, cfg.Delivery.Order)
	assert.Equal(t, 512*MiB, cfg.Delivery.MaxSize)
	assert.Equal(t, 8*MiB, cfg.Delivery.MemoryThreshold)
	assert.Equal(t, 10*time.Second, cfg.Conversion.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Progress.Interval)
	assert.Equal(t, "# Netscape HTTP Cookie File", cfg.Credential("Instagram"))
	// untouched sections keep defaults
	assert.Equal(t, 10, cfg.Resolver.MaxItems)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Worker.Count)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[worker\ncount = "), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WORKERS", "7")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("PINTEREST_COOKIE", "  cookie-blob\n")
	t.Setenv("DELIVERY_ORDER", "reupload, direct")
	t.Setenv("RESOLVER_TIMEOUT", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Worker.Count)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "cookie-blob", cfg.Credential("pinterest"))
	assert.Equal(t, []string{"reupload", "direct"}, cfg.Delivery.Order)
	assert.Equal(t, 45*time.Second, cfg.Resolver.Timeout)
	assert.NoError(t, cfg.RequireTelegram())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Worker.Count = 0 }},
		{"unknown queue", func(c *Config) { c.Worker.Queue = "kafka" }},
		{"unknown strategy", func(c *Config) { c.Delivery.Order = []string{"direct", "torrent"} }},
		{"duplicate strategy", func(c *Config) { c.Delivery.Order = []string{"direct", "direct"} }},
		{"empty order", func(c *Config) { c.Delivery.Order = nil }},
		{"bad endpoint", func(c *Config) { c.Conversion.Endpoints = []string{"not a url"} }},
		{"redis queue without addr", func(c *Config) { c.Worker.Queue = "redis" }},
		{"redis descriptions without addr", func(c *Config) { c.Descriptions.Backend = "redis" }},
		{"threshold above max", func(c *Config) { c.Delivery.MemoryThreshold = 2 * GiB }},
		{"zero interval", func(c *Config) { c.Progress.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
		})
	}
}

func TestRequireTelegram(t *testing.T) {
	cfg := Default()
	err := cfg.RequireTelegram()
	require.Error(t, err)
	assert.Equal(t, "telegram.token", errors.GetFields(err)["field"])
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"1GiB", GiB},
		{"20MiB", 20 * MiB},
		{"20 mb", 20 * MiB},
		{"512k", 512 * KiB},
		{"1.5GiB", GiB + GiB/2},
		{"1048576", MiB},
		{"100b", 100},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b ByteSize
			require.NoError(t, b.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, tt.want, b)
		})
	}

	var b ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
	assert.Error(t, b.UnmarshalText([]byte("")))
	assert.Equal(t, "1GiB", GiB.String())
	assert.Equal(t, "20MiB", (20 * MiB).String())
	assert.Equal(t, "1000", ByteSize(1000).String())
}
