package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Signal.RingTimeout)
}

func TestLoad_FromFile(t *testing.T) {
	content := `
server:
  address: ":9999"
signal:
  ring_timeout: 15s
rooms:
  default_max_participants: 2
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Signal.RingTimeout)
	assert.Equal(t, 2, cfg.Rooms.DefaultMaxParticipants)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 60*time.Second, cfg.Signal.PongTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOICEBRIDGE_SERVER_ADDRESS", ":7000")
	t.Setenv("VOICEBRIDGE_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"zero ring timeout", func(c *Config) { c.Signal.RingTimeout = 0 }},
		{"capacity below 2", func(c *Config) { c.Rooms.DefaultMaxParticipants = 1 }},
		{"default above limit", func(c *Config) { c.Rooms.DefaultMaxParticipants = 100 }},
		{"empty link secret", func(c *Config) { c.Rooms.JoinLinkSecret = "" }},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" }},
		{"bad sample rate", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 }},
		{"rate limit zero rps", func(c *Config) { c.RateLimiting.Enabled = true; c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
