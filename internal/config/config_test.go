package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.API.BaseURL)
	assert.Equal(t, "/auctions", cfg.Socket.Path)
	assert.Equal(t, 10, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Socket.ReconnectDelay)
	assert.Equal(t, time.Second, cfg.Session.Tick)
	assert.Equal(t, "env", cfg.Auth.TokenStore)
	assert.Equal(t, 30*time.Second, cfg.DevServer.ExtensionWindow)
	assert.Equal(t, 15*time.Second, cfg.Redis.LeaseTTL)
	assert.False(t, cfg.MySQL.JournalEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("API_BASE_URL", "https://auctions.example.com/")
	t.Setenv("AUCTION_ID", "a-42")
	t.Setenv("SOCKET_RECONNECT_ATTEMPTS", "3")
	t.Setenv("SESSION_REFRESH_INTERVAL", "30s")
	t.Setenv("REDIS_MIRROR_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "a-42", cfg.Session.AuctionID)
	assert.Equal(t, 3, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Session.RefreshInterval)
	assert.True(t, cfg.Redis.MirrorEnabled)
	assert.Equal(t, "wss://auctions.example.com/auctions", cfg.SocketURL())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	content := `
api:
  base_url: http://127.0.0.1:4000
session:
  auction_id: a-7
  tick: 500ms
mysql:
  journal_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a-7", cfg.Session.AuctionID)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.Tick)
	assert.True(t, cfg.MySQL.JournalEnabled)
	assert.Equal(t, "ws://127.0.0.1:4000/auctions", cfg.SocketURL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }},
		{"negative attempts", func(c *Config) { c.Socket.ReconnectAttempts = -1 }},
		{"zero tick", func(c *Config) { c.Session.Tick = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				API:     APIConfig{BaseURL: "http://localhost:3000"},
				Session: SessionConfig{Tick: time.Second},
			}
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
