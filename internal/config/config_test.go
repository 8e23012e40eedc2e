package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "sql", cfg.ProjectStore.Driver)
	assert.Equal(t, "@ai", cfg.AI.TriggerMarker)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "none", cfg.PubSubOptions().Driver)
	assert.Equal(t, ServiceName, cfg.LogOptions().ServiceName)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
auth:
  jwt_secret: s3cret
ai:
  provider: anthropic
  model: claude-sonnet-4-5
  timeout: 5s
websocket:
  ping_interval: 15s
`)
	t.Setenv("AI_API_KEY", "key")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PORT", "9000")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "key", cfg.AI.APIKey)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth:         AuthConfig{JWTSecret: "x"},
			ProjectStore: ProjectStoreConfig{Driver: "sql"},
			Events:       EventsConfig{Driver: "none"},
			AI:           AIConfig{Provider: "none", TriggerMarker: "@ai"},
			WebSocket:    WebSocketConfig{SendBuffer: 16},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"no key material":        func(c *Config) { c.Auth.JWTSecret = "" },
		"unknown store":          func(c *Config) { c.ProjectStore.Driver = "etcd" },
		"redis events w/o redis": func(c *Config) { c.Events.Driver = "redis" },
		"provider without key":   func(c *Config) { c.AI.Provider = "openai" },
		"unknown provider":       func(c *Config) { c.AI.Provider = "llama" },
		"empty marker":           func(c *Config) { c.AI.TriggerMarker = "" },
		"zero send buffer":       func(c *Config) { c.WebSocket.SendBuffer = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
