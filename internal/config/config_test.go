package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, "outreach:interactions", cfg.Ingest.QueueKey)
	assert.Equal(t, 30, cfg.SMS.TimeoutSeconds)
	// Lease TTL must exceed provider timeout plus backoff budget
	assert.Greater(t, cfg.Dispatch.LeaseTTL(), cfg.Dispatch.ProviderTimeout())
}

func TestLoad_ParsesValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
dispatch:
  workers: 4
  max_attempts: 5
sms:
  base_url: https://sms.example.com
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 5, cfg.Dispatch.MaxAttempts)
	assert.True(t, cfg.SMS.Enabled)
	assert.Equal(t, "https://sms.example.com", cfg.SMS.BaseURL)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://file\n")

	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("SMS_GATEWAY_API_KEY", "sk-test")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "sk-test", cfg.SMS.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
