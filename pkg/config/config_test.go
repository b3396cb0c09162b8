package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 24, cfg.Auth.TokenExpiration)
	assert.Equal(t, 5, cfg.Credits.MinScheduledBalance)
	assert.Equal(t, "pixelmuse-media", cfg.Assets.Bucket)
	assert.False(t, cfg.Redis.Enabled)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9090
	cfg.Cron.Secret = "cron-secret"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "cron-secret", loaded.Cron.Secret)
	assert.Equal(t, cfg.Providers.TextToImageEndpoint, loaded.Providers.TextToImageEndpoint)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIXELMUSE_JWT_SECRET", "env-jwt")
	t.Setenv("PIXELMUSE_CRON_SECRET", "env-cron")
	t.Setenv("PIXELMUSE_PROVIDER_API_KEY", "env-key")

	cfg := DefaultConfig()
	assert.Equal(t, "env-jwt", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-cron", cfg.Cron.Secret)
	assert.Equal(t, "env-key", cfg.Providers.APIKey)
}
