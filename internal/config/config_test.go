package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Presence.Window)
	assert.Equal(t, 100, cfg.Rooms.ListLimit)
	assert.Equal(t, 3, cfg.Rooms.MaxConflictRetries)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Empty(t, cfg.KafkaBrokers())
}

func TestLoadFileAndEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
database:
  driver: memory
presence:
  window: 45s
kafka:
  brokers: "kafka-1:9092, kafka-2:9092"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.yaml"), yaml, 0o600))
	t.Setenv("CHAT_ROOMS_LIST_LIMIT", "20")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45*time.Second, cfg.Presence.Window)
	assert.Equal(t, 20, cfg.Rooms.ListLimit)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers())
}

func TestLoadRequiresSecretOutsideLocal(t *testing.T) {
	t.Setenv("CHAT_APP_ENVIRONMENT", "production")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")

	t.Setenv("CHAT_AUTH_JWT_SECRET", "s3cret")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Environment)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("CHAT_DATABASE_DRIVER", "oracle")

	_, err := Load(t.TempDir())
	require.Error(t, err)
}
